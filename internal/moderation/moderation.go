package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealsense.app/coach/common/llm"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Verdict is the outcome of a moderation check. Verdicts are produced fresh
// per text and never cached; the same words can be acceptable in one context
// and not in another.
type Verdict struct {
	Allowed    bool
	ReasonCode string
	Severity   Severity
	Categories []string
}

// TextKind distinguishes user input from generated output. Output is
// re-validated before being returned because generation can itself produce
// disallowed content.
type TextKind string

const (
	TextKindInput  TextKind = "input"
	TextKindOutput TextKind = "output"
)

// Context carries the feature the text belongs to.
type Context struct {
	Feature string
	Kind    TextKind
}

// Filter validates text against the disallowed-content policy. Two layers run
// in order, short-circuiting on the first block: a local pattern layer and a
// remote classifier for text the local layer passes.
type Filter interface {
	Check(ctx context.Context, text string, mctx Context) (Verdict, error)
	ValidateBusinessContext(ctx context.Context, text string, feature string) (Verdict, error)
}

type filter struct {
	classifier    llm.Client // nil disables the remote layer
	remoteTimeout time.Duration
}

// New builds the two-layer filter. classifier may be nil in development; the
// local verdict then stands on its own.
func New(classifier llm.Client, remoteTimeout time.Duration) Filter {
	if remoteTimeout == 0 {
		remoteTimeout = 5 * time.Second
	}
	return &filter{classifier: classifier, remoteTimeout: remoteTimeout}
}

func allowed() Verdict {
	return Verdict{Allowed: true, Severity: SeverityLow}
}

func (f *filter) Check(ctx context.Context, text string, mctx Context) (Verdict, error) {
	if v := checkLocal(text); !v.Allowed {
		slog.InfoContext(ctx, "text blocked by local policy",
			"reason", v.ReasonCode,
			"severity", v.Severity,
			"kind", mctx.Kind,
			"feature", mctx.Feature)
		return v, nil
	}

	if f.classifier == nil {
		return allowed(), nil
	}

	remoteCtx, cancel := context.WithTimeout(ctx, f.remoteTimeout)
	defer cancel()

	classification, err := f.classifier.Classify(remoteCtx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("remote moderation: %w", err)
	}

	if !classification.Flagged {
		return allowed(), nil
	}

	v := Verdict{
		Allowed:    false,
		ReasonCode: "flagged_by_classifier",
		Severity:   severityForCategories(classification.Categories),
		Categories: classification.Categories,
	}
	slog.InfoContext(ctx, "text blocked by remote classifier",
		"categories", v.Categories,
		"severity", v.Severity,
		"kind", mctx.Kind,
		"feature", mctx.Feature)
	return v, nil
}

// severityForCategories maps provider categories onto the local severity
// tiers. Violence and self-harm always rank critical.
func severityForCategories(categories []string) Severity {
	severity := SeverityMedium
	for _, c := range categories {
		switch c {
		case "violence", "violence/graphic", "self-harm", "self-harm/intent", "self-harm/instructions":
			return SeverityCritical
		case "harassment/threatening", "hate/threatening", "sexual/minors", "illicit/violent":
			return SeverityCritical
		case "harassment", "hate", "sexual", "illicit":
			severity = SeverityHigh
		}
	}
	return severity
}
