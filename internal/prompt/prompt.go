package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"dealsense.app/coach/internal/retrieval"
)

// Template bounds a feature's generation request. MaxTokens is the feature's
// output ceiling; ContextBudget caps the characters spent on retrieved
// context so the total prompt stays within the model's window.
type Template struct {
	Name          string
	System        string
	Instruction   string
	MaxTokens     int
	ContextBudget int
}

// Prompt is a bounded, fully assembled generation request.
type Prompt struct {
	System    string
	Text      string
	MaxTokens int
}

// Build merges entity fields and retrieved context into a bounded prompt.
// It is deterministic: identical fields and context produce byte-identical
// output, which the cache-key story depends on. Fields render sorted by name.
func Build(fields map[string]string, ragContext []retrieval.ContextItem, tpl Template) Prompt {
	var b strings.Builder

	b.WriteString(tpl.Instruction)
	b.WriteString("\n\n")

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, fields[name])
	}

	if section := contextSection(ragContext, tpl.ContextBudget); section != "" {
		b.WriteString("\nRelevant history from similar deals:\n")
		b.WriteString(section)
	} else {
		b.WriteString("\nNo comparable historical deals were found; base the answer on the fields above alone and say so.\n")
	}

	return Prompt{
		System:    tpl.System,
		Text:      b.String(),
		MaxTokens: tpl.MaxTokens,
	}
}

// contextSection renders retrieved items in rank order until the character
// budget runs out. An item that does not fit whole is truncated rather than
// dropped so the highest-ranked context always survives.
func contextSection(items []retrieval.ContextItem, budget int) string {
	if len(items) == 0 || budget <= 0 {
		return ""
	}

	var b strings.Builder
	remaining := budget
	for i, item := range items {
		line := fmt.Sprintf("%d. [%s, %s, $%.0f] %s\n",
			i+1, item.Metadata.Industry, item.Metadata.Outcome, item.Metadata.Value, item.Summary)

		if len(line) > remaining {
			if remaining > 20 {
				// Cut on a rune boundary so the prompt stays valid UTF-8.
				cut := remaining - 1
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				b.WriteString(line[:cut])
				b.WriteString("\n")
			}
			break
		}
		b.WriteString(line)
		remaining -= len(line)
	}
	return b.String()
}
