package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// The local layer encodes the policy classes cheap enough to match without a
// model round trip: explicit threats, credential phishing, heavy profanity,
// and spam markers. Patterns are deliberately narrow. Ordinary negative
// business sentiment ("this is disappointing", "waste of time") must pass;
// false positives on legitimate objections are a correctness bug, not noise.

var (
	threatPattern = regexp.MustCompile(`(?i)\b(kill|murder|shoot|stab|bomb|destroy)\b.{0,40}\b(you|him|her|them|everyone|everybody|people|team|company|office)\b`)

	selfThreatPattern = regexp.MustCompile(`(?i)\b(i\s+(?:will|'ll|am\s+going\s+to)\s+(?:hurt|kill|come\s+(?:for|after)))\b`)

	phishingPattern = regexp.MustCompile(`(?i)\b(send|give|share|tell|provide)\b.{0,40}\b(your|me\s+(?:your|the))\s*.{0,20}\b(password|passcode|ssn|social\s+security|credit\s*card|card\s+number|cvv|bank\s+account|routing\s+number)\b`)

	promoLinkPattern = regexp.MustCompile(`(?i)https?://\S+`)

	urgencyPattern = regexp.MustCompile(`(?i)\b(act\s+now|limited\s+time|click\s+here|once\s+in\s+a\s+lifetime|100%\s+free|winner|congratulations\s+you)\b`)
)

// heavyProfanity is the short list that blocks outright. Milder words are
// left to the remote classifier, which sees context.
var heavyProfanity = []string{
	"fuck", "motherfucker", "cunt", "cocksucker",
}

func checkLocal(text string) Verdict {
	lower := strings.ToLower(text)

	if threatPattern.MatchString(text) || selfThreatPattern.MatchString(text) {
		return Verdict{
			Allowed:    false,
			ReasonCode: "explicit_threat",
			Severity:   SeverityCritical,
			Categories: []string{"violence", "threat"},
		}
	}

	if phishingPattern.MatchString(text) {
		return Verdict{
			Allowed:    false,
			ReasonCode: "credential_phishing",
			Severity:   SeverityHigh,
			Categories: []string{"phishing", "personal_data"},
		}
	}

	for _, word := range heavyProfanity {
		if containsWord(lower, word) {
			return Verdict{
				Allowed:    false,
				ReasonCode: "profanity",
				Severity:   SeverityHigh,
				Categories: []string{"profanity"},
			}
		}
	}

	if v, spam := checkSpamMarkers(text, lower); spam {
		return v
	}

	return allowed()
}

func checkSpamMarkers(text, lower string) (Verdict, bool) {
	markers := 0

	if capsRatio(text) > 0.6 && len(text) > 20 {
		markers++
	}
	if urgencyPattern.MatchString(lower) {
		markers++
	}
	if len(promoLinkPattern.FindAllString(text, -1)) >= 2 {
		markers++
	}

	if markers >= 2 {
		return Verdict{
			Allowed:    false,
			ReasonCode: "spam_markers",
			Severity:   SeverityMedium,
			Categories: []string{"spam"},
		}, true
	}
	return Verdict{}, false
}

func capsRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func containsWord(lower, word string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !unicode.IsLetter(rune(lower[start-1]))
		afterOK := end == len(lower) || !unicode.IsLetter(rune(lower[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}
