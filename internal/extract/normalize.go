package extract

import "regexp"

// Phone tokens: optional "+" then a digit run. The sectioned path wants real
// phone numbers (9+ digits); the legacy path historically accepted shorter runs.
var (
	phonePattern       = regexp.MustCompile(`\+?[0-9]{9,15}`)
	legacyPhonePattern = regexp.MustCompile(`\+?[0-9]{7,15}`)
)

// findPhone returns the first phone-like token in document order, or "".
// Detection is message-scoped on purpose: ads list one contact for all lots.
func findPhone(text string, pattern *regexp.Regexp) string {
	return pattern.FindString(text)
}

// truncate hard-cuts s to at most max characters. No ellipsis, no error.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
