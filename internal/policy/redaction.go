package policy

import "regexp"

// Rule masks one class of personal data in free text.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Mask    string
}

// TranscriptRules are applied in order. Cards run before phones so long digit runs are not
// classified as phone numbers.
var TranscriptRules = []Rule{
	{Name: "email", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), Mask: "[REDACTED_EMAIL]"},
	{Name: "card", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), Mask: "[REDACTED_CARD]"},
	{Name: "phone", Pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), Mask: "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card numbers and phone numbers spoken into a transcript. matched
// lists the rule names that changed the text.
func RedactPII(input string) (redacted string, matched []string) {
	out := input
	for _, rule := range TranscriptRules {
		next := rule.Pattern.ReplaceAllString(out, rule.Mask)
		if next != out {
			matched = append(matched, rule.Name)
		}
		out = next
	}
	return out, matched
}
