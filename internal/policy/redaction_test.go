package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "email me at sam@example.com or call plus 1 (555) 123-9876 and my card is 4242 4242 4242 4242"
	out, matched := RedactPII(input)
	if len(matched) != 3 {
		t.Fatalf("matched = %v, want email, card and phone", matched)
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "4242") {
		t.Fatalf("card digits leaked: %q", out)
	}
}

func TestRedactPIILeavesSpeechAlone(t *testing.T) {
	input := "um so today I want to talk about the 3 pillars of public speaking"
	out, matched := RedactPII(input)
	if out != input || len(matched) != 0 {
		t.Fatalf("RedactPII() = %q, %v; want unchanged", out, matched)
	}
}
