package assistant

import (
	"strings"
	"testing"
)

func TestBuiltinReply(t *testing.T) {
	hits := map[string]string{
		"hi":                    "AquaMind AI assistant",
		"Hello":                 "AquaMind AI assistant",
		"good morning":          "AquaMind AI assistant",
		"What is AquaMind?":     "smart water management",
		"how does it work":      "IoT sensors",
		"list your features":    "Real-time tank monitoring",
		"why use this":          "Reduce water waste",
		"what's the pricing":    "$29/month",
		"how to install this":   "IoT sensors",
		"thanks":                "You're welcome",
	}
	for q, frag := range hits {
		got, ok := BuiltinReply(q)
		if !ok {
			t.Fatalf("BuiltinReply(%q) missed", q)
		}
		if !strings.Contains(got, frag) {
			t.Fatalf("BuiltinReply(%q) = %q; want fragment %q", q, got, frag)
		}
	}

	misses := []string{
		"how much water is in the rooftop tank",
		"hello there, can you check my alerts", // greeting must match the whole query
		"",
	}
	for _, q := range misses {
		if got, ok := BuiltinReply(q); ok {
			t.Fatalf("BuiltinReply(%q) unexpectedly hit: %q", q, got)
		}
	}
}
