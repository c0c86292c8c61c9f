package util

import (
	"strings"
	"testing"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("FASTTRACK_TEST_BOOL", "true")
	if !ParseBoolEnv("FASTTRACK_TEST_BOOL", false) {
		t.Error("expected true")
	}

	t.Setenv("FASTTRACK_TEST_BOOL", "not-a-bool")
	if !ParseBoolEnv("FASTTRACK_TEST_BOOL", true) {
		t.Error("unparsable value should return default")
	}

	if ParseBoolEnv("FASTTRACK_UNSET_BOOL", false) {
		t.Error("unset variable should return default")
	}
}

func TestGenerateRandomHex(t *testing.T) {
	s, err := GenerateRandomHex(8)
	if err != nil {
		t.Fatalf("GenerateRandomHex failed: %v", err)
	}
	if len(s) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(s))
	}
}

func TestGenerateSessionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
		if !strings.Contains(id, "-") {
			t.Errorf("unexpected id format %q", id)
		}
	}
}
