package main

import "testing"

// TestStepArg проверяет разбор числа шагов отката.
func TestStepArg(t *testing.T) {
	if got, err := stepArg([]string{"down"}, 1); err != nil || got != 1 {
		t.Fatalf("expected default 1, got %d (%v)", got, err)
	}
	if got, err := stepArg([]string{"down", "3"}, 1); err != nil || got != 3 {
		t.Fatalf("expected 3, got %d (%v)", got, err)
	}
	for _, raw := range []string{"0", "-2", "all"} {
		if _, err := stepArg([]string{"down", raw}, 1); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
