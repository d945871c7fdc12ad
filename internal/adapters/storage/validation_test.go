package storage

import "testing"

func TestValidateContentType(t *testing.T) {
	if err := ValidateContentType("application/json; charset=utf-8"); err != nil {
		t.Fatalf("expected json to be accepted, got %v", err)
	}
	if err := ValidateContentType("image/png"); err == nil {
		t.Fatal("expected image/png to be rejected")
	}
}

func TestValidateObjectKey(t *testing.T) {
	valid := []string{"sync-runs/2026/10/14/run.json", "report.json"}
	for _, key := range valid {
		if err := ValidateObjectKey(key); err != nil {
			t.Fatalf("expected %q to be valid, got %v", key, err)
		}
	}

	invalid := []string{"", "  ", "/abs/key.json", "sync-runs/../secrets.json"}
	for _, key := range invalid {
		if err := ValidateObjectKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}
