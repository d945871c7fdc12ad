package validator

import "testing"

type checkRequest struct {
	UserID     string `validate:"required,notblank"`
	PolicyType string `validate:"required,notblank"`
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	v := New()

	if err := v.Struct(checkRequest{UserID: "u1", PolicyType: "Health"}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	err := v.Struct(checkRequest{UserID: "   ", PolicyType: "Health"})
	if err == nil {
		t.Fatalf("expected whitespace user id to be rejected")
	}
	msgs := FieldErrors(err)
	if len(msgs) != 1 || msgs[0] != "UserID: notblank" {
		t.Fatalf("unexpected field errors %v", msgs)
	}
}
