package validator

import (
	"testing"
)

type testPayload struct {
	Token  string `mapstructure:"token" validate:"required"`
	Expiry int    `mapstructure:"expiry" validate:"gte=1"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Token:  "secret",
		Expiry: 24,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Token:  "",
		Expiry: 0,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 2 {
		t.Fatalf("expected 2 validation errors, got %d", len(vErrs))
	}

	foundToken := false
	for _, v := range vErrs {
		if v.Field == "token" {
			foundToken = true
		}
	}

	if !foundToken {
		t.Fatal("expected token field to be present in validation errors")
	}
}
