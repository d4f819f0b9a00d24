package utils

import "testing"

func TestValidateStructReadsBindingTags(t *testing.T) {
	type input struct {
		Name  string `binding:"required"`
		Email string `binding:"omitempty,email"`
	}

	if err := ValidateStruct(&input{Name: "Acme"}); err != nil {
		t.Errorf("valid input: got %v", err)
	}
	if err := ValidateStruct(&input{}); !IsValidationError(err) {
		t.Errorf("missing required field: want validation error, got %v", err)
	}
	if err := ValidateStruct(&input{Name: "Acme", Email: "not-an-email"}); !IsValidationError(err) {
		t.Errorf("bad email: want validation error, got %v", err)
	}
}
