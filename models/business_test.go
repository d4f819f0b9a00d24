package models

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

// Input validation runs before any database access, so internal callers
// (seed, workers) get the same checks gin binding gives HTTP callers.
func TestCreateInputsValidated(t *testing.T) {
	ctx := context.Background()

	if _, err := CreateBusiness(ctx, &NewBusiness{}); !utils.IsValidationError(err) {
		t.Errorf("business with no name/email: want validation error, got %v", err)
	}
	if _, err := CreateBusiness(ctx, &NewBusiness{Name: "Acme"}); !utils.IsValidationError(err) {
		t.Errorf("business with no email: want validation error, got %v", err)
	}
	if _, err := CreateUser(ctx, &NewUser{Username: "worker"}); !utils.IsValidationError(err) {
		t.Errorf("user with no name/password: want validation error, got %v", err)
	}
}
