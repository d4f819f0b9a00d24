package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

func TestPasswordMatches(t *testing.T) {
	hashed, err := utils.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if !passwordMatches(string(hashed), "s3cret") {
		t.Error("correct password must match")
	}
	if passwordMatches(string(hashed), "wrong") {
		t.Error("wrong password must not match")
	}
	// A corrupted stored hash fails compare with an error other than
	// ErrMismatchedHashAndPassword; it must still read as no-match.
	if passwordMatches("not-a-bcrypt-hash", "s3cret") {
		t.Error("malformed stored hash must not match")
	}
	if passwordMatches("", "s3cret") {
		t.Error("empty stored hash must not match")
	}
}
