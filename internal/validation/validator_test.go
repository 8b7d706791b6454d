// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package validation

import (
	"errors"
	"testing"
)

type registerForm struct {
	Email    string `validate:"required,simple_email"`
	Password string `validate:"required,min=8"`
	Name     string `validate:"required"`
}

func TestValidateStructAccepts(t *testing.T) {
	err := ValidateStruct(&registerForm{
		Email:    "alice@example.com",
		Password: "P4ssw0rd!xy",
		Name:     "Alice",
	})
	if err != nil {
		t.Fatalf("valid form rejected: %v", err)
	}
}

func TestValidateStructReportsFirstFailure(t *testing.T) {
	err := ValidateStruct(&registerForm{
		Email:    "not-an-email",
		Password: "short",
		Name:     "",
	})

	var verr *RequestValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	if len(verr.Fields()) != 3 {
		t.Errorf("got %d field errors, want 3", len(verr.Fields()))
	}
	if first := verr.First(); first.Field != "Email" || first.Tag != "simple_email" {
		t.Errorf("first failure = %+v", first)
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"alice+tag@sub.example.co.uk",
		"x@y.zz",
	}
	for _, e := range valid {
		if !ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = false", e)
		}
	}

	invalid := []string{
		"",
		"plain",
		"@example.com",
		"a@b",
		"a b@example.com",
		"a@b@c.com",
	}
	for _, e := range invalid {
		if ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = true", e)
		}
	}
}
