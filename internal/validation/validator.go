// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package validation provides struct validation using
// go-playground/validator v10 with a thread-safe singleton instance and
// the auth service's credential-shape rules.
//
//	type loginForm struct {
//	    Email    string `validate:"required,simple_email"`
//	    Password string `validate:"required,min=8"`
//	}
//
//	if err := validation.ValidateStruct(&form); err != nil { ... }
package validation

import (
	"errors"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// simpleEmailPattern checks the documented local@domain.tld shape. The
// full RFC grammar is deliberately not enforced; addresses are proven by
// delivery, not by parsing.
var simpleEmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// getValidator returns the singleton, building it on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Registration can only fail for a nil function.
		_ = validate.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
			return simpleEmailPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// FieldError is one failed field with its failing tag.
type FieldError struct {
	Field string
	Tag   string
}

// RequestValidationError is the collection of failures for one struct.
type RequestValidationError struct {
	fields []FieldError
}

// Error implements error.
func (ve *RequestValidationError) Error() string {
	if len(ve.fields) == 0 {
		return "validation failed"
	}
	return "validation failed on field " + ve.fields[0].Field
}

// Fields returns the failed fields in declaration order.
func (ve *RequestValidationError) Fields() []FieldError {
	return ve.fields
}

// First returns the first failed field, the one a redirect error code is
// derived from.
func (ve *RequestValidationError) First() FieldError {
	if len(ve.fields) == 0 {
		return FieldError{}
	}
	return ve.fields[0]
}

// ValidateStruct validates s against its validate tags. Returns nil on
// success or a *RequestValidationError.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &RequestValidationError{}
	for _, fe := range verrs {
		out.fields = append(out.fields, FieldError{Field: fe.Field(), Tag: fe.Tag()})
	}
	return out
}

// ValidEmail reports whether s has the accepted local@domain.tld shape.
func ValidEmail(s string) bool {
	return simpleEmailPattern.MatchString(s)
}
