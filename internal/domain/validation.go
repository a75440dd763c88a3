package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest plaintext credential ValidatePassword accepts.
const MinPasswordLength = 4

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldViolation describes one violated constraint.
type FieldViolation struct {
	// Field is the JSON name of the offending field.
	Field string `json:"field"`

	// Constraint is the violated rule (e.g. "min", "max", "required").
	Constraint string `json:"constraint"`

	// Message is a human-readable description.
	Message string `json:"message"`

	err error
}

// ValidationError lists every constraint an entity violates.
type ValidationError struct {
	Violations []FieldViolation `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the sentinel of each violation to errors.Is.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.err != nil {
			errs = append(errs, v.err)
		}
	}
	return errs
}

// Validate checks the account's declared constraints and that every owned
// child references this account.
func (u *UserAccount) Validate() error {
	var violations []FieldViolation

	if err := validate.Struct(u); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate user: %w", err)
		}
		for _, fe := range fieldErrs {
			violations = append(violations, accountViolation(fe))
		}
	}

	if u.ID != 0 {
		for _, c := range u.Carts {
			if c.UserID != u.ID {
				violations = append(violations, FieldViolation{
					Field:      "carts",
					Constraint: "owner",
					Message:    fmt.Sprintf("cart %d belongs to user %d", c.ID, c.UserID),
					err:        ErrForeignOwner,
				})
			}
		}
		for _, l := range u.Roles {
			if l.UserID != u.ID {
				violations = append(violations, FieldViolation{
					Field:      "roles",
					Constraint: "owner",
					Message:    fmt.Sprintf("role %q belongs to user %d", l.RoleName(), l.UserID),
					err:        ErrForeignOwner,
				})
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func accountViolation(fe validator.FieldError) FieldViolation {
	v := FieldViolation{
		Field:      fe.Field(),
		Constraint: fe.Tag(),
		Message:    fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()),
	}
	if fe.StructField() == "Username" {
		v.err = ErrInvalidUsername
		switch fe.Tag() {
		case "required":
			v.Message = "username is required"
		default:
			v.Message = ErrInvalidUsername.Error()
		}
	}
	return v
}

// ValidateUsername checks a candidate username against the account constraints.
func ValidateUsername(username string) error {
	return (&UserAccount{Username: username}).Validate()
}

// ValidatePassword checks the advisory plaintext rule (4 or more characters).
func ValidatePassword(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return &ValidationError{Violations: []FieldViolation{{
			Field:      "password",
			Constraint: "min",
			Message:    ErrInvalidPassword.Error(),
			err:        ErrInvalidPassword,
		}}}
	}
	return nil
}
