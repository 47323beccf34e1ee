package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joshua-takyi/reviewtrust/internal/models"
)

var (
	ErrValidation            = errors.New("invalid submission")
	ErrDuplicateSubmission   = errors.New("a review for this business was already submitted recently")
	ErrRateLimited           = errors.New("too many submissions, please try again later")
	ErrInvalidOrExpiredToken = errors.New("verification link is invalid or has expired")
	ErrNotEligibleForResend  = errors.New("submission is not eligible for a new verification email")
	ErrBusinessNotFound      = errors.New("business not found")
	ErrSubmissionNotFound    = errors.New("submission not found")
	ErrBusy                  = errors.New("submissions are busy, please retry shortly")
	ErrStoreUnavailable      = models.ErrStoreUnavailable
)

// ValidationError lists the offending fields. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, fmt.Sprintf("%s %s", f, e.Fields[f]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"request": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return &ValidationError{Fields: fields}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
