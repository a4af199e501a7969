package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/quiz-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Quiz specific errors
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrQuizNotAvailable   = errors.New("quiz is not available")
	ErrQuizHasAttempts    = errors.New("quiz cannot be changed - has existing attempts")
	ErrQuizEmpty          = errors.New("quiz has no questions")
	ErrSchedulingConflict = errors.New("available_from must be before available_until")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrNotEnrolled        = errors.New("student is not enrolled in the course")

	// Attempt specific errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAccessDenied     = errors.New("access denied to attempt")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptLimitReached     = errors.New("maximum attempts reached")
	ErrAttemptNotGradable      = errors.New("attempt is not awaiting manual grading")
	ErrAttemptContention       = errors.New("attempt is being modified concurrently")
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// Unwrap lets errors.Is match ErrForbidden.
func (pe *PermissionError) Unwrap() error {
	return ErrForbidden
}

// AttemptConflictError carries the stored attempt so clients can show its
// final state next to the 409.
type AttemptConflictError struct {
	Err     error
	Attempt interface{}
}

func (e *AttemptConflictError) Error() string {
	return e.Err.Error()
}

func (e *AttemptConflictError) Unwrap() error {
	return e.Err
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAttemptAccessDenied) ||
		errors.Is(err, ErrNotEnrolled)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	return apperrors.IsValidationError(err)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre) || errors.Is(err, ErrSchedulingConflict) || errors.Is(err, ErrQuizEmpty)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrQuizNotAvailable) ||
		errors.Is(err, ErrQuizHasAttempts) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptLimitReached) ||
		errors.Is(err, ErrAttemptNotGradable) ||
		errors.Is(err, ErrAttemptContention)
}
