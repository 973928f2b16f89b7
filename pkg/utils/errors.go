package utils

import (
	"fmt"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	// Missing lists the feature names that could not be populated
	Missing []string `json:"missing,omitempty"`
}

func NewAppError(code string, message string, details ...string) *AppError {
	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes returned in the response envelope
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeFeatureIncomplete = "FEATURE_INCOMPLETE"
	ErrCodeDataUnavailable   = "DATA_UNAVAILABLE"
	ErrCodeModelUnavailable  = "MODEL_UNAVAILABLE"
	ErrCodeUnknownStatistic  = "UNKNOWN_STATISTIC"
	ErrCodeBacktestFailed    = "BACKTEST_FAILED"
)
