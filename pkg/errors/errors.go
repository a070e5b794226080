package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork covers timeouts, refused connections and non-success statuses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing covers malformed XML or JSON
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeValidation covers well-formed payloads missing required data
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeRateLimit represents a host that asked us to slow down
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeStorage represents snapshot store failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError is the error carried out of every pipeline stage.
type CrawlerError struct {
	Type    ErrorType
	Target  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Target == "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Target, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Target, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// New creates a new CrawlerError
func New(errType ErrorType, target, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:    errType,
		Target:  target,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(target, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, target, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(target, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, target, message, err)
}

// NewValidation creates a new validation error
func NewValidation(target, message string) *CrawlerError {
	return New(ErrorTypeValidation, target, message, nil)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(target string, duration time.Duration) *CrawlerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, target, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType of the first CrawlerError in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// Is reports whether err carries a CrawlerError of the given type.
func Is(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsFatal returns true for errors that must stop the process before work begins.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeStorage, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}
