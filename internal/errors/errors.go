package errors

import (
	"errors"
	"fmt"
)

// Category classifies every error the engine can surface. The split matters
// operationally: only connectivity errors are ever retried, and each terminal
// category maps to exactly one session outcome.
type Category string

const (
	// Fatal at startup, never recoverable at runtime.
	CategoryConfiguration Category = "CONFIG"

	// Malformed or non-monotonic tick; the tick is dropped, the session continues.
	CategoryDataQuality Category = "DATA_QUALITY"

	// Terminal for the current order attempt, never retried with relaxed parameters.
	CategoryRiskBudget        Category = "RISK_BUDGET"
	CategoryRiskRatio         Category = "RISK_RATIO"
	CategoryConstraint        Category = "CONSTRAINT"
	CategoryBrokerRejection   Category = "BROKER_REJECTION"

	// Broker or feed unreachable; retried with backoff for reads only.
	CategoryConnectivity Category = "CONNECTIVITY"
)

// TradingError is a categorized error with component/operation context.
type TradingError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
}

func (e *TradingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *TradingError) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether the operation that produced this error may be
// attempted again. Only connectivity failures qualify; order placement is
// never retried regardless of category.
func (e *TradingError) Retryable() bool {
	return e.Category == CategoryConnectivity
}

// Fatal reports whether the process should stop rather than continue trading.
func (e *TradingError) Fatal() bool {
	return e.Category == CategoryConfiguration
}

// New creates a categorized error.
func New(category Category, component, operation, message string) *TradingError {
	return &TradingError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap attaches category and context to an existing error.
func Wrap(err error, category Category, component, operation string) *TradingError {
	if err == nil {
		return nil
	}
	return &TradingError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// CategoryOf extracts the category from err, or empty when err is not a
// TradingError.
func CategoryOf(err error) Category {
	var te *TradingError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// Is reports whether err carries the given category.
func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}

func NewConfigurationError(component, message string) *TradingError {
	return New(CategoryConfiguration, component, "validate", message)
}

func NewDataQualityError(component, message string) *TradingError {
	return New(CategoryDataQuality, component, "observe", message)
}

func NewInsufficientRiskBudget(component, message string) *TradingError {
	return New(CategoryRiskBudget, component, "size", message)
}

func NewRiskRatioDistorted(component, message string) *TradingError {
	return New(CategoryRiskRatio, component, "normalize", message)
}

func NewConstraintViolation(component, message string) *TradingError {
	return New(CategoryConstraint, component, "normalize", message)
}

func NewBrokerRejection(component, reason string) *TradingError {
	return New(CategoryBrokerRejection, component, "place_order", reason)
}

func NewConnectivityFailure(component, operation string, err error) *TradingError {
	return Wrap(err, CategoryConnectivity, component, operation)
}
