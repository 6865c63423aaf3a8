package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable).
// It is fatal to initialization.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConsistencyKind classifies a consistency fault.
type ConsistencyKind string

const (
	FaultNegativeCounter ConsistencyKind = "NEGATIVE_COUNTER"
	FaultUnknownAsset    ConsistencyKind = "UNKNOWN_ASSET"
	FaultBookMismatch    ConsistencyKind = "BOOK_MISMATCH"
	FaultSequenceGap     ConsistencyKind = "SEQUENCE_GAP"
	FaultCompositeSlot   ConsistencyKind = "COMPOSITE_INVENTORY"
)

// ConsistencyError reports local state that has drifted from the market,
// usually because an upstream event was duplicated, dropped or reordered.
// It is reported, never repaired in place: the fix is a resync from a full
// snapshot.
type ConsistencyError struct {
	Kind   ConsistencyKind
	Asset  string
	Detail string
}

func (e *ConsistencyError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("consistency fault %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("consistency fault %s [%s]: %s", e.Kind, e.Asset, e.Detail)
}

func (e *ConsistencyError) IsRetriable() bool {
	return false
}

// IsConsistencyFault reports whether err wraps a *ConsistencyError.
func IsConsistencyFault(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnknownAsset is returned when an asset name is not in the asset structure.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNestedETF is returned when an ETF lists another ETF as a component.
	ErrNestedETF = errors.New("nested composite asset")

	// ErrMalformedPayload is returned when a market message has the wrong shape.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInsufficientHoldings is returned when an order would need more than
	// the trader has available and shorting is not allowed.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
