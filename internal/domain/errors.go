package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned when an account id does not resolve
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountInactive is returned when an operation requires an active account
	ErrAccountInactive = errors.New("account is inactive")
)

// AuthError means the token exchange with a broker failed
type AuthError struct {
	Broker     Broker
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s authentication failed (status %d): %v", e.Broker, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: %v", e.Broker, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means a balance or trade inquiry failed, either at the transport
// level or because the broker reported a business error code.
type FetchError struct {
	Broker     Broker
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s %s rejected: [%s] %s", e.Broker, e.Operation, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Broker, e.Operation, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s %s failed: %v", e.Broker, e.Operation, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizationError means a broker payload lacked or malformed a field
type NormalizationError struct {
	Field string
	Value string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// PersistenceError means a database write or commit failed
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
