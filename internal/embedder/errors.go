package embedder

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorClass partitions provider failures by how the client must react.
type ErrorClass int

const (
	// ClassTransient covers rate limits, timeouts, and 5xx responses — the
	// same batch is retried with exponential backoff.
	ClassTransient ErrorClass = iota
	// ClassAuth covers authentication/authorization failures — never retried.
	ClassAuth
	// ClassMalformed covers rejected input (4xx other than auth/rate-limit) —
	// never retried.
	ClassMalformed
)

// ProviderError is a single failed call to an embedding provider, classified
// from the provider's reported status.
type ProviderError struct {
	// Status is the HTTP (or API) status code reported by the provider.
	Status int
	// Message is the provider's error message, if any.
	Message string
	// Class determines retry eligibility.
	Class ErrorClass
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("embedder: provider returned status %d", e.Status)
	}
	return fmt.Sprintf("embedder: provider returned status %d: %s", e.Status, e.Message)
}

// Transient reports whether the failure is eligible for retry.
func (e *ProviderError) Transient() bool { return e.Class == ClassTransient }

// classifyStatus maps a provider status code to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return ClassTransient
	case status >= 500:
		return ClassTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	default:
		return ClassMalformed
	}
}

// ServiceError is the terminal failure of one batch: either retries were
// exhausted on a transient condition, or a non-retryable failure occurred.
// Batch identifies which partition failed so ingestion can resume from it.
type ServiceError struct {
	// Batch is the zero-based index of the failing batch within the call.
	Batch int
	// Attempts is how many provider calls were made for this batch.
	Attempts int
	// Err is the last underlying failure.
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedder: batch %d failed after %d attempt(s): %v", e.Batch, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsTransient reports whether err represents a condition worth retrying:
// a transient provider error, a per-call timeout, or a network-level failure.
func IsTransient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient()
	}
	if errors.Is(err, errCallTimeout) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// errCallTimeout marks a provider call abandoned by the per-call timeout.
// The sentinel keeps it distinguishable from the caller's own deadline.
var errCallTimeout = errors.New("embedder: provider call timed out")
