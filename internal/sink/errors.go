package sink

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Offer and Flush once Close has begun.
var ErrClosed = errors.New("sink closed")

// ErrorKind classifies a delivery outcome.
type ErrorKind string

const (
	// KindRetriableRemote is a well-formed remote response worth another
	// attempt: 429 and the 5xx class.
	KindRetriableRemote ErrorKind = "retriable_remote"
	// KindNonRetriableRemote is a well-formed remote response that is never
	// retried, such as a 400 for a malformed payload.
	KindNonRetriableRemote ErrorKind = "non_retriable_remote"
	// KindTransportIO is a connection, timeout, or protocol failure that
	// prevented a response from being obtained.
	KindTransportIO ErrorKind = "transport_io"
	// KindRetryBudgetExhausted is the terminal form of KindRetriableRemote
	// once no retry budget remains.
	KindRetryBudgetExhausted ErrorKind = "retry_budget_exhausted"
)

// classifyOutcome maps a failed delivery outcome to its error kind. The
// mapping depends only on the outcome, so identical outcomes always
// classify identically.
func classifyOutcome(o Outcome) ErrorKind {
	if o.IOFailure() {
		return KindTransportIO
	}
	if retriableStatus(o.StatusCode) {
		return KindRetriableRemote
	}
	return KindNonRetriableRemote
}

// OnErrorBehavior decides how a terminal delivery error is resolved.
type OnErrorBehavior int

const (
	// Fail stops the sink and surfaces the error to the caller. The default
	// for every error kind.
	Fail OnErrorBehavior = iota
	// DiscardAndContinue drops the failed batch, records the loss, and lets
	// the next batch proceed.
	DiscardAndContinue
)

// String returns the configuration form of the behavior.
func (b OnErrorBehavior) String() string {
	if b == DiscardAndContinue {
		return "discard_and_continue"
	}
	return "fail"
}

// ParseOnErrorBehavior parses a behavior from its configuration form. An
// empty string means Fail.
func ParseOnErrorBehavior(s string) (OnErrorBehavior, error) {
	switch s {
	case "", "fail":
		return Fail, nil
	case "discard_and_continue", "discard":
		return DiscardAndContinue, nil
	default:
		return Fail, fmt.Errorf("unknown error handling behavior %q", s)
	}
}

// ErrorHandlingConfig maps each terminal error kind to a behavior. The zero
// value fails on everything.
type ErrorHandlingConfig struct {
	// OnMaxRetryExceeded applies when the retry budget runs out on
	// retriable remote responses.
	OnMaxRetryExceeded OnErrorBehavior
	// OnHTTPClientIOFail applies when the retry budget runs out on
	// transport I/O failures.
	OnHTTPClientIOFail OnErrorBehavior
	// OnNonRetriableError applies to remote responses that are never
	// retried.
	OnNonRetriableError OnErrorBehavior
}

// For returns the configured behavior for a terminal error kind.
func (c ErrorHandlingConfig) For(kind ErrorKind) OnErrorBehavior {
	switch kind {
	case KindRetryBudgetExhausted:
		return c.OnMaxRetryExceeded
	case KindTransportIO:
		return c.OnHTTPClientIOFail
	case KindNonRetriableRemote:
		return c.OnNonRetriableError
	default:
		return Fail
	}
}

// DeliveryError is the terminal error for one batch. It identifies the
// batch, the error kind, and how many attempts were made.
type DeliveryError struct {
	// BatchID identifies the failed batch in logs.
	BatchID string
	// Kind is the terminal error kind.
	Kind ErrorKind
	// StatusCode is the last remote status, zero for transport failures.
	StatusCode int
	// Attempts is the number of delivery attempts made.
	Attempts int
	// Samples is the number of samples lost with the batch.
	Samples int
	// Message is an excerpt of the last remote error response, if any.
	Message string
	// Err is the last transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("remote write batch %s: %s after %d attempt(s), %d samples lost",
		e.BatchID, e.Kind, e.Attempts, e.Samples)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying transport error for errors.Is/As support.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// OversizedRecordError reports a record whose sample count exceeds the
// configured per-record limit. The record is rejected whole, never split.
type OversizedRecordError struct {
	// Samples is the sample count of the rejected record.
	Samples int
	// Limit is the configured per-record sample limit.
	Limit int
}

// Error implements the error interface.
func (e *OversizedRecordError) Error() string {
	return fmt.Sprintf("record of %d samples exceeds the %d sample record limit", e.Samples, e.Limit)
}

// SignerError reports a request signing failure. Signing failures indicate
// structural misconfiguration, not a transient remote condition, so they
// stop the sink without retry.
type SignerError struct {
	Err error
}

// Error implements the error interface.
func (e *SignerError) Error() string {
	return "request signing failed: " + e.Err.Error()
}

// Unwrap returns the underlying signer error.
func (e *SignerError) Unwrap() error {
	return e.Err
}
