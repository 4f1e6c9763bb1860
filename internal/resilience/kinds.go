package resilience

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrKind is the error taxonomy every component reports through, not a Go
// error type hierarchy: components return a plain error and a Kind so
// callers can decide retry/HTTP-status policy without type assertions.
type ErrKind string

const (
	// KindTransport covers connection refused, DNS, reset, timeout. Retriable.
	KindTransport ErrKind = "transport"
	// KindRateLimited covers a vendor 429 or a local rate-gate timeout.
	// Retriable after waiting.
	KindRateLimited ErrKind = "rate_limited"
	// KindProtectionDetected means a fetch produced a challenge page. Not a
	// breaker failure; surfaces as a scrape-stage partial result.
	KindProtectionDetected ErrKind = "protection_detected"
	// KindSchemaViolation means model output parsed as JSON but didn't
	// conform to the expected schema. Triggers one retry with adjusted
	// sampling.
	KindSchemaViolation ErrKind = "schema_violation"
	// KindDegeneration means the degeneration detector tripped. Triggers an
	// immediate retry, no back-off delay.
	KindDegeneration ErrKind = "degeneration"
	// KindUnavailableInput means a previous stage's row is missing. Surfaces
	// as 404 from the facade; never retried.
	KindUnavailableInput ErrKind = "unavailable_input"
	// KindExhausted means all retries were consumed; the queue entry moves
	// to failed.
	KindExhausted ErrKind = "exhausted"
	// KindFatalConfig means missing secrets, a schema compile failure, or an
	// unreachable database at startup. Aborts the process.
	KindFatalConfig ErrKind = "fatal_config"
)

// KindedError pairs an error with its taxonomy kind so a stage handler can
// decide fail_or_retry policy and a facade endpoint can decide HTTP status
// without re-deriving the kind from the error string.
type KindedError struct {
	Kind ErrKind
	Err  error
}

func (e *KindedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *KindedError) Unwrap() error { return e.Err }

// Wrap tags err with kind, wrapping with eris for a captured stack.
func Wrap(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindedError{Kind: kind, Err: eris.Wrap(err, string(kind))}
}

// WrapMsg tags a freshly created error with kind and msg.
func WrapMsg(kind ErrKind, msg string) error {
	return &KindedError{Kind: kind, Err: eris.New(msg)}
}

// KindOf extracts the taxonomy kind from err, defaulting to KindTransport
// when err carries no KindedError in its chain — most wrapped transport and
// I/O failures land here without ever having been explicitly classified.
func KindOf(err error) ErrKind {
	var ke *KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindTransport
}
