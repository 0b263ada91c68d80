// Package errors implements the closed error taxonomy every venue adapter
// and downstream service maps into. Wire codes are stable; see spec §7.
package errors

import "fmt"

// Code is one of the closed taxonomy values from spec §7. No adapter may
// surface an error outside this set.
type Code string

const (
	AuthError          Code = "AUTH_ERROR"
	PermissionError    Code = "PERMISSION_ERROR"
	ValidationError    Code = "VALIDATION_ERROR"
	RateLimitError     Code = "RATE_LIMIT_ERROR"
	NetworkError       Code = "NETWORK_ERROR"
	VenueError         Code = "VENUE_ERROR"
	InsufficientBalance Code = "INSUFFICIENT_BALANCE_ERROR"
	InvalidSymbol      Code = "INVALID_SYMBOL_ERROR"
	SlippageError      Code = "SLIPPAGE_ERROR"
	BreakerOpenError   Code = "BREAKER_OPEN_ERROR"
	NotFound           Code = "NOT_FOUND"
	InternalError      Code = "INTERNAL_ERROR"
)

// retryable classifies which codes the reliability envelope's retry loop
// is allowed to re-attempt (spec §4.1 point 3, §7 table).
var retryable = map[Code]bool{
	RateLimitError: true,
	NetworkError:   true,
	VenueError:     true,
}

func (c Code) Retryable() bool { return retryable[c] }

// Err is the structured error every adapter and public entry point returns.
// Cause is kept for internal logging only and must never be rendered into
// a wire response (spec §7 "the raw cause never appears outside the
// process").
type Err struct {
	Code      Code
	Message   string
	RequestID string
	Retries   int
	Cause     error
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Err) Unwrap() error { return e.Cause }

func New(code Code, message string) *Err {
	return &Err{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Err {
	return &Err{Code: code, Message: message, Cause: cause}
}

func (e *Err) Retryable() bool { return e.Code.Retryable() }

// WithRequestID returns a copy of e carrying the given request id, used by
// the API front when rendering the {code, message, requestId} envelope.
func (e *Err) WithRequestID(id string) *Err {
	cp := *e
	cp.RequestID = id
	return &cp
}

// WithRetries returns a copy of e recording how many retries were spent
// before it surfaced (spec §7 "surface to the caller with the retry count
// attached").
func (e *Err) WithRetries(n int) *Err {
	cp := *e
	cp.Retries = n
	return &cp
}

// As extracts an *Err from err if present.
func As(err error) (*Err, bool) {
	e, ok := err.(*Err)
	return e, ok
}
