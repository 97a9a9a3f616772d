package recognition

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// errEmptyResponse marks a provider reply with no usable body.
var errEmptyResponse = errors.New("empty response from provider")

// apiStatusError carries a provider's own status code and message.
type apiStatusError struct {
	Code    int64
	Message string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// ValidationError is a pre-flight rejection of an input for one
// backend. It is fatal only to that backend's attempt.
type ValidationError struct {
	Backend string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: input rejected: %s", e.Backend, e.Reason)
}

// UnavailableError means a backend could not be constructed: the name
// is unknown to the registry, or initialization rejected the
// credentials.
type UnavailableError struct {
	Name   string
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %q unavailable: %s", e.Name, e.Reason)
}

// TimeoutError means a backend attempt exceeded the configured
// per-attempt timeout. A result arriving after the timeout is
// discarded.
type TimeoutError struct {
	Backend string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: attempt timed out after %s", e.Backend, e.After)
}

// ProcessingError means the backend ran but failed: transport, auth,
// quota or a malformed provider response. The provider's own message
// is preserved.
type ProcessingError struct {
	Backend string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: processing failed: %v", e.Backend, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// AttemptError records one failed backend attempt, in attempt order.
type AttemptError struct {
	Backend string
	Err     error
}

// AllBackendsFailedError is raised only when every configured backend
// attempt produced an error and no candidate result exists. It is the
// single error the orchestrator propagates to its caller.
type AllBackendsFailedError struct {
	Attempts []AttemptError
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Backend, a.Err))
	}
	return fmt.Sprintf("all recognition backends failed: %s", strings.Join(parts, "; "))
}
