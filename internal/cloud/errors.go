// Package cloud provides HTTP clients for the reMarkable cloud: device
// pairing, session refresh, storage discovery, upload negotiation, blob
// transfer, and metadata registration. Every call is a single attempt;
// failures are classified into the sentinel errors below.
package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, cloud.ErrServiceRejected) to check.
var (
	ErrServiceUnreachable = errors.New("cloud: could not reach remarkable cloud")
	ErrServiceRejected    = errors.New("cloud: remarkable api sent us an error")
	ErrMalformedResponse  = errors.New("cloud: ill-shaped response that can't be parsed")
	ErrPrecondition       = errors.New("cloud: precondition failed")
	ErrSlotExpired        = fmt.Errorf("%w: upload slot expired", ErrPrecondition)
)

// maxErrorBody caps how much of a rejection body is kept for messages.
const maxErrorBody = 512

// RejectedError reports a response with a status other than 200. Status is
// the exact code received; Body is a truncated copy for diagnostics.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("cloud: HTTP %d: %s", e.Status, e.Body)
	}

	return fmt.Sprintf("cloud: HTTP %d", e.Status)
}

func (e *RejectedError) Unwrap() error {
	return ErrServiceRejected
}

// MalformedResponseError reports a 200 response whose body could not be
// decoded into the expected shape. RawBody is kept verbatim.
type MalformedResponseError struct {
	RawBody string
	Err     error // decode cause, may be nil
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cloud: malformed response (%v): %q", e.Err, e.RawBody)
	}

	return fmt.Sprintf("cloud: malformed response: %q", e.RawBody)
}

// Unwrap exposes both the sentinel and the decode cause.
func (e *MalformedResponseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedResponse, e.Err}
	}

	return []error{ErrMalformedResponse}
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}

	return string(b)
}
