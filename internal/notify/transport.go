// Package notify fans notifications out to session participants over SMS
// and in-app channels. Each recipient is handled independently: one bad
// phone number or transport error never aborts the batch, and every input
// recipient is accounted for as either sent or skipped-with-reason.
package notify

import "context"

// Transport is the outbound SMS capability. Implementations return a
// provider delivery id on success.
type Transport interface {
	Send(ctx context.Context, to, body string) (id string, err error)

	// Configured reports whether the transport has credentials and a
	// sender number. An unconfigured transport makes the dispatcher skip
	// with an explicit reason instead of erroring.
	Configured() bool
}

// retryableError wraps a transport error that is worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// isRetryable reports whether err (anywhere in its chain) is retryable.
func isRetryable(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return false
}
