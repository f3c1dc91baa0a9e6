package kafka

import "errors"

var (
	// ErrMalformedMessage marks a payload that cannot be decoded or validated.
	// Such messages are logged and dropped.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrBrokerTransient wraps broker and network failures that are retried after a short delay.
	ErrBrokerTransient = errors.New("broker transient error")
)

// PermanentError is a handler error that must not be retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent returns a permanent error.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is a PermanentError.
func IsPermanent(err error) bool {
	var pe PermanentError
	return errors.As(err, &pe)
}
