package trainstore

import (
	"errors"
	"fmt"
)

// ErrCorruptModel matches every [*CorruptModelError] via errors.Is.
var ErrCorruptModel = errors.New("trainstore: corrupt model")

// CorruptModelError reports stored training data that could not be decoded.
type CorruptModelError struct {
	// Key is the affected set. It is zero when the error comes straight
	// from [Unmarshal].
	Key Key

	// Reason describes what was wrong, e.g. "checksum mismatch".
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

// Error implements error.
func (e *CorruptModelError) Error() string {
	msg := "trainstore: corrupt model"
	if e.Key != (Key{}) {
		msg += " " + e.Key.String()
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CorruptModelError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorruptModel) succeed.
func (e *CorruptModelError) Is(target error) bool { return target == ErrCorruptModel }

// WithKey returns err with the key filled in when err is a
// [*CorruptModelError]; other errors are returned unchanged.
func WithKey(err error, key Key) error {
	var ce *CorruptModelError
	if errors.As(err, &ce) {
		cp := *ce
		cp.Key = key
		return &cp
	}
	return err
}

func corruptf(format string, args ...any) error {
	return &CorruptModelError{Reason: fmt.Sprintf(format, args...)}
}
