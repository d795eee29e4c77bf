package outgoing

import (
	"errors"
	"fmt"
)

// ErrMatchTimeout means the dispatch apparently succeeded but no matching
// row appeared in the database within the window. Not retried: retrying a
// blind send risks a duplicate message.
var ErrMatchTimeout = errors.New("no matching message appeared before the deadline")

// ErrDuplicateToken means a send with the same correlation token is still
// in flight.
var ErrDuplicateToken = errors.New("a send with this correlation token is already in flight")

// NativeSendError reports that a matching row appeared but carries a
// non-zero error code from the messaging subsystem.
type NativeSendError struct {
	Code int
	GUID string
}

func (e *NativeSendError) Error() string {
	return fmt.Sprintf("message %s recorded with native error code %d", e.GUID, e.Code)
}
