package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// Network covers transport failures, timeouts and non-2xx statuses.
	Network Kind = iota + 1
	// Decode covers responses that do not have the expected shape.
	Decode
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Decode:
		return "decode"
	}
	return "unknown"
}

// Error is returned by every Client call. Nothing is retried: callers decide
// how far a failure propagates.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a remote error of kind Network.
func IsNetwork(err error) bool {
	return kindOf(err) == Network
}

// IsDecode reports whether err is a remote error of kind Decode.
func IsDecode(err error) bool {
	return kindOf(err) == Decode
}

func kindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
