package types

import (
	"errors"
	"time"
)

// ErrReadTimeout is returned by Transport.Read when no bytes arrive before the timeout
var ErrReadTimeout = errors.New("transport read timeout")

// Transport is the byte stream to an interactive device shell.
// Implementations deliver bytes in order with no message framing.
type Transport interface {
	// Write sends raw bytes to the shell
	Write(p []byte) error

	// Read returns the next chunk of output. It returns ErrReadTimeout when nothing
	// arrived within timeout and io.EOF once the stream is closed.
	Read(timeout time.Duration) ([]byte, error)

	// Close tears down the stream
	Close() error
}
