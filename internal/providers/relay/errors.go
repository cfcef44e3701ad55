package relay

import (
	"errors"
	"fmt"
)

// ErrAuthFailed means both authentication mechanisms were rejected by the
// server. Terminal for the send; the client never falls back to an
// unauthenticated session.
var ErrAuthFailed = errors.New("relay: authentication failed")

// ProtocolError is a command the server rejected with a non-success status
// class. The server's literal response line is preserved for diagnostics.
// Protocol errors are not retried.
type ProtocolError struct {
	Cmd  string
	Code int
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("relay: %s rejected: %d %s", e.Cmd, e.Code, e.Line)
}

// ConnectionError is a socket or TLS level failure (dial, handshake, read,
// write). These may be retried by the caller within its own bounds.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relay: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err originated at the socket/TLS layer
// rather than from a server rejection.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
