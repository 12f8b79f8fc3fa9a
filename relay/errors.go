package relay

import "errors"

var (
	// ErrConfigNil indicates that a nil ServerConfig was provided.
	ErrConfigNil = errors.New("server config is nil")

	// ErrLineTooLong indicates that a peer sent a line longer than the configured maximum line size.
	ErrLineTooLong = errors.New("line exceeds maximum line size")

	// ErrServerClosed is returned by Server.Serve after Server.Close has been called.
	ErrServerClosed = errors.New("server closed")

	// ErrSessionStarted is returned when Session.Run is called on a session that already ran or was closed.
	ErrSessionStarted = errors.New("session already started or closed")

	// ErrCloseTimeout indicates that tasks did not terminate within the close timeout.
	ErrCloseTimeout = errors.New("close timeout")
)
