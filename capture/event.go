package capture

import (
	"time"

	"github.com/arloliu/go-katproxy/katcp"
)

// Event is one relayed line. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the line was written to the destination peer, or when it failed.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the relay session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction of the line.
	Direction katcp.Direction `cbor:"3,keyasint"`

	// Shape of the line as read from the source peer.
	Shape katcp.Shape `cbor:"4,keyasint"`

	// Seq is the line number within the session and direction, starting at 1.
	Seq uint64 `cbor:"5,keyasint"`

	// In holds the line read from the source peer, terminator stripped.
	In []byte `cbor:"6,keyasint,omitempty"`

	// Out holds the converted line written to the destination peer, terminator excluded.
	Out []byte `cbor:"7,keyasint,omitempty"`

	// Error is set when the line could not be converted or written.
	Error string `cbor:"8,keyasint,omitempty"`
}

// Failed reports whether the event records a failed line.
func (e Event) Failed() bool {
	return e.Error != ""
}
