package katcp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUTF8 indicates that a line which must be interpreted as text is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("line is not valid UTF-8")

	// ErrInvalidBase64 indicates that the payload of a client form line is not valid standard base64.
	ErrInvalidBase64 = errors.New("payload is not valid base64")

	// ErrMissingToken indicates that a payload carrying line lacks one of its space separated tokens.
	ErrMissingToken = errors.New("missing token")
)

// Direction identifies which way a line is converted.
type Direction uint8

const (
	// DeviceToClientDir converts device form lines to client form.
	DeviceToClientDir Direction = iota
	// ClientToDeviceDir converts client form lines to device form.
	ClientToDeviceDir
)

func (d Direction) String() string {
	switch d {
	case DeviceToClientDir:
		return "device->client"
	case ClientToDeviceDir:
		return "client->device"
	default:
		return "unknown"
	}
}

// ParseDirection converts "device->client" or "client->device" to a Direction.
func ParseDirection(name string) (Direction, error) {
	switch name {
	case "device->client":
		return DeviceToClientDir, nil
	case "client->device":
		return ClientToDeviceDir, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", name)
	}
}

// LineError describes a line that could not be converted.
//
// It wraps one of ErrInvalidUTF8, ErrInvalidBase64 or ErrMissingToken, so callers can test
// the failure kind with errors.Is.
type LineError struct {
	Direction Direction
	Shape     Shape
	// Token is the zero based index of the missing or malformed token, or -1 when the
	// failure concerns the whole line.
	Token int
	Err   error
}

func (e *LineError) Error() string {
	if e.Token < 0 {
		return fmt.Sprintf("%s %s line: %v", e.Direction, e.Shape, e.Err)
	}

	return fmt.Sprintf("%s %s line: token %d: %v", e.Direction, e.Shape, e.Token, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

func newLineError(dir Direction, shape Shape, token int, err error) *LineError {
	return &LineError{Direction: dir, Shape: shape, Token: token, Err: err}
}
