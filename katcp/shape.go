package katcp

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	readReplyPrefix    = "!read ok "
	writeRequestPrefix = "?write "

	readReplyName    = "!read"
	writeRequestName = "?write"
)

// Shape classifies a protocol line.
type Shape uint8

const (
	// ShapeOpaque is any line without a binary payload. It is relayed unchanged.
	ShapeOpaque Shape = iota
	// ShapeReadReply is a "!read ok <payload>" line.
	ShapeReadReply
	// ShapeWriteRequest is a "?write <name> <offset> <payload>" line.
	ShapeWriteRequest
)

func (s Shape) String() string {
	switch s {
	case ShapeOpaque:
		return "opaque"
	case ShapeReadReply:
		return "read-reply"
	case ShapeWriteRequest:
		return "write-request"
	default:
		return "unknown"
	}
}

// ParseShape converts a shape name as returned by Shape.String to a Shape.
func ParseShape(name string) (Shape, error) {
	for _, s := range []Shape{ShapeOpaque, ShapeReadReply, ShapeWriteRequest} {
		if s.String() == name {
			return s, nil
		}
	}

	return 0, fmt.Errorf("unknown shape %q", name)
}

// HasPayload reports whether lines of shape s carry a binary payload.
func (s Shape) HasPayload() bool {
	return s == ShapeReadReply || s == ShapeWriteRequest
}

// Classify returns the shape of a device form line.
func Classify(line []byte) Shape {
	switch {
	case bytes.HasPrefix(line, []byte(readReplyPrefix)):
		return ShapeReadReply
	case bytes.HasPrefix(line, []byte(writeRequestPrefix)):
		return ShapeWriteRequest
	default:
		return ShapeOpaque
	}
}

// ClassifyClient returns the shape of a client form line, using the first space
// separated token like ClientToDevice does.
func ClassifyClient(line string) Shape {
	name, _, _ := strings.Cut(line, " ")
	switch name {
	case readReplyName:
		return ShapeReadReply
	case writeRequestName:
		return ShapeWriteRequest
	default:
		return ShapeOpaque
	}
}
