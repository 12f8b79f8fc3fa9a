package katcp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DeviceToClient converts one device form line into its client form.
//
// Read replies and write requests get their trailing raw payload base64 encoded with the
// standard alphabet and padding. Any other line must be valid UTF-8 and is returned
// unchanged. An empty line is an opaque line and yields an empty string.
//
// The register name and offset tokens of a write request are copied verbatim; they are
// expected to be plain ASCII without embedded spaces.
func DeviceToClient(line []byte) (string, error) {
	switch Classify(line) {
	case ShapeReadReply:
		payload := line[len(readReplyPrefix):]

		var sb strings.Builder
		sb.Grow(len(readReplyPrefix) + base64.StdEncoding.EncodedLen(len(payload)))
		sb.WriteString(readReplyPrefix)
		writeBase64(&sb, payload)

		return sb.String(), nil

	case ShapeWriteRequest:
		return writeRequestToClient(line)

	default:
		if !utf8.Valid(line) {
			return "", newLineError(DeviceToClientDir, ShapeOpaque, -1, ErrInvalidUTF8)
		}

		return string(line), nil
	}
}

// writeRequestToClient splits "?write <name> <offset> <payload>" at the first two spaces
// following the prefix. Everything after the second space is payload, even when it
// contains further spaces.
func writeRequestToClient(line []byte) (string, error) {
	rest := line[len(writeRequestPrefix):]

	name, rest, found := bytes.Cut(rest, []byte{' '})
	if !found {
		return "", newLineError(DeviceToClientDir, ShapeWriteRequest, 1, ErrMissingToken)
	}

	offset, payload, found := bytes.Cut(rest, []byte{' '})
	if !found {
		return "", newLineError(DeviceToClientDir, ShapeWriteRequest, 2, ErrMissingToken)
	}

	if !utf8.Valid(name) {
		return "", newLineError(DeviceToClientDir, ShapeWriteRequest, 1, ErrInvalidUTF8)
	}
	if !utf8.Valid(offset) {
		return "", newLineError(DeviceToClientDir, ShapeWriteRequest, 2, ErrInvalidUTF8)
	}

	var sb strings.Builder
	sb.Grow(len(writeRequestPrefix) + len(name) + len(offset) + 2 + base64.StdEncoding.EncodedLen(len(payload)))
	sb.WriteString(writeRequestPrefix)
	sb.Write(name)
	sb.WriteByte(' ')
	sb.Write(offset)
	sb.WriteByte(' ')
	writeBase64(&sb, payload)

	return sb.String(), nil
}

func writeBase64(sb *strings.Builder, payload []byte) {
	if len(payload) == 0 {
		return
	}

	enc := base64.NewEncoder(base64.StdEncoding, sb)
	_, _ = enc.Write(payload) // strings.Builder never fails
	_ = enc.Close()
}

// ClientToDevice converts one client form line into its device form.
//
// The line is split on single spaces. A line whose first token is "!read" becomes
// "!read ok " followed by the base64 decoded third token; the second token, normally
// "ok", is not inspected. A line whose first token is "?write" becomes
// "?write <name> <offset> " followed by the base64 decoded fourth token. Tokens past the
// payload token are ignored. Any other line is returned unchanged.
//
// The line must be valid UTF-8.
func ClientToDevice(line string) ([]byte, error) {
	if !utf8.ValidString(line) {
		return nil, newLineError(ClientToDeviceDir, ClassifyClient(line), -1, ErrInvalidUTF8)
	}

	tokens := strings.SplitN(line, " ", 5)

	switch tokens[0] {
	case readReplyName:
		if len(tokens) < 3 {
			return nil, newLineError(ClientToDeviceDir, ShapeReadReply, len(tokens), ErrMissingToken)
		}

		out := make([]byte, len(readReplyPrefix), len(readReplyPrefix)+base64.StdEncoding.DecodedLen(len(tokens[2])))
		copy(out, readReplyPrefix)

		return appendBase64(out, tokens[2], ShapeReadReply, 2)

	case writeRequestName:
		if len(tokens) < 4 {
			return nil, newLineError(ClientToDeviceDir, ShapeWriteRequest, len(tokens), ErrMissingToken)
		}

		name, offset := tokens[1], tokens[2]
		out := make([]byte, 0, len(writeRequestPrefix)+len(name)+len(offset)+2+base64.StdEncoding.DecodedLen(len(tokens[3])))
		out = append(out, writeRequestPrefix...)
		out = append(out, name...)
		out = append(out, ' ')
		out = append(out, offset...)
		out = append(out, ' ')

		return appendBase64(out, tokens[3], ShapeWriteRequest, 3)

	default:
		return []byte(line), nil
	}
}

func appendBase64(dst []byte, text string, shape Shape, token int) ([]byte, error) {
	// encoding/base64 skips '\r' and '\n' while decoding
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		err := fmt.Errorf("%w: line break at input byte %d", ErrInvalidBase64, i)
		return nil, newLineError(ClientToDeviceDir, shape, token, err)
	}

	start := len(dst)
	dst = dst[:start+base64.StdEncoding.DecodedLen(len(text))]

	n, err := base64.StdEncoding.Decode(dst[start:], []byte(text))
	if err != nil {
		return nil, newLineError(ClientToDeviceDir, shape, token, fmt.Errorf("%w: %w", ErrInvalidBase64, err))
	}

	return dst[:start+n], nil
}
