package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/katcp"
)

// buildFilter converts the command line flags into a capture filter.
func buildFilter(sessionID, direction, shape string, failedOnly bool) (capture.Filter, error) {
	filter := capture.Filter{SessionID: sessionID, FailedOnly: failedOnly}

	if direction != "" {
		d, err := katcp.ParseDirection(direction)
		if err != nil {
			return capture.Filter{}, err
		}
		filter.Direction = &d
	}

	if shape != "" {
		s, err := katcp.ParseShape(shape)
		if err != nil {
			return capture.Filter{}, err
		}
		filter.Shape = &s
	}

	return filter, nil
}

// printEvents writes every event of r to w and returns how many were printed.
func printEvents(r *capture.Reader, w io.Writer) (int, error) {
	count := 0
	for {
		event, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}

			return count, err
		}

		formatEvent(w, event)
		count++
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event capture.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	status := "ok"
	if event.Failed() {
		status = "FAILED"
	}

	fmt.Fprintf(w, "%s [sess:%s] %s #%d %s %s\n",
		ts, shortenID(event.SessionID), event.Direction, event.Seq, event.Shape, status)
	fmt.Fprintf(w, "  In:  %s\n", formatLine(event.In))
	if len(event.Out) > 0 {
		fmt.Fprintf(w, "  Out: %s\n", formatLine(event.Out))
	}
	if event.Failed() {
		fmt.Fprintf(w, "  Error: %s\n", event.Error)
	}

	fmt.Fprintln(w)
}

// formatLine quotes text lines and hex dumps lines carrying binary bytes.
func formatLine(line []byte) string {
	if utf8.Valid(line) {
		return strconv.Quote(string(line))
	}

	return fmt.Sprintf("(%d bytes) %s", len(line), hex.EncodeToString(line))
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}

	return id
}
