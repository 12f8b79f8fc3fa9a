package capture

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/arloliu/go-katproxy/katcp"
)

// Filter restricts the events returned by a Reader. Zero fields match everything.
type Filter struct {
	SessionID  string
	Direction  *katcp.Direction
	Shape      *katcp.Shape
	FailedOnly bool
}

func (f *Filter) matches(event Event) bool {
	if f.SessionID != "" && event.SessionID != f.SessionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Shape != nil && event.Shape != *f.Shape {
		return false
	}
	if f.FailedOnly && !event.Failed() {
		return false
	}

	return true
}

// Reader streams events from a capture file.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a capture file and reads all of its events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &Reader{closer: f, decoder: newDecoder(f), filter: filter}, nil
}

// NewStreamReader reads events from r. Close is a no-op for stream readers.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	return &Reader{closer: io.NopCloser(nil), decoder: newDecoder(r), filter: filter}
}

// Next returns the next matching event, or io.EOF when the capture is exhausted.
// A capture truncated in the middle of an event returns io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}

			return Event{}, err
		}

		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.closer.Close()
}
