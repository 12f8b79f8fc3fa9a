package capture

import (
	"bufio"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileRecorder appends events to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileRecorder struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *cbor.Encoder
	closed  bool
	errs    uint64
}

// NewFileRecorder opens path for appending, creating it with permissions 0644 when it
// doesn't exist.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(f)

	return &FileRecorder{
		file:    f,
		buf:     buf,
		encoder: newEncoder(buf),
	}, nil
}

// Record encodes the event and flushes it to the file.
//
// Encoding or write failures are counted, not returned: capture must not disturb the relay.
func (r *FileRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if err := r.encoder.Encode(event); err != nil {
		r.errs++
		return
	}
	if err := r.buf.Flush(); err != nil {
		r.errs++
	}
}

// Errors returns the number of events that failed to be written.
func (r *FileRecorder) Errors() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.errs
}

// Close flushes and closes the file. It is safe to call Close multiple times;
// events recorded after Close are dropped.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.buf.Flush()
	if err := r.file.Close(); err != nil {
		return err
	}

	return flushErr
}

var _ Recorder = (*FileRecorder)(nil)
