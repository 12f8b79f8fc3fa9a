package relay

import (
	"bufio"
	"errors"
	"io"

	"github.com/arloliu/go-katproxy/internal/pool"
)

// lineReader splits a byte stream into '\n' terminated lines.
//
// The terminator, and a '\r' right before it, are stripped from every line. Line content
// is opaque: payload bytes, including '\r', ' ' and invalid UTF-8, are kept as they are.
//
// lineReader is NOT goroutine-safe; each pump owns one.
type lineReader struct {
	br      *bufio.Reader
	maxSize int
	buf     []byte
}

func newLineReader(r io.Reader, maxSize int) *lineReader {
	return &lineReader{br: pool.GetReader(r), maxSize: maxSize}
}

// ReadLine returns the next line without its terminator.
//
// The returned slice is only valid until the next call. A final line that is not terminated
// before end of stream is returned as is, and the following call reports io.EOF. Lines
// longer than maxSize fail with ErrLineTooLong; the reader is unusable afterwards.
func (lr *lineReader) ReadLine() ([]byte, error) {
	lr.buf = lr.buf[:0]

	for {
		chunk, err := lr.br.ReadSlice('\n')

		switch {
		case err == nil:
			line := chunk
			if len(lr.buf) > 0 {
				lr.buf = append(lr.buf, chunk...)
				line = lr.buf
			}

			line = trimTerminator(line)
			if len(line) > lr.maxSize {
				return nil, ErrLineTooLong
			}

			return line, nil

		case errors.Is(err, bufio.ErrBufferFull):
			// incomplete line, keep accumulating
			lr.buf = append(lr.buf, chunk...)
			if len(lr.buf) > lr.maxSize+1 {
				return nil, ErrLineTooLong
			}

		case errors.Is(err, io.EOF):
			lr.buf = append(lr.buf, chunk...)
			if len(lr.buf) == 0 {
				return nil, io.EOF
			}
			if len(lr.buf) > lr.maxSize {
				return nil, ErrLineTooLong
			}

			return lr.buf, nil

		default:
			return nil, err
		}
	}
}

// release returns the buffered reader to the pool. The lineReader must not be used afterwards.
func (lr *lineReader) release() {
	pool.PutReader(lr.br)
	lr.br = nil
	lr.buf = nil
}

func trimTerminator(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}

	return line[:n]
}
