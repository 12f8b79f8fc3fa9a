package pool

import (
	"bufio"
	"io"
	"sync"
)

// DefaultBufferSize is the size of pooled readers and writers.
const DefaultBufferSize = 32 * 1024

var (
	readerPool sync.Pool
	writerPool sync.Pool
)

// GetReader returns a bufio.Reader reading from r, taken from the pool when possible.
//
// Return the reader to the pool with PutReader.
func GetReader(r io.Reader) *bufio.Reader {
	if v := readerPool.Get(); v != nil {
		br, _ := v.(*bufio.Reader) // only *bufio.Reader is put into the pool
		br.Reset(r)
		return br
	}

	return bufio.NewReaderSize(r, DefaultBufferSize)
}

// PutReader returns br to the pool. br must not be used afterwards.
func PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil) // drop the reference to the source
	readerPool.Put(br)
}

// GetWriter returns a bufio.Writer writing to w, taken from the pool when possible.
//
// Return the writer to the pool with PutWriter.
func GetWriter(w io.Writer) *bufio.Writer {
	if v := writerPool.Get(); v != nil {
		bw, _ := v.(*bufio.Writer) // only *bufio.Writer is put into the pool
		bw.Reset(w)
		return bw
	}

	return bufio.NewWriterSize(w, DefaultBufferSize)
}

// PutWriter returns bw to the pool without flushing it. bw must not be used afterwards.
func PutWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	writerPool.Put(bw)
}
