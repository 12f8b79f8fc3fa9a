package relay

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

// FuzzLineReader compares the line reader with a plain split on '\n', reading the input
// one byte at a time to exercise partial reads.
func FuzzLineReader(f *testing.F) {
	f.Add([]byte("?help\n?watchdog\r\n"))
	f.Add([]byte("!read ok \xde\xad\r\xbe\xef\nlast"))
	f.Add([]byte("\n\n\r\n"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, input []byte) {
		var want [][]byte
		for _, line := range bytes.Split(input, []byte("\n")) {
			want = append(want, bytes.TrimSuffix(line, []byte("\r")))
		}
		// the reference split yields an empty element after a final terminator,
		// and a final unterminated line keeps its '\r'
		if len(input) == 0 || input[len(input)-1] == '\n' {
			want = want[:len(want)-1]
		} else {
			parts := bytes.Split(input, []byte("\n"))
			want[len(want)-1] = parts[len(parts)-1]
		}

		lr := newLineReader(iotest.OneByteReader(bytes.NewReader(input)), len(input)+64)
		defer lr.release()

		var got [][]byte
		for {
			line, err := lr.ReadLine()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("ReadLine: %v", err)
			}
			got = append(got, append([]byte(nil), line...))
		}

		if len(got) != len(want) {
			t.Fatalf("got %d lines, want %d", len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
			}
		}
	})
}
