package capture

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"

	"github.com/arloliu/go-katproxy/logger"
)

// LogRecorder writes events to a logger: relayed lines at debug level, failed lines at warn level.
//
// Unlike the relay's own debug logs, which only carry line sizes, it logs the line content.
// Text is quoted and binary lines are hex encoded.
type LogRecorder struct {
	logger logger.Logger
}

// NewLogRecorder creates a LogRecorder writing to l.
func NewLogRecorder(l logger.Logger) *LogRecorder {
	return &LogRecorder{logger: l}
}

// Record logs the event.
func (r *LogRecorder) Record(event Event) {
	kv := []any{
		"sessionID", event.SessionID,
		"direction", event.Direction.String(),
		"shape", event.Shape.String(),
		"seq", event.Seq,
		"in", printableLine(event.In),
	}

	if event.Failed() {
		r.logger.Warn("capture line failed", append(kv, "error", event.Error)...)
		return
	}

	r.logger.Debug("capture line", append(kv, "out", printableLine(event.Out))...)
}

func printableLine(line []byte) string {
	if utf8.Valid(line) {
		return strconv.Quote(string(line))
	}

	return "hex:" + hex.EncodeToString(line)
}

var _ Recorder = (*LogRecorder)(nil)
