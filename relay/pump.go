package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/internal/pool"
	"github.com/arloliu/go-katproxy/katcp"
	"github.com/arloliu/go-katproxy/logger"
)

// transformFunc converts one line and reports the shape it recognized.
type transformFunc func(line []byte) ([]byte, katcp.Shape, error)

func deviceToClient(line []byte) ([]byte, katcp.Shape, error) {
	text, err := katcp.DeviceToClient(line)
	if err != nil {
		return nil, katcp.Classify(line), err
	}

	return []byte(text), katcp.Classify(line), nil
}

func clientToDevice(line []byte) ([]byte, katcp.Shape, error) {
	text := string(line)
	out, err := katcp.ClientToDevice(text)

	return out, katcp.ClassifyClient(text), err
}

// pump relays lines in one direction: it reads lines from src, converts them and writes
// each result followed by a single '\n' to dst.
type pump struct {
	dir         katcp.Direction
	sessionID   string
	src         io.Reader
	dst         io.Writer
	transform   transformFunc
	maxLineSize int
	logger      logger.Logger
	recorder    capture.Recorder
	metrics     []*Metrics
	seq         uint64
}

func newPump(dir katcp.Direction, sessionID string, src io.Reader, dst io.Writer, cfg *ServerConfig, l logger.Logger, metrics ...*Metrics) *pump {
	p := &pump{
		dir:         dir,
		sessionID:   sessionID,
		src:         src,
		dst:         dst,
		maxLineSize: cfg.MaxLineSize(),
		logger:      l.With("direction", dir.String()),
		recorder:    cfg.Recorder(),
	}

	if dir == katcp.DeviceToClientDir {
		p.transform = deviceToClient
	} else {
		p.transform = clientToDevice
	}

	for _, m := range metrics {
		if m != nil {
			p.metrics = append(p.metrics, m)
		}
	}

	return p
}

// run relays lines until src reports end of stream, ctx is canceled, or a line fails.
//
// It returns nil on end of stream and on cancellation. Any other failure is returned and
// ends the pump: the failing line is not skipped and nothing after it is relayed.
func (p *pump) run(ctx context.Context) error {
	lr := newLineReader(p.src, p.maxLineSize)
	defer lr.release()

	bw := pool.GetWriter(p.dst)
	defer pool.PutWriter(bw)

	p.logger.Debug("pump started")

	for {
		line, err := lr.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Debug("pump reached end of stream", "lines", p.seq)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}

			p.failLine(nil, katcp.ShapeOpaque, err)

			return fmt.Errorf("read %s line: %w", p.dir, err)
		}

		p.seq++

		out, shape, err := p.transform(line)
		if err != nil {
			p.failLine(line, shape, err)
			return err
		}

		// one flush per line keeps line-at-a-time delivery
		_, _ = bw.Write(out)
		_ = bw.WriteByte('\n')
		if err := bw.Flush(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.failLine(line, shape, err)

			return fmt.Errorf("write %s line: %w", p.dir, err)
		}

		for _, m := range p.metrics {
			m.incLine(p.dir, shape, len(out)+1)
		}
		p.record(line, out, shape, "")

		p.logger.Debug("line relayed", "seq", p.seq, "shape", shape.String(), "in", len(line), "out", len(out))
	}
}

func (p *pump) failLine(line []byte, shape katcp.Shape, err error) {
	for _, m := range p.metrics {
		m.incLineErrCount()
	}
	p.record(line, nil, shape, err.Error())
}

func (p *pump) record(in []byte, out []byte, shape katcp.Shape, errText string) {
	if p.recorder == nil {
		return
	}

	// in aliases the line reader's buffer
	p.recorder.Record(capture.Event{
		Timestamp: time.Now(),
		SessionID: p.sessionID,
		Direction: p.dir,
		Shape:     shape,
		Seq:       p.seq,
		In:        append([]byte(nil), in...),
		Out:       out,
		Error:     errText,
	})
}
