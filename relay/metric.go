package relay

import (
	"sync/atomic"

	"github.com/arloliu/go-katproxy/katcp"
)

// Metrics contains atomic relay counters.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// DeviceToClientLines indicates the number of lines relayed from the device to the client.
	DeviceToClientLines atomic.Uint64
	// DeviceToClientBytes indicates the number of bytes written to the client, terminators included.
	DeviceToClientBytes atomic.Uint64
	// ClientToDeviceLines indicates the number of lines relayed from the client to the device.
	ClientToDeviceLines atomic.Uint64
	// ClientToDeviceBytes indicates the number of bytes written to the device, terminators included.
	ClientToDeviceBytes atomic.Uint64

	// PayloadLineCount indicates the number of read replies and write requests whose payload was converted.
	PayloadLineCount atomic.Uint64
	// LineErrCount indicates the number of lines that failed to convert or to be written.
	LineErrCount atomic.Uint64

	// SessionCount indicates the total number of sessions started.
	SessionCount atomic.Uint64
	// ActiveSessionGauge indicates the number of sessions currently running.
	ActiveSessionGauge atomic.Int64
}

func (m *Metrics) incLine(dir katcp.Direction, shape katcp.Shape, written int) {
	switch dir {
	case katcp.DeviceToClientDir:
		m.DeviceToClientLines.Add(1)
		m.DeviceToClientBytes.Add(uint64(written))
	case katcp.ClientToDeviceDir:
		m.ClientToDeviceLines.Add(1)
		m.ClientToDeviceBytes.Add(uint64(written))
	}

	if shape.HasPayload() {
		m.PayloadLineCount.Add(1)
	}
}

func (m *Metrics) incLineErrCount() {
	m.LineErrCount.Add(1)
}

func (m *Metrics) sessionStarted() {
	m.SessionCount.Add(1)
	m.ActiveSessionGauge.Add(1)
}

func (m *Metrics) sessionEnded() {
	m.ActiveSessionGauge.Add(-1)
}
