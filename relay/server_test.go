package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-katproxy/logger"
)

const testIP = "127.0.0.1"

func TestMain(m *testing.M) {
	level := logger.InfoLevel
	if name := os.Getenv("LOG_LEVEL"); name != "" {
		if l, err := logger.ParseLevel(name); err == nil {
			level = l
		}
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

// fakeDevice is a minimal device: "?write name offset <raw>" stores raw bytes in a register,
// "?read name" replies with them, any other request is acknowledged with "!<name> ok".
type fakeDevice struct {
	listener net.Listener

	mu    sync.Mutex
	regs  map[string][]byte
	lines [][]byte

	conns atomic.Int32
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	listener, err := net.Listen("tcp", net.JoinHostPort(testIP, "0"))
	require.NoError(t, err)

	d := &fakeDevice{listener: listener, regs: make(map[string][]byte)}
	go d.acceptLoop()
	t.Cleanup(func() { _ = listener.Close() })

	return d
}

func (d *fakeDevice) port() int {
	return d.listener.Addr().(*net.TCPAddr).Port
}

func (d *fakeDevice) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.conns.Add(1)
		go d.serve(conn)
	}
}

func (d *fakeDevice) serve(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return
		}
		line = line[:len(line)-1]

		d.mu.Lock()
		d.lines = append(d.lines, append([]byte(nil), line...))

		var reply []byte
		switch {
		case bytes.HasPrefix(line, []byte("?write ")):
			parts := bytes.SplitN(line, []byte(" "), 4)
			if len(parts) == 4 {
				d.regs[string(parts[1])] = append([]byte(nil), parts[3]...)
			}
			reply = []byte("!write ok")
		case bytes.HasPrefix(line, []byte("?read ")):
			reply = append([]byte("!read ok "), d.regs[string(line[len("?read "):])]...)
		default:
			name, _, _ := bytes.Cut(line, []byte(" "))
			reply = append([]byte("!"), bytes.TrimPrefix(name, []byte("?"))...)
			reply = append(reply, " ok"...)
		}
		d.mu.Unlock()

		if _, err := conn.Write(append(reply, '\n')); err != nil {
			return
		}
	}
}

func (d *fakeDevice) receivedLines() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([][]byte(nil), d.lines...)
}

func newTestServer(t *testing.T, devicePort int, opts ...ServerOption) *Server {
	t.Helper()

	cfg, err := NewServerConfig(testIP, 0, testIP, devicePort, opts...)
	require.NoError(t, err)

	server, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, server.Listen(context.Background()))
	t.Cleanup(func() { _ = server.Close() })

	return server
}

type testClient struct {
	conn net.Conn
	br   *bufio.Reader
}

func dialTestClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{conn: conn, br: bufio.NewReader(conn)}
}

func (c *testClient) request(t *testing.T, line string) string {
	t.Helper()

	require.NoError(t, c.conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	reply, err := c.br.ReadString('\n')
	require.NoError(t, err)

	return reply
}

// TestServer_SingleSession verifies the scratchpad round trip: the client writes base64,
// the device stores raw bytes, and reading the register back yields the same base64.
func TestServer_SingleSession(t *testing.T) {
	require := require.New(t)

	device := newFakeDevice(t)
	server := newTestServer(t, device.port())
	addr := server.Addr()
	require.NotNil(addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	client := dialTestClient(t, addr)

	payload := []byte{0xde, 0xad, ' ', '\r', 0xbe, 0xef}
	encoded := base64.StdEncoding.EncodeToString(payload)

	require.Equal("!write ok\n", client.request(t, "?write sys_scratchpad 0 "+encoded))
	require.Equal("!read ok "+encoded+"\n", client.request(t, "?read sys_scratchpad"))
	require.Equal("!watchdog ok\n", client.request(t, "?watchdog"))

	lines := device.receivedLines()
	require.Len(lines, 3)
	require.Equal(append([]byte("?write sys_scratchpad 0 "), payload...), lines[0])
	require.Equal("?read sys_scratchpad", string(lines[1]))

	require.Eventually(func() bool { return server.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	// a second client is refused once the single session is established
	_, err := net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
	require.Error(err)

	require.NoError(client.conn.Close())

	select {
	case err := <-errCh:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.Zero(server.SessionCount())
	require.Equal(uint64(1), server.Metrics().SessionCount.Load())
	require.Zero(server.Metrics().ActiveSessionGauge.Load())
	require.Equal(uint64(3), server.Metrics().ClientToDeviceLines.Load())
	require.Equal(uint64(3), server.Metrics().DeviceToClientLines.Load())
	require.Equal(uint64(2), server.Metrics().PayloadLineCount.Load())
}

func TestServer_SingleSession_ClientError(t *testing.T) {
	require := require.New(t)

	device := newFakeDevice(t)
	server := newTestServer(t, device.port())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	client := dialTestClient(t, server.Addr())
	_, err := client.conn.Write([]byte("?write sys 0 not-base64!\n"))
	require.NoError(err)

	select {
	case err := <-errCh:
		require.Error(err)
		require.Contains(err.Error(), "client->device write-request line")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	// the client connection is closed with the session
	require.NoError(client.conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, err = client.br.ReadByte()
	require.Error(err)
	require.Empty(device.receivedLines())
}

// TestServer_SingleSession_Close verifies Close waits for a running single session.
func TestServer_SingleSession_Close(t *testing.T) {
	require := require.New(t)

	device := newFakeDevice(t)
	server := newTestServer(t, device.port(), WithCloseTimeout(2*time.Second))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	client := dialTestClient(t, server.Addr())
	require.Equal("!help ok\n", client.request(t, "?help"))
	require.Eventually(func() bool { return server.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(server.Close())

	// the session is gone as soon as Close returns
	require.Zero(server.SessionCount())
	require.Zero(server.Metrics().ActiveSessionGauge.Load())

	select {
	case err := <-errCh:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(client.conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, err := client.br.ReadByte()
	require.Error(err)
}

func TestServer_DeviceUnreachable(t *testing.T) {
	require := require.New(t)

	// grab a free port and release it so nothing listens there
	listener, err := net.Listen("tcp", net.JoinHostPort(testIP, "0"))
	require.NoError(err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(listener.Close())

	server := newTestServer(t, port, WithConnectTimeout(500*time.Millisecond))

	err = server.Serve(context.Background())
	require.Error(err)
	require.Contains(err.Error(), "connect device")
}

func TestServer_MultiSession(t *testing.T) {
	require := require.New(t)

	device := newFakeDevice(t)
	server := newTestServer(t, device.port(), WithMultiSession(), WithCloseTimeout(2*time.Second))
	addr := server.Addr()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(context.Background())
	}()

	client1 := dialTestClient(t, addr)
	client2 := dialTestClient(t, addr)

	require.Equal("!write ok\n", client1.request(t, "?write reg1 0 AQID"))
	require.Equal("!write ok\n", client2.request(t, "?write reg2 0 BAUG"))
	require.Equal("!read ok AQID\n", client2.request(t, "?read reg1"))
	require.Equal("!read ok BAUG\n", client1.request(t, "?read reg2"))

	require.Equal(int32(2), device.conns.Load())
	require.Eventually(func() bool { return server.SessionCount() == 2 }, time.Second, 10*time.Millisecond)

	// one session ending leaves the other running
	require.NoError(client1.conn.Close())
	require.Eventually(func() bool { return server.SessionCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal("!ping ok\n", client2.request(t, "?ping"))

	require.NoError(server.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.Zero(server.SessionCount())
	require.Equal(uint64(2), server.Metrics().SessionCount.Load())

	require.ErrorIs(server.Listen(context.Background()), ErrServerClosed)
}

func TestServer_CancelContext(t *testing.T) {
	require := require.New(t)

	device := newFakeDevice(t)
	server := newTestServer(t, device.port(), WithMultiSession())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx)
	}()

	client := dialTestClient(t, server.Addr())
	require.Equal("!help ok\n", client.request(t, "?help"))

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(client.conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, err := client.br.ReadByte()
	require.Error(err)
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfigNil)
}
