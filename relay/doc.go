// Package relay implements the katproxy line relay: a TCP proxy that sits between a control
// client and a device speaking a katcp-like line protocol, converting binary payloads to
// base64 on the way to the client and back to raw bytes on the way to the device.
//
// Key Features:
//   - Line Framing: Splits each byte stream on '\n', accepting an optional '\r' before it.
//   - Payload Conversion: Read replies and write requests are converted with package katcp;
//     every other line is forwarded unchanged.
//   - Supervised Pumps: The two directions of a session run concurrently and are monitored
//     together. The first one to stop, by end of stream or by error, tears the session down.
//   - Single or Multi Session: By default one client is relayed, like a point-to-point cable.
//     WithMultiSession turns the server into an accept loop with one device connection per client.
//   - Capture: An optional capture.Recorder receives every relayed line.
//
// Error Handling:
//
// A line that can't be converted (invalid UTF-8, invalid base64, missing token), a line over
// the maximum line size, or an I/O failure ends the session; no line is skipped. Session.Run
// reports the first such error, or nil when a peer simply disconnected.
//
// Usage Example:
//
//	cfg, err := relay.NewServerConfig("127.0.0.1", 7148, "192.168.4.20", relay.DefaultDevicePort,
//	    relay.WithConnectTimeout(5*time.Second),
//	)
//	// ... handle error ...
//
//	server, err := relay.NewServer(ctx, cfg)
//	// ... handle error ...
//	defer server.Close()
//
//	// blocks until the client or the device disconnects
//	err = server.Serve(ctx)
//
// Two already connected streams can also be relayed directly:
//
//	sess, err := relay.NewSession(cfg, deviceConn, clientConn)
//	// ... handle error ...
//	err = sess.Run(ctx)
package relay
