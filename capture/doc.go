// Package capture records the lines relayed by katproxy for later inspection.
//
// Every relayed line becomes an Event holding the bytes read from one peer and the bytes
// written to the other, tagged with the session ID and the direction. Capture is separate
// from operational logging: it is a complete, machine-readable trace of the traffic,
// including the raw binary payloads that would be unreadable in a log line.
//
// # Recording
//
//	rec, err := capture.NewFileRecorder("/var/log/katproxy/session.kcap")
//	// ... handle error ...
//	defer rec.Close()
//
//	cfg, err := relay.NewServerConfig("127.0.0.1", 7148, "10.0.0.2", 7147,
//	    relay.WithRecorder(rec),
//	)
//
// # File Format
//
// Capture files are a sequence of CBOR encoded events using integer keys. They are read
// back with Reader, optionally restricted by a Filter; the katcap command prints them.
package capture
