// Command katcap prints capture files written by katproxy -capture.
//
// Usage:
//
//	katcap [flags] <file.kcap>
//
// Examples:
//
//	# Print every relayed line
//	katcap session.kcap
//
//	# Only the lines that ended a session
//	katcap -failed session.kcap
//
//	# Only payload carrying lines sent to the device by one session
//	katcap -session 0b6c5c1e-... -direction client->device -shape write-request session.kcap
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/arloliu/go-katproxy/capture"
)

func main() {
	fs := flag.NewFlagSet("katcap", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `katcap - print katproxy capture files

Usage:
  katcap [flags] <file.kcap>

Flags:
`)
		fs.PrintDefaults()
	}

	sessionID := fs.String("session", "", "Only events of this session ID")
	direction := fs.String("direction", "", "Only events of this direction (device->client, client->device)")
	shape := fs.String("shape", "", "Only events of this shape (opaque, read-reply, write-request)")
	failed := fs.Bool("failed", false, "Only failed lines")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter(*sessionID, *direction, *shape, *failed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	reader, err := capture.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	count, err := printEvents(reader, os.Stdout)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			fmt.Fprintf(os.Stderr, "Warning: capture file is truncated after %d events\n", count)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		reader.Close()
		os.Exit(1)
	}
}
