package main

import (
	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/logger"
)

// newRecorder builds the capture recorder of the proxy: the capture file when one is
// configured, plus the line content in the log at debug level. It returns a nil recorder
// when neither is enabled. The returned FileRecorder, if any, must be closed by the caller.
func newRecorder(cfg *Config, log logger.Logger) (capture.Recorder, *capture.FileRecorder, error) {
	var recorders []capture.Recorder
	var fileRec *capture.FileRecorder

	if cfg.CaptureFile != "" {
		var err error
		fileRec, err = capture.NewFileRecorder(cfg.CaptureFile)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, fileRec)
	}

	if log.Level() <= logger.DebugLevel {
		recorders = append(recorders, capture.NewLogRecorder(log))
	}

	switch len(recorders) {
	case 0:
		return nil, nil, nil
	case 1:
		return recorders[0], fileRec, nil
	default:
		return capture.NewMultiRecorder(recorders...), fileRec, nil
	}
}
