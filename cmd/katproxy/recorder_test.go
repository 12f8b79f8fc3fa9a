package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/katcp"
	"github.com/arloliu/go-katproxy/logger"
)

func TestNewRecorder(t *testing.T) {
	infoLog := logger.NewSlogWithWriter(io.Discard, logger.InfoLevel, false)
	debugLog := logger.NewSlogWithWriter(io.Discard, logger.DebugLevel, false)

	t.Run("Disabled", func(t *testing.T) {
		require := require.New(t)

		rec, fileRec, err := newRecorder(&Config{}, infoLog)
		require.NoError(err)
		require.Nil(rec)
		require.Nil(fileRec)
	})

	t.Run("Debug Log Only", func(t *testing.T) {
		require := require.New(t)

		rec, fileRec, err := newRecorder(&Config{}, debugLog)
		require.NoError(err)
		require.IsType(&capture.LogRecorder{}, rec)
		require.Nil(fileRec)
	})

	t.Run("Capture File Only", func(t *testing.T) {
		require := require.New(t)

		cfg := &Config{CaptureFile: filepath.Join(t.TempDir(), "out.kcap")}
		rec, fileRec, err := newRecorder(cfg, infoLog)
		require.NoError(err)
		require.NotNil(fileRec)
		require.Same(fileRec, rec)
		require.NoError(fileRec.Close())
	})

	t.Run("Capture File And Debug Log", func(t *testing.T) {
		require := require.New(t)

		cfg := &Config{CaptureFile: filepath.Join(t.TempDir(), "out.kcap")}
		rec, fileRec, err := newRecorder(cfg, debugLog)
		require.NoError(err)
		require.IsType(&capture.MultiRecorder{}, rec)

		rec.Record(capture.Event{SessionID: "s1", Direction: katcp.ClientToDeviceDir, Seq: 1, In: []byte("?help"), Out: []byte("?help")})
		require.NoError(fileRec.Close())

		reader, err := capture.NewReader(cfg.CaptureFile)
		require.NoError(err)
		defer reader.Close()

		event, err := reader.Next()
		require.NoError(err)
		require.Equal("s1", event.SessionID)
		_, err = reader.Next()
		require.ErrorIs(err, io.EOF)
	})

	t.Run("Capture File Error", func(t *testing.T) {
		require := require.New(t)

		cfg := &Config{CaptureFile: filepath.Join(t.TempDir(), "missing", "out.kcap")}
		_, _, err := newRecorder(cfg, infoLog)
		require.Error(err)
	})
}
