package delivery

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	failAfter int
	written   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.failAfter {
		return 0, errors.New("broken pipe")
	}
	w.written += len(p)

	return len(p), nil
}

func TestStreamer_Stream(t *testing.T) {
	streamer := NewStreamer()

	t.Run("copies the full window", func(t *testing.T) {
		payload := strings.Repeat("a", 10000)
		var sink bytes.Buffer

		written, err := streamer.Stream(context.Background(), strings.NewReader(payload),
			ByteRange{Start: 0, End: 9999}, &sink, 0, &LedgerHandle{})
		require.NoError(t, err)
		require.Equal(t, int64(10000), written)
		require.Equal(t, payload, sink.String())
	})

	t.Run("stops at the window end", func(t *testing.T) {
		payload := strings.Repeat("b", 10000)
		var sink bytes.Buffer

		// The caller already seeked the source; the streamer only limits
		// how much it reads.
		written, err := streamer.Stream(context.Background(), strings.NewReader(payload),
			ByteRange{Start: 2000, End: 4999}, &sink, 0, &LedgerHandle{})
		require.NoError(t, err)
		require.Equal(t, int64(3000), written)
	})

	t.Run("short source ends cleanly", func(t *testing.T) {
		var sink bytes.Buffer

		written, err := streamer.Stream(context.Background(), strings.NewReader("abc"),
			ByteRange{Start: 0, End: 999}, &sink, 0, &LedgerHandle{})
		require.NoError(t, err)
		require.Equal(t, int64(3), written)
	})

	t.Run("client write failure wraps transfer error", func(t *testing.T) {
		payload := strings.Repeat("c", 20000)
		sink := &failingWriter{failAfter: 8192}

		written, err := streamer.Stream(context.Background(), strings.NewReader(payload),
			ByteRange{Start: 0, End: 19999}, sink, 0, &LedgerHandle{})
		require.ErrorIs(t, err, ErrTransferIO)
		require.Less(t, written, int64(20000))
	})

	t.Run("canceled context stops the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		payload := strings.Repeat("d", 20000)
		var sink bytes.Buffer

		_, err := streamer.Stream(ctx, strings.NewReader(payload),
			ByteRange{Start: 0, End: 19999}, &sink, 0, &LedgerHandle{})
		require.ErrorIs(t, err, ErrTransferIO)
	})

	t.Run("throttle paces the copy", func(t *testing.T) {
		// The burst covers the window here; this guards against the
		// limiter blocking forever, not against it being too fast.
		payload := strings.Repeat("e", 32*1024)
		var sink bytes.Buffer

		start := time.Now()
		written, err := streamer.Stream(context.Background(), strings.NewReader(payload),
			ByteRange{Start: 0, End: 32*1024 - 1}, &sink, 64*1024, &LedgerHandle{})
		require.NoError(t, err)
		require.Equal(t, int64(32*1024), written)
		require.Less(t, time.Since(start), 5*time.Second)
	})
}
