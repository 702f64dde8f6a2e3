package delivery

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// streamChunkSize is the read/write unit for manual streaming. Also the
// throttle granularity: the rate limiter is charged per chunk.
const streamChunkSize = 4096

// Streamer copies a byte window from a backend handle to the client in
// bounded chunks, optionally throttled to a target rate.
type Streamer struct{}

func NewStreamer() *Streamer {
	return &Streamer{}
}

// Stream reads rng.Length() bytes from src and writes them to sink.
// throttle is the target rate in bytes per second, 0 for unthrottled.
// The ledger handle is touched on its own cadence. Returns the bytes
// written; a read or write failure (typically a dropped client) wraps
// ErrTransferIO so the caller can settle accounting best effort.
func (s *Streamer) Stream(ctx context.Context, src io.Reader, rng ByteRange, sink io.Writer, throttle int64, handle *LedgerHandle) (int64, error) {
	var limiter *rate.Limiter
	if throttle > 0 {
		burst := streamChunkSize
		if throttle > int64(burst) {
			burst = int(throttle)
		}
		limiter = rate.NewLimiter(rate.Limit(throttle), burst)
	}

	remaining := rng.Length()
	if remaining <= 0 {
		return 0, nil
	}

	var written int64
	buf := make([]byte, streamChunkSize)
	reader := io.LimitReader(src, remaining)

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := sink.Write(buf[:n]); writeErr != nil {
				return written, errors.Wrapf(ErrTransferIO, "client write after %d bytes: %s", written, writeErr)
			}
			written += int64(n)

			if limiter != nil {
				if waitErr := limiter.WaitN(ctx, n); waitErr != nil {
					return written, errors.Wrapf(ErrTransferIO, "throttle wait: %s", waitErr)
				}
			}

			handle.Update()
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, errors.Wrapf(ErrTransferIO, "backend read after %d bytes: %s", written, readErr)
		}

		if err := ctx.Err(); err != nil {
			return written, errors.Wrapf(ErrTransferIO, "canceled after %d bytes: %s", written, err)
		}
	}
}
