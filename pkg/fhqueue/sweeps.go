package fhqueue

import (
	"context"
	"time"

	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/delivery"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically reaps expired download tokens and times out stale
// transfer ledger rows. The delivery daemon also sweeps opportunistically
// before admission; this keeps the tables tidy during quiet periods.
type Sweeper struct {
	broker   *delivery.TokenBroker
	tracker  *delivery.TransferTracker
	interval time.Duration
}

func NewSweeper(broker *delivery.TokenBroker, tracker *delivery.TransferTracker) *Sweeper {
	return &Sweeper{
		broker:   broker,
		tracker:  tracker,
		interval: defaultSweepInterval,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broker.PurgeExpired()
			s.tracker.Sweep()
			clog.UsingCtx(clog.QueueCtx).Debug("swept tokens and transfer ledger")
		}
	}
}
