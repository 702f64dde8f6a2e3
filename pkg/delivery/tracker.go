package delivery

import (
	"time"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
)

const (
	// trackerUpdateInterval is the minimum gap between ledger touches
	// during a long transfer. Updates beyond that are skipped to avoid
	// write amplification.
	trackerUpdateInterval = 15 * time.Second

	// trackerTimeout is how long a downloading row may sit untouched
	// before the sweep flags it as timed out.
	trackerTimeout = 60 * time.Second

	// trackerPurgeAfter is how long settled rows are kept before purge.
	trackerPurgeAfter = 10 * time.Minute
)

// TransferTracker maintains the transfer ledger. When tracking is
// disabled by configuration every method is a no-op, which also disables
// admission counting.
type TransferTracker struct {
	ledger  stor.TransferLedgerStor
	enabled bool
	now     func() time.Time
}

func NewTransferTracker(ledger stor.TransferLedgerStor, enabled bool) *TransferTracker {
	return &TransferTracker{ledger: ledger, enabled: enabled, now: time.Now}
}

func (t *TransferTracker) Enabled() bool {
	return t.enabled
}

// LedgerHandle is the live handle for one tracked transfer. A zero handle
// (tracking disabled) is safe to use; all its methods do nothing.
type LedgerHandle struct {
	tracker     *TransferTracker
	entryID     int
	lastTouched time.Time
}

// Open creates the ledger row for a starting transfer.
func (t *TransferTracker) Open(file *model.File, ipAddress string, byteRange ByteRange) *LedgerHandle {
	if !t.enabled {
		return &LedgerHandle{}
	}

	entry := &model.TransferLedgerEntry{
		FileID:     file.ID,
		IPAddress:  ipAddress,
		Status:     model.TransferDownloading,
		RangeStart: byteRange.Start,
		RangeEnd:   byteRange.End,
	}

	if _, err := t.ledger.CreateEntry(entry); err != nil {
		// Tracking is a non-critical path; the transfer continues.
		log.WithError(err).Errorf("failed opening ledger entry for file %d", file.ID)
		return &LedgerHandle{}
	}

	return &LedgerHandle{tracker: t, entryID: entry.ID, lastTouched: t.now()}
}

// Update touches the ledger row, at most once per update interval.
func (h *LedgerHandle) Update() {
	if h.tracker == nil || h.entryID == 0 {
		return
	}

	now := h.tracker.now()
	if now.Sub(h.lastTouched) < trackerUpdateInterval {
		return
	}
	h.lastTouched = now

	if err := h.tracker.ledger.TouchEntry(h.entryID); err != nil {
		log.WithError(err).Errorf("failed touching ledger entry %d", h.entryID)
	}
}

// Finish settles the ledger row with a terminal status.
func (h *LedgerHandle) Finish(status string) {
	if h.tracker == nil || h.entryID == 0 {
		return
	}

	if err := h.tracker.ledger.FinishEntry(h.entryID, status); err != nil {
		log.WithError(err).Errorf("failed finishing ledger entry %d", h.entryID)
	}
}

// Sweep reaps rows whose requester has gone silent and purges old settled
// rows. It runs ahead of every new transfer so the admission count stays
// honest.
func (t *TransferTracker) Sweep() {
	if !t.enabled {
		return
	}

	now := t.now()
	if err := t.ledger.MarkTimedOut(now.Add(-trackerTimeout)); err != nil {
		log.WithError(err).Error("ledger timeout sweep failed")
	}
	if err := t.ledger.PurgeSettled(now.Add(-trackerPurgeAfter)); err != nil {
		log.WithError(err).Error("ledger purge failed")
	}
}
