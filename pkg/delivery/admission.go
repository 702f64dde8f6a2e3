package delivery

import (
	"time"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/pkg/errors"
)

const (
	// admissionWindow is how recently a ledger row must have been updated
	// to count against the concurrency ceiling.
	admissionWindow = 20 * time.Second

	// admissionPolls and admissionBackoff bound how long a request waits
	// for stale rows to age out before being denied.
	admissionPolls   = 4
	admissionBackoff = 5 * time.Second
)

// AdmissionController enforces the per-address concurrent transfer
// ceiling using the transfer ledger. The count is cooperative and
// eventually consistent: two requests racing inside the window can both
// be admitted. That is a documented property, not a bug.
type AdmissionController struct {
	ledger stor.TransferLedgerStor

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewAdmissionController(ledger stor.TransferLedgerStor) *AdmissionController {
	return &AdmissionController{ledger: ledger, sleep: time.Sleep}
}

// Admit blocks until the requester's active transfer count drops below
// maxConcurrent, polling a fixed number of times, and returns
// ErrAdmissionDenied if it never does. maxConcurrent 0 always admits.
func (c *AdmissionController) Admit(ipAddress string, maxConcurrent int) error {
	if maxConcurrent <= 0 {
		return nil
	}

	active := 0
	for poll := 0; poll < admissionPolls; poll++ {
		var err error
		active, err = c.ledger.CountActive(ipAddress, time.Now().Add(-admissionWindow))
		if err != nil {
			// Counting failures shouldn't block downloads.
			log.WithError(err).Error("admission count failed, admitting")
			return nil
		}

		if active < maxConcurrent {
			return nil
		}

		if poll < admissionPolls-1 {
			c.sleep(admissionBackoff)
		}
	}

	return errors.Wrapf(ErrAdmissionDenied, "%d active transfers for %s (limit %d)", active, ipAddress, maxConcurrent)
}
