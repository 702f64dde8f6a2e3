package delivery

import (
	"time"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/filehaven/filehaven/pkg/lock"
	"github.com/pkg/errors"
)

// BandwidthAccountant debits transferred bytes against the downloading
// account's remaining quota and downgrades the account when the quota
// runs out. Quota exhaustion is not an error: the transfer completes and
// the next request observes the degraded tier.
type BandwidthAccountant struct {
	accounts stor.AccountStor
	locks    *lock.IDLocker
}

func NewBandwidthAccountant(accounts stor.AccountStor) *BandwidthAccountant {
	return &BandwidthAccountant{
		accounts: accounts,
		locks:    lock.NewIDLocker(),
	}
}

// Settle debits transferred bytes from accountID's remaining bandwidth.
// Self-downloads are never metered unless force is set; anonymous
// downloads (accountID 0) and unlimited accounts are skipped. Returns
// whether the settle caused a tier downgrade.
//
// The debit is a read-modify-write, so concurrent settles for one
// account are serialized on a per-account lock. Settles from other
// processes can still interleave; admission bounds that window.
func (a *BandwidthAccountant) Settle(accountID int, tier *model.AccountTier, file *model.File, transferred int64, force bool) (bool, error) {
	if accountID == 0 {
		return false, nil
	}

	if file.OwnedBy(accountID) && !force {
		return false, nil
	}

	var downgraded bool
	err := a.locks.WithLock(accountID, func() error {
		var settleErr error
		downgraded, settleErr = a.settleLocked(accountID, tier, transferred)
		return settleErr
	})

	return downgraded, err
}

func (a *BandwidthAccountant) settleLocked(accountID int, tier *model.AccountTier, transferred int64) (bool, error) {
	account, err := a.accounts.GetAccountByID(accountID)
	if err != nil {
		return false, errors.Wrapf(err, "loading account %d for bandwidth settle", accountID)
	}

	if account.Unmetered() {
		return false, nil
	}

	if transferred < 0 {
		transferred = 0
	}

	remaining := *account.RemainingBandwidth - transferred
	if remaining > 0 {
		if err := a.accounts.SetRemainingBandwidth(accountID, &remaining); err != nil {
			// Silent failure here causes quota drift, so shout.
			log.WithError(err).Errorf("bandwidth debit failed for account %d", accountID)
			return false, err
		}
		return false, nil
	}

	// Quota crossed zero: clamp to the unlimited sentinel rather than
	// storing a negative number.
	if err := a.accounts.SetRemainingBandwidth(accountID, nil); err != nil {
		log.WithError(err).Errorf("bandwidth clamp failed for account %d", accountID)
		return false, err
	}

	if tier != nil && tier.IsAdmin() {
		return false, nil
	}

	freeTier, err := a.accounts.GetDefaultFreeTier()
	if err != nil {
		log.WithError(err).Error("no default free tier; cannot downgrade")
		return false, err
	}

	if err := a.accounts.DowngradeToTier(accountID, freeTier.ID, time.Now()); err != nil {
		log.WithError(err).Errorf("downgrade failed for account %d", accountID)
		return false, err
	}

	log.Infof("account %d exhausted download bandwidth, downgraded to tier %d", accountID, freeTier.ID)

	return true, nil
}
