package delivery

import (
	"testing"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/stretchr/testify/require"
)

func newLedgerWithActive(t *testing.T, ipAddress string, count int) *stor.InMemoryTransferLedgerStor {
	t.Helper()

	ledger := stor.NewInMemoryTransferLedgerStor()
	for i := 0; i < count; i++ {
		_, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    1,
			IPAddress: ipAddress,
			Status:    model.TransferDownloading,
		})
		require.NoError(t, err)
	}

	return ledger
}

func TestAdmissionController_Admit(t *testing.T) {
	t.Run("zero limit always admits", func(t *testing.T) {
		controller := NewAdmissionController(newLedgerWithActive(t, "10.0.0.1", 50))
		require.NoError(t, controller.Admit("10.0.0.1", 0))
	})

	t.Run("admits below the ceiling", func(t *testing.T) {
		controller := NewAdmissionController(newLedgerWithActive(t, "10.0.0.1", 2))
		require.NoError(t, controller.Admit("10.0.0.1", 3))
	})

	t.Run("other addresses do not count", func(t *testing.T) {
		controller := NewAdmissionController(newLedgerWithActive(t, "10.0.0.2", 5))
		require.NoError(t, controller.Admit("10.0.0.1", 1))
	})

	t.Run("denies after polling when ceiling stays full", func(t *testing.T) {
		controller := NewAdmissionController(newLedgerWithActive(t, "10.0.0.1", 3))

		slept := 0
		controller.sleep = func(time.Duration) { slept++ }

		err := controller.Admit("10.0.0.1", 3)
		require.ErrorIs(t, err, ErrAdmissionDenied)
		require.Equal(t, admissionPolls-1, slept)
	})

	t.Run("admits once an active transfer settles", func(t *testing.T) {
		ledger := newLedgerWithActive(t, "10.0.0.1", 1)
		controller := NewAdmissionController(ledger)

		controller.sleep = func(time.Duration) {
			require.NoError(t, ledger.FinishEntry(1, model.TransferFinished))
		}

		require.NoError(t, controller.Admit("10.0.0.1", 1))
	})
}
