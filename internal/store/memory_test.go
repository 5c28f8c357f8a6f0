package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlane/tokenledger/internal/domain"
)

func newAccount(t *testing.T, m *Memory, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := m.CreateAccount(context.Background(), id, balance)
	require.NoError(t, err)
	return id
}

func balance(t *testing.T, m *Memory, id uuid.UUID) int64 {
	t.Helper()
	acc, err := m.Account(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestCreateAccount(t *testing.T) {
	m := NewMemory()
	id := uuid.New()

	acc, err := m.CreateAccount(context.Background(), id, 100)
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.Equal(t, int64(100), acc.Balance)

	_, err = m.CreateAccount(context.Background(), id, 0)
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	_, err = m.CreateAccount(context.Background(), uuid.New(), -1)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
}

func TestApplyTransfer(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	payer := newAccount(t, m, 100)
	payee := newAccount(t, m, 0)

	entry, err := m.ApplyTransfer(ctx, domain.TransferParams{
		FromAccountID: payer,
		ToAccountID:   payee,
		Amount:        40,
		Reason:        domain.ReasonSupport,
	})
	require.NoError(t, err)
	assert.Equal(t, payer, entry.FromAccountID)
	assert.Equal(t, payee, entry.ToAccountID)
	assert.Equal(t, int64(40), entry.Amount)
	assert.NotEqual(t, uuid.Nil, entry.ID)

	assert.Equal(t, int64(60), balance(t, m, payer))
	assert.Equal(t, int64(40), balance(t, m, payee))
}

func TestApplyTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	payer := newAccount(t, m, 30)
	payee := newAccount(t, m, 5)

	_, err := m.ApplyTransfer(ctx, domain.TransferParams{
		FromAccountID: payer,
		ToAccountID:   payee,
		Amount:        50,
		Reason:        domain.ReasonGiftPurchase,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(30), balance(t, m, payer))
	assert.Equal(t, int64(5), balance(t, m, payee))

	entries, err := m.Entries(ctx, payer, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyTransferUnknownAccount(t *testing.T) {
	m := NewMemory()
	payer := newAccount(t, m, 100)

	_, err := m.ApplyTransfer(context.Background(), domain.TransferParams{
		FromAccountID: payer,
		ToAccountID:   uuid.New(),
		Amount:        10,
		Reason:        domain.ReasonSupport,
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, int64(100), balance(t, m, payer))
}

// The balance sum must be invariant under any interleaving of transfers.
func TestConcurrentTransfersConserveTotal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const perAccount = 1000
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = newAccount(t, m, perAccount)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				from := ids[(seed+i)%len(ids)]
				to := ids[(seed+i+1)%len(ids)]
				m.ApplyTransfer(ctx, domain.TransferParams{
					FromAccountID: from,
					ToAccountID:   to,
					Amount:        3,
					Reason:        domain.ReasonSupport,
				})
			}
		}(w)
	}
	wg.Wait()

	var total int64
	for _, id := range ids {
		b := balance(t, m, id)
		assert.GreaterOrEqual(t, b, int64(0))
		total += b
	}
	assert.Equal(t, int64(perAccount*len(ids)), total)
}

// Opposite-direction transfers between the same pair must not deadlock and
// must never drive either side negative.
func TestOppositeDirectionTransfers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newAccount(t, m, 10)
	b := newAccount(t, m, 10)

	var wg sync.WaitGroup
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		wg.Add(1)
		go func(from, to uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.ApplyTransfer(ctx, domain.TransferParams{
					FromAccountID: from,
					ToAccountID:   to,
					Amount:        1,
					Reason:        domain.ReasonSupport,
				})
			}
		}(pair[0], pair[1])
	}
	wg.Wait()

	ba, bb := balance(t, m, a), balance(t, m, b)
	assert.GreaterOrEqual(t, ba, int64(0))
	assert.GreaterOrEqual(t, bb, int64(0))
	assert.Equal(t, int64(20), ba+bb)
}

func TestEntriesNewestFirstAndSinceFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	payer := newAccount(t, m, 100)
	payee := newAccount(t, m, 0)

	first, err := m.ApplyTransfer(ctx, domain.TransferParams{
		FromAccountID: payer, ToAccountID: payee, Amount: 10, Reason: domain.ReasonSupport,
	})
	require.NoError(t, err)
	cutoff := time.Now().UTC()
	second, err := m.ApplyTransfer(ctx, domain.TransferParams{
		FromAccountID: payer, ToAccountID: payee, Amount: 20, Reason: domain.ReasonSupport,
	})
	require.NoError(t, err)

	entries, err := m.Entries(ctx, payer, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)

	filtered, err := m.Entries(ctx, payer, &cutoff)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)

	_, err = m.Entries(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSettlementReservation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	fresh, err := m.ReserveSettlement(ctx, "corr-1", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, fresh)

	// Same id while the first invocation is still running.
	_, err = m.ReserveSettlement(ctx, "corr-1", "hash-a")
	assert.ErrorIs(t, err, domain.ErrSettlementInProgress)

	// Same id with different parameters.
	_, err = m.ReserveSettlement(ctx, "corr-1", "hash-b")
	assert.ErrorIs(t, err, domain.ErrCorrelationMismatch)

	entry := &domain.LedgerEntry{ID: uuid.New(), Amount: 50}
	require.NoError(t, m.CompleteSettlement(ctx, "corr-1", domain.SettlementFinalized, entry, []byte(`{"ok":true}`), ""))

	replay, err := m.ReserveSettlement(ctx, "corr-1", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.True(t, replay.Replayed)
	assert.Equal(t, domain.SettlementFinalized, replay.State)
	assert.Equal(t, entry.ID, replay.Entry.ID)
	assert.JSONEq(t, `{"ok":true}`, string(replay.Record))
}

func TestReleaseSettlementFreesCorrelationID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.ReserveSettlement(ctx, "corr-2", "hash-a")
	require.NoError(t, err)
	require.NoError(t, m.ReleaseSettlement(ctx, "corr-2"))

	fresh, err := m.ReserveSettlement(ctx, "corr-2", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, fresh)
}

func TestCompleteSettlementUnknownCorrelation(t *testing.T) {
	err := NewMemory().CompleteSettlement(context.Background(), "nope", domain.SettlementFailed, nil, nil, "x")
	assert.ErrorIs(t, err, domain.ErrSettlementNotFound)
}

func TestReconciliationQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	item := &domain.ReconciliationItem{
		EntryID:       uuid.New(),
		PayerID:       uuid.New(),
		PayeeID:       uuid.New(),
		Amount:        25,
		CorrelationID: "corr-3",
		LastError:     "store down",
		Attempts:      1,
	}
	_, err := m.ReserveSettlement(ctx, "corr-3", "hash-a")
	require.NoError(t, err)
	require.NoError(t, m.CompleteSettlement(ctx, "corr-3", domain.SettlementCompensating, nil, nil, "compensation_pending"))
	require.NoError(t, m.EnqueueReconciliation(ctx, item))
	require.NotEqual(t, uuid.Nil, item.ID)

	pending, err := m.PendingReconciliations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, item.EntryID, pending[0].EntryID)

	require.NoError(t, m.BumpReconciliation(ctx, item.ID, "still down"))
	pending, err = m.PendingReconciliations(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "still down", pending[0].LastError)

	refundID := uuid.New()
	require.NoError(t, m.ResolveReconciliation(ctx, item.ID, refundID))

	pending, err = m.PendingReconciliations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Resolving also finishes the settlement the item belongs to.
	replay, err := m.ReserveSettlement(ctx, "corr-3", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, domain.SettlementCompensated, replay.State)
}
