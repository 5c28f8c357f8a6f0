package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/store"
)

// refundBlockingStore rejects refund transfers while blocked, which is the
// only way to reach the compensation-failure branch from the outside.
type refundBlockingStore struct {
	store.Ledger
	blocked bool
}

func (s *refundBlockingStore) ApplyTransfer(ctx context.Context, p domain.TransferParams) (*domain.LedgerEntry, error) {
	if s.blocked && p.Reason == domain.ReasonRefund {
		return nil, errors.New("refund path down")
	}
	return s.Ledger.ApplyTransfer(ctx, p)
}

func newCoordinator(s store.Ledger) *Coordinator {
	return NewCoordinator(fastEngine(s), s, zerolog.Nop())
}

func balanceOf(t *testing.T, m *store.Memory, id uuid.UUID) int64 {
	t.Helper()
	acc, err := m.Account(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

type giftRecord struct {
	GiftID  uuid.UUID `json:"gift_id"`
	EntryID uuid.UUID `json:"entry_id"`
}

func TestSettleSuccess(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 100)
	c := newCoordinator(m)
	giftID := uuid.New()

	s, err := c.Settle(context.Background(), SettleRequest{
		CorrelationID: "buy-1",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonGiftPurchase,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		return &giftRecord{GiftID: giftID, EntryID: paid.ID}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, s.State)
	assert.False(t, s.Replayed)
	require.NotNil(t, s.Entry)
	assert.Equal(t, int64(50), s.Entry.Amount)
	assert.NotEmpty(t, s.Record)

	assert.Equal(t, int64(50), balanceOf(t, m, ids[0]))
	assert.Equal(t, int64(150), balanceOf(t, m, ids[1]))
}

func TestSettleInsufficientFundsSkipsDomainWrite(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 30, 0)
	c := newCoordinator(m)

	writes := 0
	_, err := c.Settle(context.Background(), SettleRequest{
		CorrelationID: "buy-2",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonGiftPurchase,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		writes++
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Zero(t, writes)
	assert.Equal(t, int64(30), balanceOf(t, m, ids[0]))
	assert.Equal(t, int64(0), balanceOf(t, m, ids[1]))
}

func TestSettleDomainWriteFailureCompensates(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 100)
	c := newCoordinator(m)

	_, err := c.Settle(context.Background(), SettleRequest{
		CorrelationID: "buy-3",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonPhotoUnlock,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		return nil, errors.New("records table unavailable")
	})
	assert.ErrorIs(t, err, domain.ErrDomainWriteFailed)

	assert.Equal(t, int64(100), balanceOf(t, m, ids[0]))
	assert.Equal(t, int64(100), balanceOf(t, m, ids[1]))

	// Both the charge and the refund stay in the ledger; the refund points at
	// the entry it reverses.
	entries, err := m.Entries(context.Background(), ids[0], nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	refund, charge := entries[0], entries[1]
	assert.Equal(t, domain.ReasonRefund, refund.Reason)
	require.NotNil(t, refund.RelatedEntryID)
	assert.Equal(t, charge.ID, *refund.RelatedEntryID)
}

func TestSettleCompensationFailureQueuesReconciliation(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 100)
	blocking := &refundBlockingStore{Ledger: m, blocked: true}
	c := newCoordinator(blocking)
	ctx := context.Background()

	_, err := c.Settle(ctx, SettleRequest{
		CorrelationID: "buy-4",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonChatUnlock,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		return nil, errors.New("records table unavailable")
	})
	assert.ErrorIs(t, err, domain.ErrCompensationFailed)

	// Tokens sit with the payee until reconciliation lands the refund.
	assert.Equal(t, int64(50), balanceOf(t, m, ids[0]))
	assert.Equal(t, int64(150), balanceOf(t, m, ids[1]))

	pending, err := m.PendingReconciliations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[0], pending[0].PayerID)
	assert.Equal(t, ids[1], pending[0].PayeeID)
	assert.Equal(t, int64(50), pending[0].Amount)
	assert.Equal(t, "buy-4", pending[0].CorrelationID)

	// A replay while the refund is outstanding reports the same condition.
	_, err = c.Settle(ctx, SettleRequest{
		CorrelationID: "buy-4",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonChatUnlock,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		t.Fatal("domain write must not run on replay")
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrCompensationFailed)
}

func TestSettleReplayChargesOnce(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 0)
	c := newCoordinator(m)
	ctx := context.Background()

	writes := 0
	write := func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		writes++
		return map[string]string{"entry": paid.ID.String()}, nil
	}
	req := SettleRequest{
		CorrelationID: "sup-1",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        25,
		Reason:        domain.ReasonSupport,
	}

	first, err := c.Settle(ctx, req, write)
	require.NoError(t, err)
	second, err := c.Settle(ctx, req, write)
	require.NoError(t, err)

	assert.Equal(t, 1, writes)
	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.JSONEq(t, string(first.Record), string(second.Record))
	assert.Equal(t, int64(75), balanceOf(t, m, ids[0]))
	assert.Equal(t, int64(25), balanceOf(t, m, ids[1]))
}

func TestSettleReplayOfFailedSettlement(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 10, 0)
	c := newCoordinator(m)
	ctx := context.Background()

	req := SettleRequest{
		CorrelationID: "sup-2",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        50,
		Reason:        domain.ReasonSupport,
	}
	noop := func(ctx context.Context, paid *domain.LedgerEntry) (any, error) { return nil, nil }

	_, err := c.Settle(ctx, req, noop)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	s, err := c.Settle(ctx, req, noop)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NotNil(t, s)
	assert.True(t, s.Replayed)
	assert.Equal(t, domain.SettlementFailed, s.State)
}

func TestSettleCorrelationMismatch(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 0)
	c := newCoordinator(m)
	ctx := context.Background()
	noop := func(ctx context.Context, paid *domain.LedgerEntry) (any, error) { return nil, nil }

	req := SettleRequest{
		CorrelationID: "sup-3",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        25,
		Reason:        domain.ReasonSupport,
	}
	_, err := c.Settle(ctx, req, noop)
	require.NoError(t, err)

	req.Amount = 30
	_, err = c.Settle(ctx, req, noop)
	assert.ErrorIs(t, err, domain.ErrCorrelationMismatch)
	assert.Equal(t, int64(75), balanceOf(t, m, ids[0]))
}

func TestSettleTransientFailureFreesCorrelationID(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 0)
	flaky := &flakyStore{Ledger: m, failures: 100}
	c := newCoordinator(flaky)
	ctx := context.Background()
	noop := func(ctx context.Context, paid *domain.LedgerEntry) (any, error) { return nil, nil }

	req := SettleRequest{
		CorrelationID: "sup-4",
		PayerID:       ids[0],
		PayeeID:       ids[1],
		Amount:        25,
		Reason:        domain.ReasonSupport,
	}
	_, err := c.Settle(ctx, req, noop)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	// The store recovers; the same correlation id must be usable again.
	flaky.failures = 0
	s, err := c.Settle(ctx, req, noop)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, s.State)
	assert.Equal(t, int64(75), balanceOf(t, m, ids[0]))
}

func TestSettleValidation(t *testing.T) {
	m := store.NewMemory()
	ids := seedAccounts(t, m, 100, 0)
	c := newCoordinator(m)
	ctx := context.Background()
	noop := func(ctx context.Context, paid *domain.LedgerEntry) (any, error) { return nil, nil }

	_, err := c.Settle(ctx, SettleRequest{PayerID: ids[0], PayeeID: ids[1], Amount: 0, Reason: domain.ReasonSupport}, noop)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	_, err = c.Settle(ctx, SettleRequest{PayerID: ids[0], PayeeID: ids[0], Amount: 10, Reason: domain.ReasonSupport}, noop)
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)

	_, err = c.Settle(ctx, SettleRequest{PayerID: ids[0], PayeeID: ids[1], Amount: 10, Reason: "tip"}, noop)
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
}
