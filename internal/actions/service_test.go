package actions_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlane/tokenledger/internal/actions"
	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
	"github.com/patronlane/tokenledger/internal/store"
)

type fixture struct {
	mem      *store.Memory
	svc      *actions.Service
	treasury uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	log := zerolog.Nop()
	engine := ledger.NewEngine(mem, log)
	coord := ledger.NewCoordinator(engine, mem, log)

	treasury := uuid.New()
	_, err := mem.CreateAccount(context.Background(), treasury, 1_000_000)
	require.NoError(t, err)

	return &fixture{
		mem:      mem,
		svc:      actions.NewService(coord, mem, treasury, log),
		treasury: treasury,
	}
}

func (f *fixture) account(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.mem.CreateAccount(context.Background(), id, balance)
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	acc, err := f.mem.Account(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestSupport(t *testing.T) {
	f := newFixture(t)
	supporter := f.account(t, 100)
	creator := f.account(t, 0)

	s, err := f.svc.Support(context.Background(), "sup-1", supporter, creator, 40, "keep it up")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, s.State)

	var pledge domain.SupportPledge
	require.NoError(t, json.Unmarshal(s.Record, &pledge))
	assert.Equal(t, int64(40), pledge.Amount)
	assert.Equal(t, "keep it up", pledge.Message)
	assert.Equal(t, s.Entry.ID, pledge.PaidEntryID)

	assert.Equal(t, int64(60), f.balance(t, supporter))
	assert.Equal(t, int64(40), f.balance(t, creator))
}

func TestBuyGiftUsesCatalogPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supporter := f.account(t, 100)
	creator := f.account(t, 0)

	gift := &domain.Gift{CreatorID: creator, Name: "Rose", Price: 30}
	require.NoError(t, f.mem.CreateGift(ctx, gift))

	s, err := f.svc.BuyGift(ctx, "gift-1", supporter, gift.ID)
	require.NoError(t, err)

	var purchase domain.GiftPurchase
	require.NoError(t, json.Unmarshal(s.Record, &purchase))
	assert.Equal(t, gift.ID, purchase.GiftID)
	assert.Equal(t, int64(30), purchase.Price)

	assert.Equal(t, int64(70), f.balance(t, supporter))
	assert.Equal(t, int64(30), f.balance(t, creator))
}

func TestBuyGiftUnknownGift(t *testing.T) {
	f := newFixture(t)
	supporter := f.account(t, 100)

	_, err := f.svc.BuyGift(context.Background(), "gift-2", supporter, uuid.New())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.Equal(t, int64(100), f.balance(t, supporter))
}

func TestUnlockPhotoSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supporter := f.account(t, 200)
	creator := f.account(t, 0)

	set := &domain.PhotoSet{CreatorID: creator, Title: "Summer", Price: 75}
	require.NoError(t, f.mem.CreatePhotoSet(ctx, set))

	s, err := f.svc.UnlockPhotoSet(ctx, "unlock-1", supporter, set.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, s.State)
	assert.Equal(t, int64(125), f.balance(t, supporter))

	// A second unlock attempt with a new correlation id is rejected before
	// any tokens move.
	_, err = f.svc.UnlockPhotoSet(ctx, "unlock-2", supporter, set.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyUnlocked)
	assert.Equal(t, int64(125), f.balance(t, supporter))
}

func TestApplyForDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supporter := f.account(t, 200)
	creator := f.account(t, 0)

	s, err := f.svc.ApplyForDate(ctx, "date-1", supporter, creator, actions.DateApplicationInput{
		ProposedDate: "2026-09-12",
		Location:     "Lisbon",
		Plan:         "dinner",
	})
	require.NoError(t, err)

	var app domain.DateApplication
	require.NoError(t, json.Unmarshal(s.Record, &app))
	assert.Equal(t, "pending", app.Status)
	assert.False(t, app.Boosted)
	assert.Equal(t, actions.DateApplicationFee, app.TokenFee)

	assert.Equal(t, 200-actions.DateApplicationFee, f.balance(t, supporter))
	assert.Equal(t, actions.DateApplicationFee, f.balance(t, creator))
}

func TestApplyForDateBoosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supporter := f.account(t, 200)
	creator := f.account(t, 0)

	s, err := f.svc.ApplyForDate(ctx, "date-2", supporter, creator, actions.DateApplicationInput{
		ProposedDate: "2026-09-12",
		Boosted:      true,
	})
	require.NoError(t, err)

	var app domain.DateApplication
	require.NoError(t, json.Unmarshal(s.Record, &app))
	assert.True(t, app.Boosted)
	assert.Equal(t, actions.DateApplicationFee+actions.DateBoostFee, app.TokenFee)

	total := actions.DateApplicationFee + actions.DateBoostFee
	assert.Equal(t, 200-total, f.balance(t, supporter))
	assert.Equal(t, total, f.balance(t, creator))

	apps, err := f.svc.DateApplications(ctx, creator)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.True(t, apps[0].Boosted)

	// Base fee and boost are separate entries in the supporter's history.
	entries, err := f.mem.Entries(ctx, supporter, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ReasonDateBoost, entries[0].Reason)
	assert.Equal(t, domain.ReasonDateFee, entries[1].Reason)
}

func TestApplyForDateBoostInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Covers the base fee but not the boost.
	supporter := f.account(t, actions.DateApplicationFee+5)
	creator := f.account(t, 0)

	s, err := f.svc.ApplyForDate(ctx, "date-3", supporter, creator, actions.DateApplicationInput{Boosted: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NotNil(t, s)

	// The application stands unboosted; only the base fee was charged.
	var app domain.DateApplication
	require.NoError(t, json.Unmarshal(s.Record, &app))
	assert.False(t, app.Boosted)
	assert.Equal(t, int64(5), f.balance(t, supporter))

	apps, err := f.svc.DateApplications(ctx, creator)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.False(t, apps[0].Boosted)
}

func TestUnlockChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supporter := f.account(t, 100)
	creator := f.account(t, 0)

	s, err := f.svc.UnlockChat(ctx, "chat-1", supporter, creator)
	require.NoError(t, err)

	var access domain.ChatAccess
	require.NoError(t, json.Unmarshal(s.Record, &access))
	require.NotNil(t, access.ThreadID)

	thread, err := f.mem.FindThread(ctx, supporter, creator)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, *access.ThreadID)

	assert.Equal(t, 100-actions.ChatUnlockPrice, f.balance(t, supporter))

	_, err = f.svc.UnlockChat(ctx, "chat-2", supporter, creator)
	assert.ErrorIs(t, err, domain.ErrAlreadyUnlocked)
}

func TestTopUpIssuesFromTreasury(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, 0)

	s, err := f.svc.TopUp(ctx, "top-1", account, 500, "crypto", "0xabc")
	require.NoError(t, err)

	var payment domain.PendingPayment
	require.NoError(t, json.Unmarshal(s.Record, &payment))
	assert.Equal(t, "topup", payment.Direction)
	assert.Equal(t, "0xabc", payment.ExternalTx)

	assert.Equal(t, int64(500), f.balance(t, account))
	assert.Equal(t, int64(1_000_000-500), f.balance(t, f.treasury))
}

func TestCashout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, 100)

	_, err := f.svc.Cashout(ctx, "cash-1", account, actions.MinCashoutTokens-1, "iban")
	assert.ErrorIs(t, err, domain.ErrBelowMinimumCashout)
	assert.Equal(t, int64(100), f.balance(t, account))

	s, err := f.svc.Cashout(ctx, "cash-2", account, 60, "iban")
	require.NoError(t, err)

	var payment domain.PendingPayment
	require.NoError(t, json.Unmarshal(s.Record, &payment))
	assert.Equal(t, "cashout", payment.Direction)
	assert.Equal(t, "iban", payment.Destination)

	assert.Equal(t, int64(40), f.balance(t, account))
	assert.Equal(t, int64(1_000_060), f.balance(t, f.treasury))
}

func TestGiftsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.account(t, 0)

	require.NoError(t, f.mem.CreateGift(ctx, &domain.Gift{CreatorID: creator, Name: "Rose", Price: 5}))
	require.NoError(t, f.mem.CreateGift(ctx, &domain.Gift{CreatorID: creator, Name: "Bear", Price: 25}))
	require.NoError(t, f.mem.CreateGift(ctx, &domain.Gift{CreatorID: uuid.New(), Name: "Other", Price: 1}))

	gifts, err := f.svc.Gifts(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, gifts, 2)
}
