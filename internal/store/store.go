// Package store defines the persistence contracts for the token ledger and
// provides the Postgres and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/patronlane/tokenledger/internal/domain"
)

// Ledger is the single shared mutable resource of the system. ApplyTransfer
// is its only balance mutation point; everything else reads committed state
// or manages settlement bookkeeping.
type Ledger interface {
	// CreateAccount registers an account with an opening balance. Returns
	// domain.ErrAccountExists if the id is taken.
	CreateAccount(ctx context.Context, id uuid.UUID, openingBalance int64) (*domain.Account, error)

	// Account returns the committed balance for id, or domain.ErrAccountNotFound.
	Account(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// ApplyTransfer executes debit, credit and entry append as one atomic unit
	// of work, serialized per account with locks taken in ascending id order.
	// On any error no balance change and no entry are visible.
	ApplyTransfer(ctx context.Context, p domain.TransferParams) (*domain.LedgerEntry, error)

	// Entries returns committed entries touching the account, newest first,
	// optionally restricted to those created at or after since.
	Entries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error)

	// ReserveSettlement claims a correlation id for a new settlement. It
	// returns (nil, nil) when the reservation is fresh, the stored settlement
	// when a terminal one already exists with the same parameters hash,
	// domain.ErrSettlementInProgress when the first invocation is still
	// running, and domain.ErrCorrelationMismatch on a hash mismatch.
	ReserveSettlement(ctx context.Context, correlationID, paramsHash string) (*domain.Settlement, error)

	// CompleteSettlement records the terminal outcome for a reserved
	// correlation id. For compensation failures the recorded state is
	// SettlementCompensating; the reconciliation worker finishes it.
	CompleteSettlement(ctx context.Context, correlationID string, state domain.SettlementState, entry *domain.LedgerEntry, record json.RawMessage, failure string) error

	// ReleaseSettlement drops a reservation whose outcome is unknown
	// (transient store failure before commit), so the caller may retry with
	// the same correlation id.
	ReleaseSettlement(ctx context.Context, correlationID string) error

	// EnqueueReconciliation persists a failed compensation for retry.
	EnqueueReconciliation(ctx context.Context, item *domain.ReconciliationItem) error

	// PendingReconciliations lists unresolved items, oldest first.
	PendingReconciliations(ctx context.Context, limit int) ([]domain.ReconciliationItem, error)

	// ResolveReconciliation marks an item refunded and, when the item carries
	// a correlation id, moves its settlement to SettlementCompensated.
	ResolveReconciliation(ctx context.Context, id, refundEntryID uuid.UUID) error

	// BumpReconciliation increments the attempt count after a failed retry.
	BumpReconciliation(ctx context.Context, id uuid.UUID, lastError string) error
}

// Records is the domain-record collaborator written by paid-action closures.
type Records interface {
	CreateGift(ctx context.Context, g *domain.Gift) error
	Gift(ctx context.Context, id uuid.UUID) (*domain.Gift, error)
	GiftsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Gift, error)

	CreatePhotoSet(ctx context.Context, s *domain.PhotoSet) error
	PhotoSet(ctx context.Context, id uuid.UUID) (*domain.PhotoSet, error)

	CreateGiftPurchase(ctx context.Context, p *domain.GiftPurchase) error
	CreatePhotoUnlock(ctx context.Context, u *domain.PhotoUnlock) error
	HasPhotoUnlock(ctx context.Context, photoSetID, supporterID uuid.UUID) (bool, error)

	CreateDateApplication(ctx context.Context, a *domain.DateApplication) error
	MarkApplicationBoosted(ctx context.Context, id uuid.UUID) error
	DateApplicationsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.DateApplication, error)

	CreateSupportPledge(ctx context.Context, p *domain.SupportPledge) error

	HasChatAccess(ctx context.Context, supporterID, creatorID uuid.UUID) (bool, error)
	CreateChatAccess(ctx context.Context, a *domain.ChatAccess) error
	FindThread(ctx context.Context, supporterID, creatorID uuid.UUID) (*domain.ChatThread, error)
	CreateThread(ctx context.Context, t *domain.ChatThread) error
	SetAccessThread(ctx context.Context, accessID, threadID uuid.UUID) error

	CreatePendingPayment(ctx context.Context, p *domain.PendingPayment) error
}
