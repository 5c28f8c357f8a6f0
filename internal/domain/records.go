package domain

import (
	"time"

	"github.com/google/uuid"
)

// Catalog and benefit records for the paid actions. Each benefit record keeps
// the id of the ledger entry that paid for it: the audit trail proving payment
// happened before the benefit was granted.

// Gift is a catalog item offered by a creator.
type Gift struct {
	ID        uuid.UUID `json:"id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// PhotoSet is an unlockable set of photos with a token price.
type PhotoSet struct {
	ID        uuid.UUID `json:"id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// GiftPurchase records one gift bought by a supporter.
type GiftPurchase struct {
	ID          uuid.UUID `json:"id"`
	GiftID      uuid.UUID `json:"gift_id"`
	SupporterID uuid.UUID `json:"supporter_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Price       int64     `json:"price"`
	PaidEntryID uuid.UUID `json:"paid_entry_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PhotoUnlock grants a supporter permanent access to a photo set.
type PhotoUnlock struct {
	ID          uuid.UUID `json:"id"`
	PhotoSetID  uuid.UUID `json:"photo_set_id"`
	SupporterID uuid.UUID `json:"supporter_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Price       int64     `json:"price"`
	PaidEntryID uuid.UUID `json:"paid_entry_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DateApplication is a supporter's paid request for a date with a creator.
type DateApplication struct {
	ID           uuid.UUID `json:"id"`
	SupporterID  uuid.UUID `json:"supporter_id"`
	CreatorID    uuid.UUID `json:"creator_id"`
	TokenFee     int64     `json:"token_fee"`
	ProposedDate string    `json:"proposed_date"`
	ProposedTime string    `json:"proposed_time"`
	Location     string    `json:"location"`
	Plan         string    `json:"plan"`
	GiftIdeas    string    `json:"gift_ideas"`
	Boosted      bool      `json:"boosted"`
	Status       string    `json:"status"`
	PaidEntryID  uuid.UUID `json:"paid_entry_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// SupportPledge records a direct support payment with an optional message.
type SupportPledge struct {
	ID          uuid.UUID `json:"id"`
	SupporterID uuid.UUID `json:"supporter_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Amount      int64     `json:"amount"`
	Message     string    `json:"message,omitempty"`
	PaidEntryID uuid.UUID `json:"paid_entry_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatAccess grants a supporter paid messaging access to a creator. ThreadID
// is back-filled once the thread exists.
type ChatAccess struct {
	ID          uuid.UUID  `json:"id"`
	SupporterID uuid.UUID  `json:"supporter_id"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	ThreadID    *uuid.UUID `json:"thread_id,omitempty"`
	PaidEntryID uuid.UUID  `json:"paid_entry_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChatThread is the supporter-creator conversation container.
type ChatThread struct {
	ID          uuid.UUID `json:"id"`
	SupporterID uuid.UUID `json:"supporter_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingPayment links a ledger movement to the external payment processor:
// top-ups reference the inbound transaction, cashouts the requested payout.
type PendingPayment struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Direction   string    `json:"direction"` // "topup" or "cashout"
	Method      string    `json:"method"`    // e.g. "crypto", "bank"
	ExternalTx  string    `json:"external_tx,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Tokens      int64     `json:"tokens"`
	PaidEntryID uuid.UUID `json:"paid_entry_id"`
	CreatedAt   time.Time `json:"created_at"`
}
