package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Account holds a user's token balance. Account ids are issued by the
// identity provider; the ledger never invents them.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Reason classifies what a transfer paid for.
type Reason string

const (
	ReasonSupport      Reason = "support"
	ReasonGiftPurchase Reason = "gift_purchase"
	ReasonPhotoUnlock  Reason = "photo_unlock"
	ReasonDateFee      Reason = "date_application_fee"
	ReasonDateBoost    Reason = "date_application_boost"
	ReasonChatUnlock   Reason = "chat_unlock"
	ReasonTopUp        Reason = "topup"
	ReasonCashout      Reason = "cashout"
	ReasonRefund       Reason = "refund"
)

var validReasons = map[Reason]struct{}{
	ReasonSupport:      {},
	ReasonGiftPurchase: {},
	ReasonPhotoUnlock:  {},
	ReasonDateFee:      {},
	ReasonDateBoost:    {},
	ReasonChatUnlock:   {},
	ReasonTopUp:        {},
	ReasonCashout:      {},
	ReasonRefund:       {},
}

func (r Reason) Valid() bool {
	_, ok := validReasons[r]
	return ok
}

// LedgerEntry is the immutable record of one completed transfer. Entries are
// never updated or deleted; a compensation is a new entry with ReasonRefund
// whose RelatedEntryID points at the entry it reverses.
type LedgerEntry struct {
	ID              uuid.UUID  `json:"id"`
	FromAccountID   uuid.UUID  `json:"from_account_id"`
	ToAccountID     uuid.UUID  `json:"to_account_id"`
	Amount          int64      `json:"amount"`
	Reason          Reason     `json:"reason"`
	RelatedRecordID *uuid.UUID `json:"related_record_id,omitempty"`
	RelatedEntryID  *uuid.UUID `json:"related_entry_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TransferParams is the input to the transfer engine.
type TransferParams struct {
	FromAccountID   uuid.UUID
	ToAccountID     uuid.UUID
	Amount          int64
	Reason          Reason
	RelatedRecordID *uuid.UUID
	RelatedEntryID  *uuid.UUID
}

// SettlementState tracks a paid action through the coordinator.
type SettlementState string

const (
	SettlementInitiated    SettlementState = "initiated"
	SettlementTransferred  SettlementState = "transferred"
	SettlementCompensating SettlementState = "compensating"
	SettlementCompensated  SettlementState = "compensated"
	SettlementFinalized    SettlementState = "finalized"
	SettlementFailed       SettlementState = "failed"
)

// Terminal reports whether no further transition is possible. A settlement
// stuck in SettlementCompensating is owned by the reconciliation worker.
func (s SettlementState) Terminal() bool {
	switch s {
	case SettlementFinalized, SettlementFailed, SettlementCompensated:
		return true
	}
	return false
}

// Settlement is the outcome of one coordinator invocation. Record holds the
// marshaled domain record written by the paid action, so a correlation-id
// replay can return the first call's response verbatim.
type Settlement struct {
	CorrelationID string          `json:"correlation_id,omitempty"`
	State         SettlementState `json:"state"`
	Entry         *LedgerEntry    `json:"entry,omitempty"`
	Record        json.RawMessage `json:"record,omitempty"`
	Failure       string          `json:"failure,omitempty"`
	Replayed      bool            `json:"replayed,omitempty"`
}

// ReconciliationItem records a compensation that could not be issued. Items
// stay pending until the reconciliation worker (or an operator) lands the
// refund transfer.
type ReconciliationItem struct {
	ID            uuid.UUID  `json:"id"`
	EntryID       uuid.UUID  `json:"entry_id"`
	PayerID       uuid.UUID  `json:"payer_id"`
	PayeeID       uuid.UUID  `json:"payee_id"`
	Amount        int64      `json:"amount"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	LastError     string     `json:"last_error"`
	Attempts      int        `json:"attempts"`
	RefundEntryID *uuid.UUID `json:"refund_entry_id,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
