package domain

import "errors"

var (
	// ErrInsufficientFunds is returned when the payer's balance cannot cover
	// the transfer. User-correctable; never retried.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account whose id is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrSelfTransfer is returned when payer and payee are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to self")
	// ErrNonPositiveAmount is returned for zero or negative amounts.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrInvalidReason is returned for a reason outside the known set.
	ErrInvalidReason = errors.New("invalid transfer reason")

	// ErrStoreUnavailable marks an infrastructure failure that happened before
	// the unit of work committed. Safe to retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSettlementInProgress is returned when a correlation id is reused
	// while the first invocation is still running.
	ErrSettlementInProgress = errors.New("settlement in progress")
	// ErrCorrelationMismatch is returned when a correlation id is reused with
	// different parameters.
	ErrCorrelationMismatch = errors.New("correlation id reused with mismatched parameters")
	// ErrSettlementNotFound is returned when a correlation id has no record.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrDomainWriteFailed is returned when the benefit-granting write failed
	// and the charge was compensated. Balances are back to their pre-call
	// values when the caller sees this.
	ErrDomainWriteFailed = errors.New("domain write failed")
	// ErrCompensationFailed is returned when the refund after a failed domain
	// write could not be issued. The charge is queued for reconciliation:
	// payment received, fulfillment pending manual review.
	ErrCompensationFailed = errors.New("compensation failed, queued for reconciliation")

	// ErrRecordNotFound is returned for missing catalog or domain records.
	ErrRecordNotFound = errors.New("record not found")
	// ErrAlreadyUnlocked is returned when a supporter re-buys access they
	// already hold (photo set, chat). Checked before any tokens move.
	ErrAlreadyUnlocked = errors.New("already unlocked")
	// ErrBelowMinimumCashout is returned for cashouts under the minimum.
	ErrBelowMinimumCashout = errors.New("below minimum cashout")
)
