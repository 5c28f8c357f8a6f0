// Package ledger implements the transfer engine, the paid-action coordinator
// and the read-side query facade. The engine is the only path through which
// balances change; feature code settles paid actions via the coordinator.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/store"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 50 * time.Millisecond
)

// Engine validates and executes two-party token transfers. Atomicity and
// per-account serialization live in the store; the engine owns precondition
// checks and the bounded retry policy for transient store failures.
type Engine struct {
	store       store.Ledger
	log         zerolog.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewEngine(s store.Ledger, log zerolog.Logger) *Engine {
	return &Engine{
		store:       s,
		log:         log.With().Str("component", "transfer_engine").Logger(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// Transfer moves amount tokens from payer to payee and returns the appended
// ledger entry. Transient store failures are retried with exponential backoff
// up to a bounded attempt count; the operation has not taken effect when such
// a failure is reported, so retrying cannot double-spend.
func (e *Engine) Transfer(ctx context.Context, p domain.TransferParams) (*domain.LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}
	if p.FromAccountID == p.ToAccountID {
		return nil, domain.ErrSelfTransfer
	}
	if !p.Reason.Valid() {
		return nil, domain.ErrInvalidReason
	}

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.backoff << (attempt - 1)
			e.log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("transient store failure, retrying transfer")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		entry, err := e.store.ApplyTransfer(ctx, p)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("transfer not applied after %d attempts: %w", e.maxAttempts, lastErr)
}
