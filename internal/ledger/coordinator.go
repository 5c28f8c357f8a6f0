package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/store"
)

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_settlements_total",
	Help: "Settlement outcomes, labeled by reason",
}, []string{"reason", "outcome"})

// Failure classes persisted on terminal settlements so a correlation-id
// replay can reproduce the first call's error.
const (
	failureInsufficientFunds   = "insufficient_funds"
	failureAccountNotFound     = "account_not_found"
	failureDomainWrite         = "domain_write_failed"
	failureCompensationPending = "compensation_pending"
)

// DomainWrite grants the benefit a settlement paid for. It receives the
// committed charge entry so the record it writes can reference it, and
// returns the created record for the settlement response.
type DomainWrite func(ctx context.Context, paid *domain.LedgerEntry) (any, error)

// SettleRequest identifies one paid action.
type SettleRequest struct {
	CorrelationID string
	PayerID       uuid.UUID
	PayeeID       uuid.UUID
	Amount        int64
	Reason        domain.Reason
}

// Coordinator composes a transfer with a dependent domain write. Either both
// succeed, or the transfer is compensated and the caller sees the domain
// error; the only partial state it can leave behind is a charge queued for
// reconciliation, reported distinctly as domain.ErrCompensationFailed.
type Coordinator struct {
	engine *Engine
	store  store.Ledger
	log    zerolog.Logger
}

func NewCoordinator(engine *Engine, s store.Ledger, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		engine: engine,
		store:  s,
		log:    log.With().Str("component", "settlement_coordinator").Logger(),
	}
}

// pendingAction is the transient in-flight state of one Settle call. It
// never outlives the invocation; only the correlation id persists.
type pendingAction struct {
	correlationID string
	state         domain.SettlementState
}

func (a *pendingAction) transition(log zerolog.Logger, next domain.SettlementState) {
	log.Debug().
		Str("correlation_id", a.correlationID).
		Str("from", string(a.state)).
		Str("to", string(next)).
		Msg("settlement state")
	a.state = next
}

// Settle charges the payer and invokes write. With a correlation id, repeated
// invocations with identical parameters return the first completed result
// instead of charging again.
func (c *Coordinator) Settle(ctx context.Context, req SettleRequest, write DomainWrite) (*domain.Settlement, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}
	if req.PayerID == req.PayeeID {
		return nil, domain.ErrSelfTransfer
	}
	if !req.Reason.Valid() {
		return nil, domain.ErrInvalidReason
	}

	if req.CorrelationID != "" {
		existing, err := c.store.ReserveSettlement(ctx, req.CorrelationID, hashParams(req))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			c.log.Info().
				Str("correlation_id", req.CorrelationID).
				Str("state", string(existing.State)).
				Msg("settlement replayed")
			settlementsTotal.WithLabelValues(string(req.Reason), "replay").Inc()
			return existing, replayError(existing)
		}
	}

	action := &pendingAction{correlationID: req.CorrelationID, state: domain.SettlementInitiated}

	entry, err := c.engine.Transfer(ctx, domain.TransferParams{
		FromAccountID: req.PayerID,
		ToAccountID:   req.PayeeID,
		Amount:        req.Amount,
		Reason:        req.Reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			// Outcome unknown to the caller but the unit of work never
			// committed; free the correlation id for a later retry.
			c.release(ctx, req.CorrelationID)
			return nil, err
		}
		action.transition(c.log, domain.SettlementFailed)
		c.finish(ctx, req.CorrelationID, domain.SettlementFailed, nil, nil, failureClass(err))
		settlementsTotal.WithLabelValues(string(req.Reason), "failed").Inc()
		return nil, err
	}
	action.transition(c.log, domain.SettlementTransferred)

	record, werr := write(ctx, entry)
	if werr == nil {
		raw, merr := json.Marshal(record)
		if merr != nil {
			c.log.Error().Err(merr).Str("entry_id", entry.ID.String()).Msg("settlement record marshal failed")
			raw = nil
		}
		action.transition(c.log, domain.SettlementFinalized)
		c.finish(ctx, req.CorrelationID, domain.SettlementFinalized, entry, raw, "")
		settlementsTotal.WithLabelValues(string(req.Reason), "finalized").Inc()
		return &domain.Settlement{
			CorrelationID: req.CorrelationID,
			State:         domain.SettlementFinalized,
			Entry:         entry,
			Record:        raw,
		}, nil
	}

	action.transition(c.log, domain.SettlementCompensating)
	c.log.Warn().
		Err(werr).
		Str("entry_id", entry.ID.String()).
		Msg("domain write failed, compensating transfer")

	refund, rerr := c.engine.Transfer(ctx, domain.TransferParams{
		FromAccountID:  req.PayeeID,
		ToAccountID:    req.PayerID,
		Amount:         req.Amount,
		Reason:         domain.ReasonRefund,
		RelatedEntryID: &entry.ID,
	})
	if rerr != nil {
		// True at-most-one-partial-failure window: tokens are with the payee
		// and no benefit was granted. Escalate, never swallow.
		item := &domain.ReconciliationItem{
			EntryID:       entry.ID,
			PayerID:       req.PayerID,
			PayeeID:       req.PayeeID,
			Amount:        req.Amount,
			CorrelationID: req.CorrelationID,
			LastError:     rerr.Error(),
			Attempts:      1,
		}
		if qerr := c.store.EnqueueReconciliation(ctx, item); qerr != nil {
			c.log.Error().
				Err(qerr).
				Str("entry_id", entry.ID.String()).
				Msg("reconciliation enqueue failed, manual remediation required")
		}
		c.log.Error().
			Err(rerr).
			Str("entry_id", entry.ID.String()).
			Str("correlation_id", req.CorrelationID).
			Msg("compensation failed, queued for reconciliation")
		c.finish(ctx, req.CorrelationID, domain.SettlementCompensating, entry, nil, failureCompensationPending)
		settlementsTotal.WithLabelValues(string(req.Reason), "compensation_failed").Inc()
		return nil, fmt.Errorf("%w: entry %s: %v", domain.ErrCompensationFailed, entry.ID, werr)
	}

	c.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("refund_entry_id", refund.ID.String()).
		Msg("settlement compensated")
	action.transition(c.log, domain.SettlementCompensated)
	c.finish(ctx, req.CorrelationID, domain.SettlementCompensated, entry, nil, failureDomainWrite)
	settlementsTotal.WithLabelValues(string(req.Reason), "compensated").Inc()
	return nil, fmt.Errorf("%w: %v", domain.ErrDomainWriteFailed, werr)
}

func (c *Coordinator) finish(ctx context.Context, correlationID string, state domain.SettlementState, entry *domain.LedgerEntry, record json.RawMessage, failure string) {
	if correlationID == "" {
		return
	}
	if err := c.store.CompleteSettlement(ctx, correlationID, state, entry, record, failure); err != nil {
		c.log.Error().
			Err(err).
			Str("correlation_id", correlationID).
			Msg("settlement bookkeeping failed")
	}
}

func (c *Coordinator) release(ctx context.Context, correlationID string) {
	if correlationID == "" {
		return
	}
	if err := c.store.ReleaseSettlement(ctx, correlationID); err != nil {
		c.log.Error().
			Err(err).
			Str("correlation_id", correlationID).
			Msg("settlement release failed")
	}
}

func hashParams(req SettleRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", req.PayerID, req.PayeeID, req.Amount, req.Reason)))
	return hex.EncodeToString(sum[:])
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return failureInsufficientFunds
	case errors.Is(err, domain.ErrAccountNotFound):
		return failureAccountNotFound
	default:
		return err.Error()
	}
}

// replayError reconstructs the error a replayed settlement originally
// surfaced, so retried requests observe a stable outcome.
func replayError(s *domain.Settlement) error {
	switch s.State {
	case domain.SettlementFinalized:
		return nil
	case domain.SettlementCompensated:
		return domain.ErrDomainWriteFailed
	case domain.SettlementCompensating:
		return domain.ErrCompensationFailed
	case domain.SettlementFailed:
		switch s.Failure {
		case failureInsufficientFunds:
			return domain.ErrInsufficientFunds
		case failureAccountNotFound:
			return domain.ErrAccountNotFound
		default:
			return fmt.Errorf("settlement failed: %s", s.Failure)
		}
	}
	return nil
}
