// Package reconcile retries compensating transfers that failed inside the
// settlement coordinator. Every queued item represents a charge whose benefit
// was never granted; the worker keeps trying until the refund lands or an
// operator steps in via the admin listing.
package reconcile

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
	"github.com/patronlane/tokenledger/internal/store"
)

const (
	defaultBatchSize  = 100
	defaultRunTimeout = 30 * time.Second
)

type Worker struct {
	store  store.Ledger
	engine *ledger.Engine
	cron   *cron.Cron
	log    zerolog.Logger
	batch  int
}

func NewWorker(s store.Ledger, engine *ledger.Engine, log zerolog.Logger) *Worker {
	return &Worker{
		store:  s,
		engine: engine,
		cron:   cron.New(),
		log:    log.With().Str("component", "reconcile_worker").Logger(),
		batch:  defaultBatchSize,
	}
}

// Start schedules RunOnce on the given cron spec (e.g. "@every 1m").
func (w *Worker) Start(schedule string) error {
	_, err := w.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
		defer cancel()
		w.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.log.Info().Str("schedule", schedule).Msg("reconciliation worker started")
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// RunOnce retries every pending item once. Exported so tests and operator
// tooling can drive the queue without the scheduler.
func (w *Worker) RunOnce(ctx context.Context) {
	items, err := w.store.PendingReconciliations(ctx, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("pending reconciliation scan failed")
		return
	}
	for i := range items {
		w.retry(ctx, &items[i])
	}
}

func (w *Worker) retry(ctx context.Context, item *domain.ReconciliationItem) {
	refund, err := w.engine.Transfer(ctx, domain.TransferParams{
		FromAccountID:  item.PayeeID,
		ToAccountID:    item.PayerID,
		Amount:         item.Amount,
		Reason:         domain.ReasonRefund,
		RelatedEntryID: &item.EntryID,
	})
	if err != nil {
		w.log.Error().
			Err(err).
			Str("item_id", item.ID.String()).
			Str("entry_id", item.EntryID.String()).
			Int("attempts", item.Attempts+1).
			Msg("reconciliation retry failed")
		if berr := w.store.BumpReconciliation(ctx, item.ID, err.Error()); berr != nil {
			w.log.Error().Err(berr).Str("item_id", item.ID.String()).Msg("reconciliation bump failed")
		}
		return
	}
	if err := w.store.ResolveReconciliation(ctx, item.ID, refund.ID); err != nil {
		w.log.Error().
			Err(err).
			Str("item_id", item.ID.String()).
			Str("refund_entry_id", refund.ID.String()).
			Msg("reconciliation resolve failed after refund")
		return
	}
	w.log.Info().
		Str("item_id", item.ID.String()).
		Str("entry_id", item.EntryID.String()).
		Str("refund_entry_id", refund.ID.String()).
		Msg("reconciliation resolved")
}
