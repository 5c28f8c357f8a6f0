package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/store"
)

// Query is the read-only facade for dashboards. It only ever sees committed
// state: the store exposes nothing from in-flight units of work.
type Query struct {
	store store.Ledger
}

func NewQuery(s store.Ledger) *Query {
	return &Query{store: s}
}

func (q *Query) Account(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return q.store.Account(ctx, id)
}

func (q *Query) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	acc, err := q.store.Account(ctx, id)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// History returns the account's committed ledger entries, newest first,
// optionally limited to those created at or after since.
func (q *Query) History(ctx context.Context, id uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	return q.store.Entries(ctx, id, since)
}
