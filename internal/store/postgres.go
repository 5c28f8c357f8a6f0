package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patronlane/tokenledger/internal/domain"
)

// Postgres implements Ledger and Records on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Pool() *pgxpool.Pool { return s.pool }

func (s *Postgres) Close() { s.pool.Close() }

// classify maps infrastructure failures to domain.ErrStoreUnavailable so the
// engine's retry policy can tell them apart from business errors. Anything
// that happened before commit has no effect, so retrying is safe.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected, lock_not_available,
		// or any connection-class error
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Postgres) CreateAccount(ctx context.Context, id uuid.UUID, openingBalance int64) (*domain.Account, error) {
	if openingBalance < 0 {
		return nil, domain.ErrNonPositiveAmount
	}
	var acc domain.Account
	err := s.pool.QueryRow(ctx,
		"INSERT INTO accounts (id, balance) VALUES ($1, $2) RETURNING id, balance, created_at",
		id, openingBalance,
	).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, classify(err)
	}
	return &acc, nil
}

func (s *Postgres) Account(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := s.pool.QueryRow(ctx,
		"SELECT id, balance, created_at FROM accounts WHERE id = $1", id,
	).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(err)
	}
	return &acc, nil
}

// ApplyTransfer executes debit, credit and entry append inside one
// transaction. Row locks are taken in ascending account-id order so two
// simultaneous opposite-direction transfers cannot deadlock.
func (s *Postgres) ApplyTransfer(ctx context.Context, p domain.TransferParams) (*domain.LedgerEntry, error) {
	if p.FromAccountID == p.ToAccountID {
		return nil, domain.ErrSelfTransfer
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, classify(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	first, second := p.FromAccountID, p.ToAccountID
	if first.String() > second.String() {
		first, second = second, first
	}

	var balance1, balance2 int64
	if err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", first).Scan(&balance1); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("lock acquisition failed: %w", err))
	}
	if err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", second).Scan(&balance2); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("lock acquisition failed: %w", err))
	}

	fromBalance := balance1
	if p.FromAccountID != first {
		fromBalance = balance2
	}
	if fromBalance < p.Amount {
		return nil, domain.ErrInsufficientFunds
	}

	entry := domain.LedgerEntry{
		ID:              uuid.New(),
		FromAccountID:   p.FromAccountID,
		ToAccountID:     p.ToAccountID,
		Amount:          p.Amount,
		Reason:          p.Reason,
		RelatedRecordID: p.RelatedRecordID,
		RelatedEntryID:  p.RelatedEntryID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (id, from_account_id, to_account_id, amount, reason, related_record_id, related_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		entry.ID, entry.FromAccountID, entry.ToAccountID, entry.Amount, entry.Reason, entry.RelatedRecordID, entry.RelatedEntryID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, classify(fmt.Errorf("ledger entry insert failed: %w", err))
	}

	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2", p.Amount, p.FromAccountID); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", p.Amount, p.ToAccountID); err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("tx commit failed: %w", err))
	}
	return &entry, nil
}

func (s *Postgres) Entries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists); err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, domain.ErrAccountNotFound
	}

	query := `SELECT id, from_account_id, to_account_id, amount, reason, related_record_id, related_entry_id, created_at
		FROM ledger_entries WHERE (from_account_id = $1 OR to_account_id = $1)`
	args := []any{accountID}
	if since != nil {
		query += " AND created_at >= $2"
		args = append(args, *since)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.FromAccountID, &e.ToAccountID, &e.Amount, &e.Reason, &e.RelatedRecordID, &e.RelatedEntryID, &e.CreatedAt); err != nil {
			return nil, classify(err)
		}
		entries = append(entries, e)
	}
	return entries, classify(rows.Err())
}

func (s *Postgres) ReserveSettlement(ctx context.Context, correlationID, paramsHash string) (*domain.Settlement, error) {
	var (
		storedHash string
		state      domain.SettlementState
		entryID    *uuid.UUID
		record     json.RawMessage
		failure    *string
	)
	err := s.pool.QueryRow(ctx,
		"SELECT params_hash, state, entry_id, record, failure FROM settlements WHERE correlation_id = $1",
		correlationID,
	).Scan(&storedHash, &state, &entryID, &record, &failure)

	switch {
	case err == nil:
		if storedHash != paramsHash {
			return nil, domain.ErrCorrelationMismatch
		}
		if state == domain.SettlementInitiated {
			return nil, domain.ErrSettlementInProgress
		}
		settlement := &domain.Settlement{
			CorrelationID: correlationID,
			State:         state,
			Record:        record,
			Replayed:      true,
		}
		if failure != nil {
			settlement.Failure = *failure
		}
		if entryID != nil {
			entry, err := s.entryByID(ctx, *entryID)
			if err != nil {
				return nil, err
			}
			settlement.Entry = entry
		}
		return settlement, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to reservation
	default:
		return nil, classify(fmt.Errorf("settlement lookup failed: %w", err))
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO settlements (correlation_id, params_hash, state) VALUES ($1, $2, $3)",
		correlationID, paramsHash, domain.SettlementInitiated)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrSettlementInProgress
		}
		return nil, classify(fmt.Errorf("settlement reservation failed: %w", err))
	}
	return nil, nil
}

func (s *Postgres) entryByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, from_account_id, to_account_id, amount, reason, related_record_id, related_entry_id, created_at
		 FROM ledger_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.FromAccountID, &e.ToAccountID, &e.Amount, &e.Reason, &e.RelatedRecordID, &e.RelatedEntryID, &e.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return &e, nil
}

func (s *Postgres) CompleteSettlement(ctx context.Context, correlationID string, state domain.SettlementState, entry *domain.LedgerEntry, record json.RawMessage, failure string) error {
	var entryID *uuid.UUID
	if entry != nil {
		entryID = &entry.ID
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE settlements SET state = $1, entry_id = $2, record = $3, failure = NULLIF($4, ''), updated_at = now() WHERE correlation_id = $5",
		state, entryID, record, failure, correlationID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotFound
	}
	return nil
}

func (s *Postgres) ReleaseSettlement(ctx context.Context, correlationID string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM settlements WHERE correlation_id = $1 AND state = $2",
		correlationID, domain.SettlementInitiated)
	return classify(err)
}

func (s *Postgres) EnqueueReconciliation(ctx context.Context, item *domain.ReconciliationItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reconciliation_queue (id, entry_id, payer_id, payee_id, amount, correlation_id, last_error, attempts)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8) RETURNING created_at`,
		item.ID, item.EntryID, item.PayerID, item.PayeeID, item.Amount, item.CorrelationID, item.LastError, item.Attempts,
	).Scan(&item.CreatedAt)
	return classify(err)
}

func (s *Postgres) PendingReconciliations(ctx context.Context, limit int) ([]domain.ReconciliationItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, entry_id, payer_id, payee_id, amount, COALESCE(correlation_id, ''), last_error, attempts, refund_entry_id, resolved_at, created_at
		 FROM reconciliation_queue WHERE resolved_at IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var items []domain.ReconciliationItem
	for rows.Next() {
		var it domain.ReconciliationItem
		if err := rows.Scan(&it.ID, &it.EntryID, &it.PayerID, &it.PayeeID, &it.Amount, &it.CorrelationID, &it.LastError, &it.Attempts, &it.RefundEntryID, &it.ResolvedAt, &it.CreatedAt); err != nil {
			return nil, classify(err)
		}
		items = append(items, it)
	}
	return items, classify(rows.Err())
}

func (s *Postgres) ResolveReconciliation(ctx context.Context, id, refundEntryID uuid.UUID) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var correlationID *string
	err = tx.QueryRow(ctx,
		"UPDATE reconciliation_queue SET resolved_at = now(), refund_entry_id = $1 WHERE id = $2 RETURNING correlation_id",
		refundEntryID, id,
	).Scan(&correlationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRecordNotFound
		}
		return classify(err)
	}
	if correlationID != nil {
		if _, err := tx.Exec(ctx,
			"UPDATE settlements SET state = $1, updated_at = now() WHERE correlation_id = $2",
			domain.SettlementCompensated, *correlationID); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit(ctx))
}

func (s *Postgres) BumpReconciliation(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE reconciliation_queue SET attempts = attempts + 1, last_error = $1 WHERE id = $2",
		lastError, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
