package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/patronlane/tokenledger/internal/domain"
)

func (s *Postgres) CreateGift(ctx context.Context, g *domain.Gift) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO gifts (id, creator_id, name, price) VALUES ($1, $2, $3, $4) RETURNING created_at",
		g.ID, g.CreatorID, g.Name, g.Price,
	).Scan(&g.CreatedAt)
	return classify(err)
}

func (s *Postgres) Gift(ctx context.Context, id uuid.UUID) (*domain.Gift, error) {
	var g domain.Gift
	err := s.pool.QueryRow(ctx,
		"SELECT id, creator_id, name, price, created_at FROM gifts WHERE id = $1", id,
	).Scan(&g.ID, &g.CreatorID, &g.Name, &g.Price, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, classify(err)
	}
	return &g, nil
}

func (s *Postgres) GiftsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Gift, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, creator_id, name, price, created_at FROM gifts WHERE creator_id = $1 ORDER BY created_at", creatorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var gifts []domain.Gift
	for rows.Next() {
		var g domain.Gift
		if err := rows.Scan(&g.ID, &g.CreatorID, &g.Name, &g.Price, &g.CreatedAt); err != nil {
			return nil, classify(err)
		}
		gifts = append(gifts, g)
	}
	return gifts, classify(rows.Err())
}

func (s *Postgres) CreatePhotoSet(ctx context.Context, set *domain.PhotoSet) error {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO photo_sets (id, creator_id, title, price) VALUES ($1, $2, $3, $4) RETURNING created_at",
		set.ID, set.CreatorID, set.Title, set.Price,
	).Scan(&set.CreatedAt)
	return classify(err)
}

func (s *Postgres) PhotoSet(ctx context.Context, id uuid.UUID) (*domain.PhotoSet, error) {
	var set domain.PhotoSet
	err := s.pool.QueryRow(ctx,
		"SELECT id, creator_id, title, price, created_at FROM photo_sets WHERE id = $1", id,
	).Scan(&set.ID, &set.CreatorID, &set.Title, &set.Price, &set.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, classify(err)
	}
	return &set, nil
}

func (s *Postgres) CreateGiftPurchase(ctx context.Context, p *domain.GiftPurchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO gift_purchases (id, gift_id, supporter_id, creator_id, price, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		p.ID, p.GiftID, p.SupporterID, p.CreatorID, p.Price, p.PaidEntryID,
	).Scan(&p.CreatedAt)
	return classify(err)
}

func (s *Postgres) CreatePhotoUnlock(ctx context.Context, u *domain.PhotoUnlock) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO photo_unlocks (id, photo_set_id, supporter_id, creator_id, price, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		u.ID, u.PhotoSetID, u.SupporterID, u.CreatorID, u.Price, u.PaidEntryID,
	).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyUnlocked
	}
	return classify(err)
}

func (s *Postgres) HasPhotoUnlock(ctx context.Context, photoSetID, supporterID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM photo_unlocks WHERE photo_set_id = $1 AND supporter_id = $2)",
		photoSetID, supporterID,
	).Scan(&exists)
	return exists, classify(err)
}

func (s *Postgres) CreateDateApplication(ctx context.Context, a *domain.DateApplication) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO date_applications (id, supporter_id, creator_id, token_fee, proposed_date, proposed_time, location, plan, gift_ideas, boosted, status, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING created_at`,
		a.ID, a.SupporterID, a.CreatorID, a.TokenFee, a.ProposedDate, a.ProposedTime, a.Location, a.Plan, a.GiftIdeas, a.Boosted, a.Status, a.PaidEntryID,
	).Scan(&a.CreatedAt)
	return classify(err)
}

func (s *Postgres) MarkApplicationBoosted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "UPDATE date_applications SET boosted = TRUE WHERE id = $1", id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (s *Postgres) DateApplicationsByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.DateApplication, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, supporter_id, creator_id, token_fee, proposed_date, proposed_time, location, plan, gift_ideas, boosted, status, paid_entry_id, created_at
		 FROM date_applications WHERE creator_id = $1 ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var apps []domain.DateApplication
	for rows.Next() {
		var a domain.DateApplication
		if err := rows.Scan(&a.ID, &a.SupporterID, &a.CreatorID, &a.TokenFee, &a.ProposedDate, &a.ProposedTime, &a.Location, &a.Plan, &a.GiftIdeas, &a.Boosted, &a.Status, &a.PaidEntryID, &a.CreatedAt); err != nil {
			return nil, classify(err)
		}
		apps = append(apps, a)
	}
	return apps, classify(rows.Err())
}

func (s *Postgres) CreateSupportPledge(ctx context.Context, p *domain.SupportPledge) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO support_pledges (id, supporter_id, creator_id, amount, message, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		p.ID, p.SupporterID, p.CreatorID, p.Amount, p.Message, p.PaidEntryID,
	).Scan(&p.CreatedAt)
	return classify(err)
}

func (s *Postgres) HasChatAccess(ctx context.Context, supporterID, creatorID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM chat_access WHERE supporter_id = $1 AND creator_id = $2)",
		supporterID, creatorID,
	).Scan(&exists)
	return exists, classify(err)
}

func (s *Postgres) CreateChatAccess(ctx context.Context, a *domain.ChatAccess) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_access (id, supporter_id, creator_id, thread_id, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		a.ID, a.SupporterID, a.CreatorID, a.ThreadID, a.PaidEntryID,
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyUnlocked
	}
	return classify(err)
}

func (s *Postgres) FindThread(ctx context.Context, supporterID, creatorID uuid.UUID) (*domain.ChatThread, error) {
	var t domain.ChatThread
	err := s.pool.QueryRow(ctx,
		"SELECT id, supporter_id, creator_id, created_at FROM chat_threads WHERE supporter_id = $1 AND creator_id = $2",
		supporterID, creatorID,
	).Scan(&t.ID, &t.SupporterID, &t.CreatorID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, classify(err)
	}
	return &t, nil
}

func (s *Postgres) CreateThread(ctx context.Context, t *domain.ChatThread) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO chat_threads (id, supporter_id, creator_id) VALUES ($1, $2, $3) RETURNING created_at",
		t.ID, t.SupporterID, t.CreatorID,
	).Scan(&t.CreatedAt)
	return classify(err)
}

func (s *Postgres) SetAccessThread(ctx context.Context, accessID, threadID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "UPDATE chat_access SET thread_id = $1 WHERE id = $2", threadID, accessID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (s *Postgres) CreatePendingPayment(ctx context.Context, p *domain.PendingPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pending_payments (id, account_id, direction, method, external_tx, destination, tokens, paid_entry_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		p.ID, p.AccountID, p.Direction, p.Method, p.ExternalTx, p.Destination, p.Tokens, p.PaidEntryID,
	).Scan(&p.CreatedAt)
	return classify(err)
}
