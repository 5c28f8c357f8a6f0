package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/patronlane/tokenledger/internal/domain"
)

// Records implementation. Same copy-on-read discipline as the ledger side.

func (m *Memory) CreateGift(_ context.Context, g *domain.Gift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now().UTC()
	cp := *g
	m.gifts[g.ID] = &cp
	return nil
}

func (m *Memory) Gift(_ context.Context, id uuid.UUID) (*domain.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gifts[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) GiftsByCreator(_ context.Context, creatorID uuid.UUID) ([]domain.Gift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Gift
	for _, g := range m.gifts {
		if g.CreatorID == creatorID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *Memory) CreatePhotoSet(_ context.Context, s *domain.PhotoSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	cp := *s
	m.photoSets[s.ID] = &cp
	return nil
}

func (m *Memory) PhotoSet(_ context.Context, id uuid.UUID) (*domain.PhotoSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.photoSets[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) CreateGiftPurchase(_ context.Context, p *domain.GiftPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *Memory) CreatePhotoUnlock(_ context.Context, u *domain.PhotoUnlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.unlocks[u.ID] = &cp
	return nil
}

func (m *Memory) HasPhotoUnlock(_ context.Context, photoSetID, supporterID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.unlocks {
		if u.PhotoSetID == photoSetID && u.SupporterID == supporterID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateDateApplication(_ context.Context, a *domain.DateApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	m.applications[a.ID] = &cp
	return nil
}

func (m *Memory) MarkApplicationBoosted(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	a.Boosted = true
	return nil
}

func (m *Memory) DateApplicationsByCreator(_ context.Context, creatorID uuid.UUID) ([]domain.DateApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.DateApplication
	for _, a := range m.applications {
		if a.CreatorID == creatorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *Memory) CreateSupportPledge(_ context.Context, p *domain.SupportPledge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.pledges[p.ID] = &cp
	return nil
}

func (m *Memory) HasChatAccess(_ context.Context, supporterID, creatorID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.chatAccess {
		if a.SupporterID == supporterID && a.CreatorID == creatorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateChatAccess(_ context.Context, a *domain.ChatAccess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	m.chatAccess[a.ID] = &cp
	return nil
}

func (m *Memory) FindThread(_ context.Context, supporterID, creatorID uuid.UUID) (*domain.ChatThread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.threads {
		if t.SupporterID == supporterID && t.CreatorID == creatorID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (m *Memory) CreateThread(_ context.Context, t *domain.ChatThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *Memory) SetAccessThread(_ context.Context, accessID, threadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.chatAccess[accessID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	a.ThreadID = &threadID
	return nil
}

func (m *Memory) CreatePendingPayment(_ context.Context, p *domain.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}
