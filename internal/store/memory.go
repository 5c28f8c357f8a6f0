package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patronlane/tokenledger/internal/domain"
)

// Memory is an in-memory implementation of Ledger and Records with the same
// semantics as the Postgres store. Used by tests and local development.
//
// Balances are serialized per account: ApplyTransfer locks the two involved
// accounts in ascending id order, so opposite-direction transfers between the
// same pair cannot deadlock and unrelated accounts do not contend.
type Memory struct {
	mu          sync.RWMutex // guards maps and the entry log
	accounts    map[uuid.UUID]*memAccount
	entries     []domain.LedgerEntry
	settlements map[string]*memSettlement
	recon       map[uuid.UUID]*domain.ReconciliationItem
	reconOrder  []uuid.UUID

	gifts        map[uuid.UUID]*domain.Gift
	photoSets    map[uuid.UUID]*domain.PhotoSet
	purchases    map[uuid.UUID]*domain.GiftPurchase
	unlocks      map[uuid.UUID]*domain.PhotoUnlock
	applications map[uuid.UUID]*domain.DateApplication
	pledges      map[uuid.UUID]*domain.SupportPledge
	chatAccess   map[uuid.UUID]*domain.ChatAccess
	threads      map[uuid.UUID]*domain.ChatThread
	payments     map[uuid.UUID]*domain.PendingPayment
}

type memAccount struct {
	mu        sync.Mutex
	balance   int64
	createdAt time.Time
}

type memSettlement struct {
	paramsHash string
	state      domain.SettlementState
	entry      *domain.LedgerEntry
	record     json.RawMessage
	failure    string
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[uuid.UUID]*memAccount),
		settlements:  make(map[string]*memSettlement),
		recon:        make(map[uuid.UUID]*domain.ReconciliationItem),
		gifts:        make(map[uuid.UUID]*domain.Gift),
		photoSets:    make(map[uuid.UUID]*domain.PhotoSet),
		purchases:    make(map[uuid.UUID]*domain.GiftPurchase),
		unlocks:      make(map[uuid.UUID]*domain.PhotoUnlock),
		applications: make(map[uuid.UUID]*domain.DateApplication),
		pledges:      make(map[uuid.UUID]*domain.SupportPledge),
		chatAccess:   make(map[uuid.UUID]*domain.ChatAccess),
		threads:      make(map[uuid.UUID]*domain.ChatThread),
		payments:     make(map[uuid.UUID]*domain.PendingPayment),
	}
}

func (m *Memory) CreateAccount(_ context.Context, id uuid.UUID, openingBalance int64) (*domain.Account, error) {
	if openingBalance < 0 {
		return nil, domain.ErrNonPositiveAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; ok {
		return nil, domain.ErrAccountExists
	}
	acc := &memAccount{balance: openingBalance, createdAt: time.Now().UTC()}
	m.accounts[id] = acc
	return &domain.Account{ID: id, Balance: acc.balance, CreatedAt: acc.createdAt}, nil
}

func (m *Memory) Account(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	acc, ok := m.accounts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return &domain.Account{ID: id, Balance: acc.balance, CreatedAt: acc.createdAt}, nil
}

func (m *Memory) ApplyTransfer(_ context.Context, p domain.TransferParams) (*domain.LedgerEntry, error) {
	if p.FromAccountID == p.ToAccountID {
		return nil, domain.ErrSelfTransfer
	}
	m.mu.RLock()
	from, okFrom := m.accounts[p.FromAccountID]
	to, okTo := m.accounts[p.ToAccountID]
	m.mu.RUnlock()
	if !okFrom || !okTo {
		return nil, domain.ErrAccountNotFound
	}

	first, second := from, to
	if bytes.Compare(p.FromAccountID[:], p.ToAccountID[:]) > 0 {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.balance < p.Amount {
		return nil, domain.ErrInsufficientFunds
	}
	from.balance -= p.Amount
	to.balance += p.Amount

	entry := domain.LedgerEntry{
		ID:              uuid.New(),
		FromAccountID:   p.FromAccountID,
		ToAccountID:     p.ToAccountID,
		Amount:          p.Amount,
		Reason:          p.Reason,
		RelatedRecordID: p.RelatedRecordID,
		RelatedEntryID:  p.RelatedEntryID,
		CreatedAt:       time.Now().UTC(),
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return &entry, nil
}

func (m *Memory) Entries(_ context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	_, ok := m.accounts[accountID]
	if !ok {
		m.mu.RUnlock()
		return nil, domain.ErrAccountNotFound
	}
	var out []domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.FromAccountID != accountID && e.ToAccountID != accountID {
			continue
		}
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, e)
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *Memory) ReserveSettlement(_ context.Context, correlationID, paramsHash string) (*domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settlements[correlationID]; ok {
		if s.paramsHash != paramsHash {
			return nil, domain.ErrCorrelationMismatch
		}
		if s.state == domain.SettlementInitiated {
			return nil, domain.ErrSettlementInProgress
		}
		return &domain.Settlement{
			CorrelationID: correlationID,
			State:         s.state,
			Entry:         s.entry,
			Record:        s.record,
			Failure:       s.failure,
			Replayed:      true,
		}, nil
	}
	m.settlements[correlationID] = &memSettlement{paramsHash: paramsHash, state: domain.SettlementInitiated}
	return nil, nil
}

func (m *Memory) CompleteSettlement(_ context.Context, correlationID string, state domain.SettlementState, entry *domain.LedgerEntry, record json.RawMessage, failure string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[correlationID]
	if !ok {
		return domain.ErrSettlementNotFound
	}
	s.state = state
	s.entry = entry
	s.record = record
	s.failure = failure
	return nil
}

func (m *Memory) ReleaseSettlement(_ context.Context, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settlements, correlationID)
	return nil
}

func (m *Memory) EnqueueReconciliation(_ context.Context, item *domain.ReconciliationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now().UTC()
	cp := *item
	m.recon[item.ID] = &cp
	m.reconOrder = append(m.reconOrder, item.ID)
	return nil
}

func (m *Memory) PendingReconciliations(_ context.Context, limit int) ([]domain.ReconciliationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ReconciliationItem
	for _, id := range m.reconOrder {
		item := m.recon[id]
		if item.ResolvedAt != nil {
			continue
		}
		out = append(out, *item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ResolveReconciliation(_ context.Context, id, refundEntryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.recon[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	now := time.Now().UTC()
	item.ResolvedAt = &now
	item.RefundEntryID = &refundEntryID
	if item.CorrelationID != "" {
		if s, ok := m.settlements[item.CorrelationID]; ok {
			s.state = domain.SettlementCompensated
		}
	}
	return nil
}

func (m *Memory) BumpReconciliation(_ context.Context, id uuid.UUID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.recon[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	item.Attempts++
	item.LastError = lastError
	return nil
}
