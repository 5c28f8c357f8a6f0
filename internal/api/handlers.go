package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/patronlane/tokenledger/internal/actions"
	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
)

type createAccountRequest struct {
	ID             *uuid.UUID `json:"id,omitempty"`
	OpeningBalance int64      `json:"opening_balance"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts")
		return
	}
	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}
	acc, err := h.store.CreateAccount(r.Context(), id, req.OpeningBalance)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, acc, "POST", "/accounts")
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", "GET", "/accounts/{id}")
		return
	}
	acc, err := h.query.Account(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, acc, "GET", "/accounts/{id}")
}

func (h *Handler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", "GET", "/accounts/{id}/history")
		return
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid since timestamp", "GET", "/accounts/{id}/history")
			return
		}
		since = &t
	}
	entries, err := h.query.History(r.Context(), id, since)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/history")
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", "/accounts/{id}/history")
}

type transferRequest struct {
	FromAccountID uuid.UUID     `json:"from_account_id"`
	ToAccountID   uuid.UUID     `json:"to_account_id"`
	Amount        int64         `json:"amount"`
	Reason        domain.Reason `json:"reason"`
}

// CreateTransferHandler exposes a raw transfer: a settlement with no domain
// write. Used by internal tooling; feature traffic goes through the paid
// action endpoints.
func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/transfers")
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/transfers")
		return
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonSupport
	}

	settlement, err := h.coord.Settle(r.Context(), ledger.SettleRequest{
		CorrelationID: key,
		PayerID:       req.FromAccountID,
		PayeeID:       req.ToAccountID,
		Amount:        req.Amount,
		Reason:        req.Reason,
	}, func(ctx context.Context, paid *domain.LedgerEntry) (any, error) {
		return nil, nil
	})
	if err != nil {
		h.respondDomainError(w, err, "POST", "/transfers")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/history", req.FromAccountID))
	h.respondSettlement(w, settlement, "POST", "/transfers")
}

type supportRequest struct {
	SupporterID uuid.UUID `json:"supporter_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Amount      int64     `json:"amount"`
	Message     string    `json:"message"`
}

func (h *Handler) SupportHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/support"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/support")
		return
	}
	var req supportRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/support")
		return
	}
	settlement, err := h.actions.Support(r.Context(), key, req.SupporterID, req.CreatorID, req.Amount, req.Message)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/support")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/support")
}

type supporterRequest struct {
	SupporterID uuid.UUID `json:"supporter_id"`
}

func (h *Handler) BuyGiftHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/gifts/{giftID}/purchase"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/gifts/{giftID}/purchase")
		return
	}
	giftID, err := pathUUID(r, "giftID")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid gift id", "POST", "/gifts/{giftID}/purchase")
		return
	}
	var req supporterRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/gifts/{giftID}/purchase")
		return
	}
	settlement, err := h.actions.BuyGift(r.Context(), key, req.SupporterID, giftID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/gifts/{giftID}/purchase")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/gifts/{giftID}/purchase")
}

func (h *Handler) ListGiftsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid creator id", "GET", "/creators/{id}/gifts")
		return
	}
	gifts, err := h.actions.Gifts(r.Context(), creatorID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/creators/{id}/gifts")
		return
	}
	if gifts == nil {
		gifts = []domain.Gift{}
	}
	h.respondJSON(w, http.StatusOK, gifts, "GET", "/creators/{id}/gifts")
}

func (h *Handler) UnlockPhotoSetHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/photo-sets/{setID}/unlock"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/photo-sets/{setID}/unlock")
		return
	}
	setID, err := pathUUID(r, "setID")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid photo set id", "POST", "/photo-sets/{setID}/unlock")
		return
	}
	var req supporterRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/photo-sets/{setID}/unlock")
		return
	}
	settlement, err := h.actions.UnlockPhotoSet(r.Context(), key, req.SupporterID, setID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/photo-sets/{setID}/unlock")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/photo-sets/{setID}/unlock")
}

type dateApplicationRequest struct {
	SupporterID uuid.UUID `json:"supporter_id"`
	actions.DateApplicationInput
}

func (h *Handler) DateApplicationHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/creators/{id}/date-applications"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/creators/{id}/date-applications")
		return
	}
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid creator id", "POST", "/creators/{id}/date-applications")
		return
	}
	var req dateApplicationRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/creators/{id}/date-applications")
		return
	}
	settlement, err := h.actions.ApplyForDate(r.Context(), key, req.SupporterID, creatorID, req.DateApplicationInput)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/creators/{id}/date-applications")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/creators/{id}/date-applications")
}

func (h *Handler) ListDateApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid creator id", "GET", "/creators/{id}/date-applications")
		return
	}
	apps, err := h.actions.DateApplications(r.Context(), creatorID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/creators/{id}/date-applications")
		return
	}
	if apps == nil {
		apps = []domain.DateApplication{}
	}
	h.respondJSON(w, http.StatusOK, apps, "GET", "/creators/{id}/date-applications")
}

func (h *Handler) UnlockChatHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/creators/{id}/chat-unlock"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/creators/{id}/chat-unlock")
		return
	}
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid creator id", "POST", "/creators/{id}/chat-unlock")
		return
	}
	var req supporterRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/creators/{id}/chat-unlock")
		return
	}
	settlement, err := h.actions.UnlockChat(r.Context(), key, req.SupporterID, creatorID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/creators/{id}/chat-unlock")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/creators/{id}/chat-unlock")
}

type topUpRequest struct {
	AccountID  uuid.UUID `json:"account_id"`
	Tokens     int64     `json:"tokens"`
	Method     string    `json:"method"`
	ExternalTx string    `json:"external_tx"`
}

func (h *Handler) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/topups"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/topups")
		return
	}
	var req topUpRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/topups")
		return
	}
	settlement, err := h.actions.TopUp(r.Context(), key, req.AccountID, req.Tokens, req.Method, req.ExternalTx)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/topups")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/topups")
}

type cashoutRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	Tokens      int64     `json:"tokens"`
	Destination string    `json:"destination"`
}

func (h *Handler) CashoutHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/cashouts"))
	defer timer.ObserveDuration()

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", "/cashouts")
		return
	}
	var req cashoutRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/cashouts")
		return
	}
	settlement, err := h.actions.Cashout(r.Context(), key, req.AccountID, req.Tokens, req.Destination)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/cashouts")
		return
	}
	h.respondSettlement(w, settlement, "POST", "/cashouts")
}

func (h *Handler) ListReconciliationHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.PendingReconciliations(r.Context(), 0)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/admin/reconciliation")
		return
	}
	if items == nil {
		items = []domain.ReconciliationItem{}
	}
	h.respondJSON(w, http.StatusOK, items, "GET", "/admin/reconciliation")
}
