package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/actions"
	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
	"github.com/patronlane/tokenledger/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	query   *ledger.Query
	coord   *ledger.Coordinator
	actions *actions.Service
	store   store.Ledger
	log     zerolog.Logger
}

func NewHandler(query *ledger.Query, coord *ledger.Coordinator, svc *actions.Service, s store.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		query:   query,
		coord:   coord,
		actions: svc,
		store:   s,
		log:     log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/history", h.GetHistoryHandler).Methods("GET")
	apiV1.HandleFunc("/transfers", h.CreateTransferHandler).Methods("POST")

	apiV1.HandleFunc("/support", h.SupportHandler).Methods("POST")
	apiV1.HandleFunc("/gifts/{giftID}/purchase", h.BuyGiftHandler).Methods("POST")
	apiV1.HandleFunc("/creators/{id}/gifts", h.ListGiftsHandler).Methods("GET")
	apiV1.HandleFunc("/photo-sets/{setID}/unlock", h.UnlockPhotoSetHandler).Methods("POST")
	apiV1.HandleFunc("/creators/{id}/date-applications", h.DateApplicationHandler).Methods("POST")
	apiV1.HandleFunc("/creators/{id}/date-applications", h.ListDateApplicationsHandler).Methods("GET")
	apiV1.HandleFunc("/creators/{id}/chat-unlock", h.UnlockChatHandler).Methods("POST")
	apiV1.HandleFunc("/topups", h.TopUpHandler).Methods("POST")
	apiV1.HandleFunc("/cashouts", h.CashoutHandler).Methods("POST")

	apiV1.HandleFunc("/admin/reconciliation", h.ListReconciliationHandler).Methods("GET")
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// statusFor maps domain errors to HTTP status and a caller-facing message.
// Compensation failures get a distinct message: the charge stands until
// reconciliation, which is neither ordinary success nor ordinary failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "Insufficient funds"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict, "Account already exists"
	case errors.Is(err, domain.ErrSettlementInProgress):
		return http.StatusConflict, "Request processing in progress"
	case errors.Is(err, domain.ErrCorrelationMismatch):
		return http.StatusUnprocessableEntity, "Idempotency key reuse with mismatched payload"
	case errors.Is(err, domain.ErrAlreadyUnlocked):
		return http.StatusConflict, "Already unlocked"
	case errors.Is(err, domain.ErrBelowMinimumCashout):
		return http.StatusUnprocessableEntity, "Below minimum cashout"
	case errors.Is(err, domain.ErrNonPositiveAmount):
		return http.StatusUnprocessableEntity, "Positive amount required"
	case errors.Is(err, domain.ErrSelfTransfer):
		return http.StatusUnprocessableEntity, "Self-transfer not allowed"
	case errors.Is(err, domain.ErrInvalidReason):
		return http.StatusUnprocessableEntity, "Invalid reason"
	case errors.Is(err, domain.ErrCompensationFailed):
		return http.StatusInternalServerError, "Payment received, fulfillment pending manual review"
	case errors.Is(err, domain.ErrDomainWriteFailed):
		return http.StatusInternalServerError, "Benefit could not be granted, tokens refunded"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Temporarily unavailable, retry later"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
	}
	h.respondError(w, code, msg, method, endpoint)
}

// respondSettlement writes 201 for a fresh settlement and 200 for a
// correlation-id replay, mirroring created-vs-replayed on raw transfers.
func (h *Handler) respondSettlement(w http.ResponseWriter, s *domain.Settlement, method, endpoint string) {
	code := http.StatusCreated
	if s.Replayed {
		code = http.StatusOK
	}
	h.respondJSON(w, code, s, method, endpoint)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
