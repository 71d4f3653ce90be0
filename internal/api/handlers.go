// Package api exposes the CRUD-driven operations of the lifecycle engine and
// the portfolio ledger over HTTP. Authentication lives upstream; handlers
// receive an already-authorized actor id.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/database"
	"github.com/marketcalls/research-call-engine/internal/lifecycle"
	"github.com/marketcalls/research-call-engine/internal/models"
	"github.com/marketcalls/research-call-engine/internal/portfolio"
	"github.com/marketcalls/research-call-engine/internal/redis"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db     *database.DB
	engine *lifecycle.Engine
	ledger *portfolio.Ledger
	redis  *redis.Client
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, engine *lifecycle.Engine, ledger *portfolio.Ledger, redisClient *redis.Client) *Handler {
	return &Handler{
		db:     db,
		engine: engine,
		ledger: ledger,
		redis:  redisClient,
	}
}

type createCallRequest struct {
	BrokerID       int64               `json:"broker_id"`
	CreatedBy      int64               `json:"created_by"`
	Symbol         string              `json:"symbol"`
	Exchange       string              `json:"exchange"`
	InstrumentType string              `json:"instrument_type"`
	CallType       models.CallType     `json:"call_type"`
	Direction      models.Direction    `json:"direction"`
	Rationale      string              `json:"rationale"`
	TimeframeDays  int                 `json:"timeframe_days"`
	EntryPrice     decimal.Decimal     `json:"entry_price"`
	Target1        decimal.Decimal     `json:"target_1"`
	Target2        decimal.NullDecimal `json:"target_2"`
	Target3        decimal.NullDecimal `json:"target_3"`
	StopLoss       decimal.Decimal     `json:"stop_loss"`
	ExpiresAt      *time.Time          `json:"expires_at"`
}

// CreateCall handles POST /calls
func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}

	call := &models.ResearchCall{
		BrokerID:       req.BrokerID,
		CreatedBy:      req.CreatedBy,
		Symbol:         req.Symbol,
		Exchange:       req.Exchange,
		InstrumentType: req.InstrumentType,
		CallType:       req.CallType,
		Direction:      req.Direction,
		Rationale:      req.Rationale,
		TimeframeDays:  req.TimeframeDays,
		EntryPrice:     req.EntryPrice,
		Target1:        req.Target1,
		Target2:        req.Target2,
		Target3:        req.Target3,
		StopLoss:       req.StopLoss,
		ExpiresAt:      req.ExpiresAt,
	}

	created, err := h.engine.Create(r.Context(), call)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetCalls handles GET /calls with an optional ?status= filter
func (h *Handler) GetCalls(w http.ResponseWriter, r *http.Request) {
	var (
		calls []*models.ResearchCall
		err   error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		calls, err = h.db.ListCallsByStatus(r.Context(), models.CallStatus(status))
	} else {
		calls, err = h.db.ListCalls(r.Context())
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, calls)
}

// GetCall handles GET /calls/{id}
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	call, err := h.db.GetCall(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, call)
}

// GetCallEvents handles GET /calls/{id}/events
func (h *Handler) GetCallEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.db.ListEventsForCall(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

type actorRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

// SubmitCall handles POST /calls/{id}/submit
func (h *Handler) SubmitCall(w http.ResponseWriter, r *http.Request) {
	h.callTransition(w, r, func(ctx context.Context, id int64, req actorRequest) (*models.ResearchCall, error) {
		return h.engine.SubmitForApproval(ctx, id, req.ActorID)
	})
}

// ApproveCall handles POST /calls/{id}/approve
func (h *Handler) ApproveCall(w http.ResponseWriter, r *http.Request) {
	h.callTransition(w, r, func(ctx context.Context, id int64, req actorRequest) (*models.ResearchCall, error) {
		return h.engine.Approve(ctx, id, req.ActorID)
	})
}

// RejectCall handles POST /calls/{id}/reject
func (h *Handler) RejectCall(w http.ResponseWriter, r *http.Request) {
	h.callTransition(w, r, func(ctx context.Context, id int64, req actorRequest) (*models.ResearchCall, error) {
		return h.engine.Reject(ctx, id, req.ActorID, req.Reason)
	})
}

// PublishCall handles POST /calls/{id}/publish
func (h *Handler) PublishCall(w http.ResponseWriter, r *http.Request) {
	h.callTransition(w, r, func(ctx context.Context, id int64, req actorRequest) (*models.ResearchCall, error) {
		return h.engine.Publish(ctx, id, req.ActorID)
	})
}

type exitCallRequest struct {
	ActorID   int64           `json:"actor_id"`
	ExitPrice decimal.Decimal `json:"exit_price"`
}

// ExitCall handles POST /calls/{id}/exit: manual exit of an active call.
// Closing the call cascades into exiting its open positions.
func (h *Handler) ExitCall(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req exitCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.ExitPrice.IsPositive() {
		http.Error(w, "exit_price must be positive", http.StatusBadRequest)
		return
	}

	call, err := h.engine.ExitManually(r.Context(), id, req.ExitPrice, req.ActorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if _, err := h.ledger.ExitAllForCall(r.Context(), call.ID, req.ExitPrice, time.Now().UTC(), string(models.CloseManuallyExited)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, call)
}

type openPositionRequest struct {
	UserID     int64           `json:"user_id"`
	CallID     int64           `json:"call_id"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryDate  *time.Time      `json:"entry_date"`
}

// OpenPosition handles POST /positions
func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entryDate := time.Now().UTC()
	if req.EntryDate != nil {
		entryDate = *req.EntryDate
	}

	position, err := h.ledger.Open(r.Context(), req.UserID, req.CallID, req.EntryPrice, req.Quantity, entryDate)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, position)
}

type exitPositionRequest struct {
	ExitPrice decimal.Decimal `json:"exit_price"`
	Reason    string          `json:"reason"`
}

// ExitPosition handles POST /positions/{id}/exit
func (h *Handler) ExitPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req exitPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "MANUAL"
	}

	position, err := h.ledger.ExitByID(r.Context(), id, req.ExitPrice, time.Now().UTC(), req.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, position)
}

// GetPortfolioSummary handles GET /portfolio/summary?user_id=
func (h *Handler) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	summary, err := h.ledger.Summarize(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func (h *Handler) callTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, actorRequest) (*models.ResearchCall, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	call, err := op(r.Context(), id, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, call)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeEngineError maps lifecycle errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrAlreadyClosed), lifecycle.IsIllegalTransition(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrMissingPriceLevels), errors.Is(err, models.ErrInvalidPriceLevels):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrDuplicatePosition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
