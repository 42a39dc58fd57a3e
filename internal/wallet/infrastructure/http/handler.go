package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
	"github.com/sseMG/Food-Reservation-sub000/internal/wallet/application"
	"github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
	"github.com/sseMG/Food-Reservation-sub000/pkg/idempotency"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	idem    *idempotency.Store
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, idem *idempotency.Store) *Handler {
	return &Handler{
		log:     log,
		service: service,
		idem:    idem,
		tracer:  otel.Tracer("wallet-http"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/topups", h.topUp)
	r.Get("/wallets/{userID}", h.balance)
	r.Get("/wallets/{userID}/transactions", h.statement)
}

type topUpReq struct {
	TopUpID     string `json:"topup_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}

type transactionResp struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Direction   string    `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	Ref         string    `json:"ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResp(tx domain.Transaction) transactionResp {
	return transactionResp{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Direction:   string(tx.Direction),
		AmountCents: tx.AmountCents,
		Status:      string(tx.Status),
		Ref:         tx.Ref,
		CreatedAt:   tx.CreatedAt,
	}
}

func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TopUp")
	defer span.End()

	var req topUpReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, errInvalidBody)
		return
	}

	// Fast-path replay detection. Advisory only: the ledger's unique
	// (ref, credit) key is what actually prevents a double credit.
	if h.idem != nil && req.TopUpID != "" {
		seen, err := h.idem.Seen(ctx, h.idem.Key("topup", req.TopUpID))
		if err != nil {
			h.log.Warn("idempotency check unavailable", "topup_id", req.TopUpID, "err", err)
		} else if seen {
			w.Header().Set("Idempotent-Replay", "true")
		}
	}

	tx, err := h.service.TopUp(ctx, req.TopUpID, req.UserID, req.AmountCents)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(tx))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Balance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       u.ID,
		"name":          u.Name,
		"balance_cents": u.BalanceCents,
	})
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.Statement(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]transactionResp, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toResp(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

var errInvalidBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidBody), errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
