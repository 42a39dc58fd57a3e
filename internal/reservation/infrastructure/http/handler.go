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

	"github.com/sseMG/Food-Reservation-sub000/internal/reservation/application"
	"github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("reservation-http"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/reservations", h.create)
	r.Get("/reservations/{id}", h.get)
	r.Post("/reservations/{id}/status", h.setStatus)
}

type lineReq struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type createReq struct {
	UserID string    `json:"user_id"`
	Lines  []lineReq `json:"lines"`
}

type lineResp struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type reservationResp struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Lines               []lineResp `json:"lines"`
	TotalCents          int64      `json:"total_cents"`
	Status              string     `json:"status"`
	TransactionID       string     `json:"transaction_id,omitempty"`
	Charged             bool       `json:"charged"`
	ChargedAt           *time.Time `json:"charged_at,omitempty"`
	Refunded            bool       `json:"refunded"`
	RefundTransactionID string     `json:"refund_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toResp(r domain.Reservation) reservationResp {
	resp := reservationResp{
		ID:                  r.ID,
		UserID:              r.UserID,
		TotalCents:          r.TotalCents,
		Status:              string(r.Status),
		TransactionID:       r.TransactionID,
		Charged:             r.Charged,
		Refunded:            r.Refunded,
		RefundTransactionID: r.RefundTransactionID,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if !r.ChargedAt.IsZero() {
		t := r.ChargedAt
		resp.ChargedAt = &t
	}
	for _, ln := range r.Lines {
		resp.Lines = append(resp.Lines, lineResp{
			ItemID:     ln.ItemID,
			Name:       ln.Name,
			PriceCents: ln.PriceCents,
			Quantity:   ln.Quantity,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateReservation")
	defer span.End()

	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, errInvalidBody)
		return
	}
	lines := make([]application.LineRequest, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, application.LineRequest{ItemID: ln.ItemID, Quantity: ln.Quantity})
	}

	res, err := h.service.Create(ctx, req.UserID, lines)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResp(res))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

type setStatusReq struct {
	Status string `json:"status"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetReservationStatus")
	defer span.End()

	var req setStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, errInvalidBody)
		return
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.service.SetStatus(ctx, chi.URLParam(r, "id"), target)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

var errInvalidBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var transition *domain.InvalidTransitionError
	var conflict *domain.ConflictError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownStatus):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &transition), errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrInsufficientStock),
		errors.Is(err, storage.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
