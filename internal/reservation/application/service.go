package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

// LineRequest is a client-submitted line. Name and price are never taken
// from the client; they are snapshotted from the catalog.
type LineRequest struct {
	ItemID   string
	Quantity int
}

// Service is the reservation state machine. It owns the
// Pending->Approved->Preparing->Ready->Claimed happy path and the
// compensating Rejected path, and orchestrates the stock and wallet
// counters and the ledger through the injected store.
type Service struct {
	log    *slog.Logger
	store  Store
	notif  Notifier
	tracer trace.Tracer
}

func NewService(log *slog.Logger, store Store, notif Notifier) *Service {
	return &Service{
		log:    log,
		store:  store,
		notif:  notif,
		tracer: otel.Tracer("reservation-service"),
	}
}

// Create charges the reservation immediately: the wallet is debited and
// stock decremented while the reservation is still Pending. Stocks are
// pre-checked for every line before the debit so a decrement failure is
// unreachable unless a concurrent drain lands in between; that residual
// window is closed by compensating.
func (s *Service) Create(ctx context.Context, userID string, lines []LineRequest) (domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "CreateReservation")
	defer span.End()

	if userID == "" {
		return domain.Reservation{}, fmt.Errorf("%w: user id required", domain.ErrValidation)
	}
	if len(lines) == 0 {
		return domain.Reservation{}, fmt.Errorf("%w: at least one line required", domain.ErrValidation)
	}

	seen := make(map[string]bool, len(lines))
	snapshot := make([]domain.Line, 0, len(lines))
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			return domain.Reservation{}, fmt.Errorf("%w: quantity must be positive for item %s", domain.ErrValidation, ln.ItemID)
		}
		if seen[ln.ItemID] {
			return domain.Reservation{}, fmt.Errorf("%w: duplicate item %s", domain.ErrValidation, ln.ItemID)
		}
		seen[ln.ItemID] = true

		item, err := s.store.GetItem(ctx, ln.ItemID)
		if err != nil {
			return domain.Reservation{}, fmt.Errorf("item %s: %w", ln.ItemID, err)
		}
		if !item.Orderable() {
			return domain.Reservation{}, fmt.Errorf("item %s: %w", ln.ItemID, storage.ErrNotFound)
		}
		if item.Stock < ln.Quantity {
			return domain.Reservation{}, fmt.Errorf("item %s: %w", ln.ItemID, storage.ErrInsufficientStock)
		}
		snapshot = append(snapshot, domain.Line{
			ItemID:     item.ID,
			Name:       item.Name,
			PriceCents: item.PriceCents,
			Quantity:   ln.Quantity,
		})
	}

	r := domain.NewReservation(uuid.NewString(), userID, snapshot)

	if err := s.store.DebitWallet(ctx, userID, r.TotalCents); err != nil {
		return domain.Reservation{}, fmt.Errorf("debit wallet: %w", err)
	}

	var deducted []domain.Line
	for _, ln := range r.Lines {
		if err := s.store.DecrementStock(ctx, ln.ItemID, ln.Quantity); err != nil {
			s.compensateCreate(ctx, r, deducted)
			return domain.Reservation{}, fmt.Errorf("decrement item %s: %w", ln.ItemID, err)
		}
		deducted = append(deducted, ln)
	}

	now := time.Now().UTC()
	tx := wallet.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Direction:   wallet.DirectionDebit,
		AmountCents: r.TotalCents,
		Status:      wallet.TxPending,
		Ref:         r.ID,
		CreatedAt:   now,
	}
	if _, _, err := s.store.AppendTransaction(ctx, tx); err != nil {
		s.compensateCreate(ctx, r, deducted)
		return domain.Reservation{}, fmt.Errorf("append debit transaction: %w", err)
	}

	r.TransactionID = tx.ID
	r.Charged = true
	r.ChargedAt = now
	r.StockDeducted = true
	r.UpdatedAt = now
	if err := s.store.SaveReservation(ctx, r); err != nil {
		s.compensateCreate(ctx, r, deducted)
		return domain.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}

	s.emit(ctx, domain.EventReservationCreated, r.ID, domain.ReservationCreated{
		ReservationID: r.ID,
		UserID:        r.UserID,
		TotalCents:    r.TotalCents,
		Lines:         r.Lines,
	})
	return r, nil
}

// compensateCreate reverses a partially applied charge: credit the wallet
// back and restore every line already decremented. Failures here are logged
// and surfaced to operators; there is nothing further to roll back to.
func (s *Service) compensateCreate(ctx context.Context, r domain.Reservation, deducted []domain.Line) {
	if err := s.store.CreditWallet(ctx, r.UserID, r.TotalCents); err != nil {
		s.log.Error("create compensation: credit back failed",
			"reservation_id", r.ID, "user_id", r.UserID, "amount_cents", r.TotalCents, "err", err)
	}
	for _, ln := range deducted {
		if err := s.store.IncrementStock(ctx, ln.ItemID, ln.Quantity); err != nil {
			s.log.Error("create compensation: restock failed",
				"reservation_id", r.ID, "item_id", ln.ItemID, "qty", ln.Quantity, "err", err)
		}
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// SetStatus applies one admin transition. Edges outside the transition
// table fail without touching anything; Rejected triggers the guarded
// refund path.
func (s *Service) SetStatus(ctx context.Context, id string, target domain.Status) (domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "SetReservationStatus")
	defer span.End()

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if r.Status == target {
		return domain.Reservation{}, &domain.ConflictError{Status: r.Status}
	}
	if !domain.CanTransition(r.Status, target) {
		return domain.Reservation{}, &domain.InvalidTransitionError{From: r.Status, To: target}
	}

	switch target {
	case domain.StatusApproved:
		if err := s.casStatus(ctx, id, r.Status, target); err != nil {
			return domain.Reservation{}, err
		}
		// The debit that funded the reservation is captured on approval.
		if r.TransactionID != "" {
			if err := s.store.UpdateTransactionStatus(ctx, r.TransactionID, wallet.TxSuccess); err != nil {
				s.log.Error("approve: flipping debit transaction failed",
					"reservation_id", id, "transaction_id", r.TransactionID, "err", err)
				return domain.Reservation{}, err
			}
		}
	case domain.StatusRejected:
		if err := s.reject(ctx, r); err != nil {
			return domain.Reservation{}, err
		}
	default:
		if err := s.casStatus(ctx, id, r.Status, target); err != nil {
			return domain.Reservation{}, err
		}
	}

	updated, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.emit(ctx, domain.EventReservationStatusChanged, id, domain.ReservationStatusChanged{
		ReservationID: id,
		UserID:        r.UserID,
		From:          r.Status,
		To:            target,
		Refunded:      updated.Refunded,
	})
	return updated, nil
}

// reject refunds at most once. The claim is a compare-and-swap on the
// refunded flag, so of two concurrent rejects only one moves money; the
// other (and any later retry) just flips the status.
func (s *Service) reject(ctx context.Context, r domain.Reservation) error {
	if r.Charged && r.TotalCents > 0 {
		refundTxID := uuid.NewString()
		claimed, err := s.store.ClaimRefund(ctx, r.ID, refundTxID)
		if err != nil {
			if errors.Is(err, storage.ErrStale) {
				return s.conflict(ctx, r.ID)
			}
			return err
		}
		if claimed {
			if err := s.store.CreditWallet(ctx, r.UserID, r.TotalCents); err != nil {
				s.log.Error("reject: refund credit failed",
					"reservation_id", r.ID, "user_id", r.UserID, "amount_cents", r.TotalCents, "err", err)
				return err
			}
			if r.StockDeducted {
				for _, ln := range r.Lines {
					if err := s.store.IncrementStock(ctx, ln.ItemID, ln.Quantity); err != nil {
						s.log.Error("reject: restock failed",
							"reservation_id", r.ID, "item_id", ln.ItemID, "qty", ln.Quantity, "err", err)
						return err
					}
				}
			}
			tx := wallet.Transaction{
				ID:          refundTxID,
				UserID:      r.UserID,
				Direction:   wallet.DirectionCredit,
				AmountCents: r.TotalCents,
				Status:      wallet.TxSuccess,
				Ref:         r.ID,
				CreatedAt:   time.Now().UTC(),
			}
			if _, _, err := s.store.AppendTransaction(ctx, tx); err != nil {
				return fmt.Errorf("append refund transaction: %w", err)
			}
		}
	}
	return s.casStatus(ctx, r.ID, r.Status, domain.StatusRejected)
}

func (s *Service) casStatus(ctx context.Context, id string, from, to domain.Status) error {
	err := s.store.UpdateReservationStatus(ctx, id, from, to)
	if errors.Is(err, storage.ErrStale) {
		return s.conflict(ctx, id)
	}
	return err
}

// conflict reloads the current status so the caller learns what beat them.
func (s *Service) conflict(ctx context.Context, id string) error {
	current, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	return &domain.ConflictError{Status: current.Status}
}

func (s *Service) emit(ctx context.Context, eventType, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("event marshal failed", "type", eventType, "err", err)
		return
	}
	if err := s.notif.Emit(ctx, eventType, key, data); err != nil {
		s.log.Error("event emit failed", "type", eventType, "key", key, "err", err)
	}
}
