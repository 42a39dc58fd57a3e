package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

type Service struct {
	log    *slog.Logger
	ledger Ledger
	notif  Notifier
	tracer trace.Tracer
}

func NewService(log *slog.Logger, ledger Ledger, notif Notifier) *Service {
	return &Service{
		log:    log,
		ledger: ledger,
		notif:  notif,
		tracer: otel.Tracer("wallet-service"),
	}
}

// TopUp credits a wallet exactly once per top-up id. The ledger's
// (ref, credit) idempotency key is the gate: only the call that actually
// appends the credit entry moves money, every replay gets the existing
// entry back and moves nothing.
func (s *Service) TopUp(ctx context.Context, topupID, userID string, amountCents int64) (domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "TopUp")
	defer span.End()

	if topupID == "" || userID == "" {
		return domain.Transaction{}, fmt.Errorf("%w: topup id and user id required", domain.ErrValidation)
	}
	if amountCents <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if _, err := s.ledger.GetWallet(ctx, userID); err != nil {
		return domain.Transaction{}, fmt.Errorf("wallet %s: %w", userID, err)
	}

	tx := domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Direction:   domain.DirectionCredit,
		AmountCents: amountCents,
		Status:      domain.TxSuccess,
		Ref:         topupID,
		CreatedAt:   time.Now().UTC(),
	}
	created, isNew, err := s.ledger.AppendTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("append credit: %w", err)
	}
	if !isNew {
		s.log.Info("top-up replayed, no credit applied", "topup_id", topupID, "transaction_id", created.ID)
		return created, nil
	}

	if err := s.ledger.CreditWallet(ctx, userID, amountCents); err != nil {
		s.log.Error("top-up credit failed after ledger append",
			"topup_id", topupID, "user_id", userID, "amount_cents", amountCents, "err", err)
		return domain.Transaction{}, err
	}

	s.emit(ctx, domain.EventTopUpReceived, topupID, domain.TopUpReceived{
		TopUpID:       topupID,
		UserID:        userID,
		AmountCents:   amountCents,
		TransactionID: created.ID,
	})
	return created, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (domain.User, error) {
	return s.ledger.GetWallet(ctx, userID)
}

func (s *Service) Statement(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if _, err := s.ledger.GetWallet(ctx, userID); err != nil {
		return nil, err
	}
	return s.ledger.TransactionsByUser(ctx, userID)
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
