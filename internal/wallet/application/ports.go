package application

import (
	"context"

	"github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

type Ledger interface {
	GetWallet(ctx context.Context, userID string) (domain.User, error)
	CreditWallet(ctx context.Context, userID string, amountCents int64) error
	AppendTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, bool, error)
	TransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error)
}

type Notifier interface {
	Emit(ctx context.Context, eventType, key string, payload []byte) error
}
