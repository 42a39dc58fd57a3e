package application

import (
	"context"

	catalog "github.com/sseMG/Food-Reservation-sub000/internal/catalog/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

// Store is the slice of the storage backend contract the state machine
// needs. Both backends satisfy it; tests substitute a fake.
type Store interface {
	GetItem(ctx context.Context, id string) (catalog.MenuItem, error)
	DecrementStock(ctx context.Context, itemID string, qty int) error
	IncrementStock(ctx context.Context, itemID string, qty int) error
	DebitWallet(ctx context.Context, userID string, amountCents int64) error
	CreditWallet(ctx context.Context, userID string, amountCents int64) error
	AppendTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, bool, error)
	UpdateTransactionStatus(ctx context.Context, id string, st wallet.TxStatus) error
	SaveReservation(ctx context.Context, r domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, from, to domain.Status) error
	ClaimRefund(ctx context.Context, id, refundTxID string) (bool, error)
}

// Notifier delivers events to whoever listens. Fire-and-forget: the state
// machine logs failures and never rolls back on them.
type Notifier interface {
	Emit(ctx context.Context, eventType, key string, payload []byte) error
}
