// Package storage defines the backend adapter contract shared by the
// embedded-file and postgres implementations. Every operation is a
// read-modify-write that the backend guarantees atomic per target entity:
// the file backend serializes each collection behind a mutex, the postgres
// backend relies on conditional single-statement updates.
package storage

import (
	"context"
	"errors"

	catalog "github.com/sseMG/Food-Reservation-sub000/internal/catalog/domain"
	reservation "github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrStale means a compare-and-swap found the entity in a different
	// state than expected: someone else got there first.
	ErrStale = errors.New("stale update")
)

type Store interface {
	// Catalog. PutItem upserts metadata but never writes the stock counter
	// of an existing item, so catalog edits cannot race counter updates.
	GetItem(ctx context.Context, id string) (catalog.MenuItem, error)
	PutItem(ctx context.Context, item catalog.MenuItem) error

	// Stock counter. Decrement fails with ErrInsufficientStock rather than
	// ever exposing a negative value.
	DecrementStock(ctx context.Context, itemID string, qty int) error
	IncrementStock(ctx context.Context, itemID string, qty int) error

	// Wallet counter. Debit fails with ErrInsufficientBalance at the floor.
	GetWallet(ctx context.Context, userID string) (wallet.User, error)
	PutUser(ctx context.Context, u wallet.User) error
	DebitWallet(ctx context.Context, userID string, amountCents int64) error
	CreditWallet(ctx context.Context, userID string, amountCents int64) error

	// Ledger. AppendTransaction is idempotent for credits carrying a ref:
	// a second append with the same (ref, credit) key returns the existing
	// entry and created=false.
	AppendTransaction(ctx context.Context, tx wallet.Transaction) (created wallet.Transaction, isNew bool, err error)
	GetTransaction(ctx context.Context, id string) (wallet.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, st wallet.TxStatus) error
	TransactionsByUser(ctx context.Context, userID string) ([]wallet.Transaction, error)

	// Reservations. UpdateReservationStatus and ClaimRefund are the two
	// compare-and-swap primitives the state machine serializes on.
	SaveReservation(ctx context.Context, r reservation.Reservation) error
	GetReservation(ctx context.Context, id string) (reservation.Reservation, error)
	// UpdateReservationStatus sets status from->to, failing with ErrStale
	// if the current status is not the expected one.
	UpdateReservationStatus(ctx context.Context, id string, from, to reservation.Status) error
	// ClaimRefund atomically flips refunded false->true and records the
	// refund transaction id, provided the reservation can still be
	// rejected. Returns false when the refund was already claimed.
	ClaimRefund(ctx context.Context, id, refundTxID string) (bool, error)
}
