package domain

import (
	"errors"
	"time"
)

var ErrValidation = errors.New("validation")

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type TxStatus string

const (
	TxPending TxStatus = "Pending"
	TxSuccess TxStatus = "Success"
)

// Transaction is an append-only ledger entry. A credit keyed by the same
// (Ref, credit) pair is never created twice; that is what makes refund and
// top-up retries safe.
type Transaction struct {
	ID          string
	UserID      string
	Direction   Direction
	AmountCents int64
	Status      TxStatus
	Ref         string
	CreatedAt   time.Time
}

// User carries the prepaid wallet. Balance is mutated only through the
// storage backend's counter operations and never goes below zero.
type User struct {
	ID           string
	Name         string
	BalanceCents int64
}
