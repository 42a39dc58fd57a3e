package domain

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusClaimed   Status = "Claimed"
	StatusRejected  Status = "Rejected"
)

// transitions is the only source of truth for legal status edges.
// Claimed and Rejected are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPreparing, StatusRejected},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusClaimed},
	StatusClaimed:   {},
	StatusRejected:  {},
}

var ErrUnknownStatus = errors.New("unknown reservation status")

// ParseStatus accepts exactly the six canonical status names. There is no
// alias normalization: "Cancelled" is not "Rejected".
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Line is a reservation line item with name and price snapshotted from the
// catalog at creation time.
type Line struct {
	ItemID     string
	Name       string
	PriceCents int64
	Quantity   int
}

type Reservation struct {
	ID                  string
	UserID              string
	Lines               []Line
	TotalCents          int64
	Status              Status
	TransactionID       string
	Charged             bool
	ChargedAt           time.Time
	StockDeducted       bool
	Refunded            bool
	RefundTransactionID string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewReservation computes the total from the snapshotted lines. The total is
// never recomputed afterwards.
func NewReservation(id, userID string, lines []Line) Reservation {
	var total int64
	for _, ln := range lines {
		total += int64(ln.Quantity) * ln.PriceCents
	}
	now := time.Now().UTC()
	return Reservation{
		ID:         id,
		UserID:     userID,
		Lines:      lines,
		TotalCents: total,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

var ErrValidation = errors.New("validation")

// InvalidTransitionError reports an attempted status edge that is not in the
// transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// ConflictError reports an idempotent replay: the reservation is already in
// the requested state, or was concurrently moved out of the expected one.
type ConflictError struct {
	Status Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation already %s", e.Status)
}
