package domain

const (
	EventReservationCreated       = "ReservationCreated"
	EventReservationStatusChanged = "ReservationStatusChanged"
)

type ReservationCreated struct {
	ReservationID string
	UserID        string
	TotalCents    int64
	Lines         []Line
}

type ReservationStatusChanged struct {
	ReservationID string
	UserID        string
	From          Status
	To            Status
	Refunded      bool
}
