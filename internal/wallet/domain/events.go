package domain

const EventTopUpReceived = "TopUpReceived"

type TopUpReceived struct {
	TopUpID       string
	UserID        string
	AmountCents   int64
	TransactionID string
}
