package types

import "time"

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether s is a verdict.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// UnknownDevice is used when an inbound message carries no device_id.
const UnknownDevice = "unknown_device"

type Transaction struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Location  *string   `json:"location"`
}
