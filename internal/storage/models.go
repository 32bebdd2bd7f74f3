package storage

import "time"

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Delivery is one journaled send attempt.
// Recipient is hashed before it is written; rows read back carry the hash.
type Delivery struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"request_id,omitempty"`
	Channel    string        `json:"channel"`
	Recipient  string        `json:"recipient"`
	Trigger    string        `json:"trigger"`
	ResponseID string        `json:"response_id"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}
