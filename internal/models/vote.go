package models

import "time"

// Vote is one member's decision on a pending withdrawal. There is at most
// one vote per (transaction, user).
type Vote struct {
	ID            int64     `json:"id" db:"id"`
	TransactionID int64     `json:"transaction_id" db:"transaction_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Approve       bool      `json:"approve" db:"approve"`
	Note          string    `json:"note" db:"note"`
	VotedAt       time.Time `json:"voted_at" db:"voted_at"`
}
