package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money flowing into and out of a fund
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
)

// TransactionStatus is the lifecycle state of a fund transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusRejected || s == TransactionStatusCancelled
}

// Settlement notes written by the engine itself.
const (
	NoteInsufficientFundsAtSettlement = "insufficient-funds-at-settlement"
	NoteRejectedByVote                = "rejected-by-vote"
	NoteApprovedByVote                = "approved-by-vote"
)

// FundTransaction is one deposit or withdrawal attempt. Records are never
// deleted and become immutable once they leave the pending state.
type FundTransaction struct {
	ID         int64             `json:"id" db:"id"`
	FundID     int64             `json:"fund_id" db:"fund_id"`
	UserID     int64             `json:"user_id" db:"user_id"`
	Type       TransactionType   `json:"type" db:"type"`
	Amount     decimal.Decimal   `json:"amount" db:"amount"`
	Purpose    string            `json:"purpose" db:"purpose"`
	Status     TransactionStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at" db:"resolved_at"`
	ResolvedBy *int64            `json:"resolved_by" db:"resolved_by"`
	Note       string            `json:"note" db:"note"`
	Votes      []Vote            `json:"votes,omitempty"`
}

// IsPendingWithdrawal reports whether the transaction is still open for voting
func (t *FundTransaction) IsPendingWithdrawal() bool {
	return t.Type == TransactionTypeWithdraw && t.Status == TransactionStatusPending
}
