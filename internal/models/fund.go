package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// GroupFund is the shared monetary pool of one group.
//
// CurrentBalance never drops below zero and never exceeds TotalContributed.
type GroupFund struct {
	ID               int64           `json:"id" db:"id"`
	GroupID          int64           `json:"group_id" db:"group_id"`
	TotalContributed decimal.Decimal `json:"total_contributed" db:"total_contributed"`
	CurrentBalance   decimal.Decimal `json:"current_balance" db:"current_balance"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// CanCover reports whether the current balance is enough for amount
func (f *GroupFund) CanCover(amount decimal.Decimal) bool {
	return f.CurrentBalance.GreaterThanOrEqual(amount)
}

// FundSummary aggregates a fund's ledger state and its transaction history
type FundSummary struct {
	FundID           int64           `json:"fund_id"`
	GroupID          int64           `json:"group_id"`
	TotalContributed decimal.Decimal `json:"total_contributed"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	TotalDeposit     decimal.Decimal `json:"total_deposit"`
	TotalWithdraw    decimal.Decimal `json:"total_withdraw"`
	PendingCount     int             `json:"pending_count"`
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
