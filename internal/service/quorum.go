package service

import (
	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
)

// Outcome is the decision a tally leads to
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeApproved
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Tally counts the votes that matter for one withdrawal. Eligible is the
// size of the active membership, which is the denominator of both ratios.
type Tally struct {
	Approve  int
	Reject   int
	Eligible int
}

// CountVotes keeps only votes of current active members other than the
// initiator. Votes of members who left since voting are ignored.
func CountVotes(votes []*models.Vote, activeMembers []int64, initiatorID int64) Tally {
	active := make(map[int64]struct{}, len(activeMembers))
	for _, id := range activeMembers {
		active[id] = struct{}{}
	}

	t := Tally{Eligible: len(active)}
	seen := make(map[int64]struct{}, len(votes))
	for _, v := range votes {
		if v.UserID == initiatorID {
			continue
		}
		if _, ok := active[v.UserID]; !ok {
			continue
		}
		if _, dup := seen[v.UserID]; dup {
			continue
		}
		seen[v.UserID] = struct{}{}

		if v.Approve {
			t.Approve++
		} else {
			t.Reject++
		}
	}
	return t
}

// Decide applies the threshold with exact decimal arithmetic: approved once
// approvals reach threshold*eligible, rejected once rejections exceed
// (1-threshold)*eligible. An empty membership never decides.
func Decide(t Tally, threshold decimal.Decimal) Outcome {
	if t.Eligible <= 0 {
		return OutcomePending
	}

	eligible := decimal.NewFromInt(int64(t.Eligible))

	if decimal.NewFromInt(int64(t.Approve)).GreaterThanOrEqual(threshold.Mul(eligible)) {
		return OutcomeApproved
	}

	rejectLimit := decimal.NewFromInt(1).Sub(threshold).Mul(eligible)
	if decimal.NewFromInt(int64(t.Reject)).GreaterThan(rejectLimit) {
		return OutcomeRejected
	}

	return OutcomePending
}
