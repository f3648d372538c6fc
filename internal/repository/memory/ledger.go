package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

type fundRepository struct {
	run runner
}

func (r *fundRepository) GetOrCreate(_ context.Context, groupID int64) (*models.GroupFund, error) {
	var fund models.GroupFund
	err := r.run(func(s *state) error {
		for _, f := range s.funds {
			if f.GroupID == groupID {
				fund = f
				return nil
			}
		}
		if _, ok := s.groups[groupID]; !ok {
			return fmt.Errorf("group %d: %w", groupID, repository.ErrNotFound)
		}
		s.nextFundID++
		now := time.Now()
		fund = models.GroupFund{
			ID:               s.nextFundID,
			GroupID:          groupID,
			TotalContributed: decimal.Zero,
			CurrentBalance:   decimal.Zero,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		s.funds[fund.ID] = fund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

func (r *fundRepository) GetByID(_ context.Context, id int64) (*models.GroupFund, error) {
	var found *models.GroupFund
	err := r.run(func(s *state) error {
		if f, ok := s.funds[id]; ok {
			found = &f
		}
		return nil
	})
	return found, err
}

func (r *fundRepository) GetByGroupID(_ context.Context, groupID int64) (*models.GroupFund, error) {
	var found *models.GroupFund
	err := r.run(func(s *state) error {
		for _, f := range s.funds {
			if f.GroupID == groupID {
				f := f
				found = &f
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *fundRepository) Credit(_ context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	var fund models.GroupFund
	err := r.run(func(s *state) error {
		f, ok := s.funds[fundID]
		if !ok {
			return fmt.Errorf("fund %d: %w", fundID, repository.ErrNotFound)
		}
		f.TotalContributed = f.TotalContributed.Add(amount)
		f.CurrentBalance = f.CurrentBalance.Add(amount)
		f.UpdatedAt = time.Now()
		s.funds[fundID] = f
		fund = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

func (r *fundRepository) Debit(_ context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	var fund models.GroupFund
	err := r.run(func(s *state) error {
		f, ok := s.funds[fundID]
		if !ok {
			return fmt.Errorf("fund %d: %w", fundID, repository.ErrNotFound)
		}
		if !f.CanCover(amount) {
			return repository.ErrInsufficientBalance
		}
		f.CurrentBalance = f.CurrentBalance.Sub(amount)
		f.UpdatedAt = time.Now()
		s.funds[fundID] = f
		fund = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

type transactionRepository struct {
	run runner
}

func (r *transactionRepository) Create(_ context.Context, txn *models.FundTransaction) (*models.FundTransaction, error) {
	err := r.run(func(s *state) error {
		if _, ok := s.funds[txn.FundID]; !ok {
			return fmt.Errorf("fund %d: %w", txn.FundID, repository.ErrNotFound)
		}
		s.nextTxnID++
		txn.ID = s.nextTxnID
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = time.Now()
		}
		stored := *txn
		stored.Votes = nil
		s.txns[txn.ID] = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *transactionRepository) GetByID(_ context.Context, id int64) (*models.FundTransaction, error) {
	var found *models.FundTransaction
	err := r.run(func(s *state) error {
		if t, ok := s.txns[id]; ok {
			found = &t
		}
		return nil
	})
	return found, err
}

// GetForUpdate needs no explicit lock: units of work are already serialized.
func (r *transactionRepository) GetForUpdate(ctx context.Context, id int64) (*models.FundTransaction, error) {
	return r.GetByID(ctx, id)
}

func (r *transactionRepository) ListByFund(_ context.Context, fundID int64, filters repository.TransactionFilters) ([]*models.FundTransaction, error) {
	var txns []*models.FundTransaction
	err := r.run(func(s *state) error {
		for _, t := range s.txns {
			if t.FundID != fundID {
				continue
			}
			if filters.Status != nil && t.Status != *filters.Status {
				continue
			}
			if filters.Type != nil && t.Type != *filters.Type {
				continue
			}
			t := t
			txns = append(txns, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(txns, func(i, j int) bool {
		if txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})

	return paginate(txns, filters.Limit, filters.Offset), nil
}

func (r *transactionRepository) ListPending(_ context.Context, afterID int64, limit int) ([]*models.FundTransaction, error) {
	var txns []*models.FundTransaction
	err := r.run(func(s *state) error {
		for _, t := range s.txns {
			if t.ID > afterID && t.IsPendingWithdrawal() {
				t := t
				txns = append(txns, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })

	return paginate(txns, limit, 0), nil
}

func (r *transactionRepository) Resolve(_ context.Context, id int64, res repository.Resolution) (*models.FundTransaction, error) {
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now()
	}

	var txn models.FundTransaction
	err := r.run(func(s *state) error {
		t, ok := s.txns[id]
		if !ok {
			return fmt.Errorf("fund transaction %d: %w", id, repository.ErrNotFound)
		}
		if t.Status != models.TransactionStatusPending {
			return repository.ErrNotPending
		}
		resolvedAt := res.ResolvedAt
		t.Status = res.Status
		t.ResolvedAt = &resolvedAt
		t.ResolvedBy = res.ResolvedBy
		t.Note = res.Note
		s.txns[id] = t
		txn = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) Totals(_ context.Context, fundID int64) (*repository.TransactionTotals, error) {
	totals := &repository.TransactionTotals{Deposits: decimal.Zero, Withdrawals: decimal.Zero}
	err := r.run(func(s *state) error {
		for _, t := range s.txns {
			if t.FundID != fundID {
				continue
			}
			switch {
			case t.Status == models.TransactionStatusCompleted && t.Type == models.TransactionTypeDeposit:
				totals.Deposits = totals.Deposits.Add(t.Amount)
			case t.Status == models.TransactionStatusCompleted && t.Type == models.TransactionTypeWithdraw:
				totals.Withdrawals = totals.Withdrawals.Add(t.Amount)
			case t.IsPendingWithdrawal():
				totals.PendingCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

type voteRepository struct {
	run runner
}

func (r *voteRepository) Create(_ context.Context, vote *models.Vote) (*models.Vote, error) {
	err := r.run(func(s *state) error {
		if _, ok := s.txns[vote.TransactionID]; !ok {
			return fmt.Errorf("fund transaction %d: %w", vote.TransactionID, repository.ErrNotFound)
		}
		for _, v := range s.votes[vote.TransactionID] {
			if v.UserID == vote.UserID {
				return repository.ErrDuplicate
			}
		}
		s.nextVoteID++
		vote.ID = s.nextVoteID
		if vote.VotedAt.IsZero() {
			vote.VotedAt = time.Now()
		}
		s.votes[vote.TransactionID] = append(s.votes[vote.TransactionID], *vote)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

func (r *voteRepository) GetByTransactionID(_ context.Context, transactionID int64) ([]*models.Vote, error) {
	var votes []*models.Vote
	err := r.run(func(s *state) error {
		for _, v := range s.votes[transactionID] {
			v := v
			votes = append(votes, &v)
		}
		return nil
	})
	return votes, err
}

func paginate(txns []*models.FundTransaction, limit, offset int) []*models.FundTransaction {
	if offset > 0 {
		if offset >= len(txns) {
			return nil
		}
		txns = txns[offset:]
	}
	if limit > 0 && limit < len(txns) {
		txns = txns[:limit]
	}
	return txns
}
