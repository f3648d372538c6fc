package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Deposit credits amount to the group's fund, creating the fund on first
// use. The completed deposit record and the credit commit together.
func (s *Service) Deposit(ctx context.Context, groupID, userID int64, amount decimal.Decimal, purpose string) (*models.FundTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireActiveMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	fund, err := s.Funds.GetOrCreate(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fund for group %d: %w", groupID, err)
	}

	return s.deposit(ctx, fund, userID, amount, purpose)
}

// DepositToFund is Deposit addressed by fund id
func (s *Service) DepositToFund(ctx context.Context, fundID, userID int64, amount decimal.Decimal, purpose string) (*models.FundTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	fund, err := s.loadFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActiveMember(ctx, fund.GroupID, userID); err != nil {
		return nil, err
	}

	return s.deposit(ctx, fund, userID, amount, purpose)
}

func (s *Service) deposit(ctx context.Context, fund *models.GroupFund, userID int64, amount decimal.Decimal, purpose string) (*models.FundTransaction, error) {
	now := time.Now()
	txn := &models.FundTransaction{
		FundID:     fund.ID,
		UserID:     userID,
		Type:       models.TransactionTypeDeposit,
		Amount:     amount,
		Purpose:    strings.TrimSpace(purpose),
		Status:     models.TransactionStatusCompleted,
		CreatedAt:  now,
		ResolvedAt: &now,
	}

	var balance decimal.Decimal
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		updated, err := tx.Funds().Credit(ctx, fund.ID, amount)
		if err != nil {
			return err
		}
		balance = updated.CurrentBalance
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deposit into fund %d: %w", fund.ID, err)
	}

	s.metrics.Settlements.WithLabelValues(string(models.TransactionStatusCompleted), "deposit").Inc()
	s.logger.WithFields(logrus.Fields{
		"fund_id":        fund.ID,
		"transaction_id": txn.ID,
		"user_id":        userID,
		"amount":         amount.StringFixed(2),
		"balance":        balance.StringFixed(2),
	}).Info("Deposit completed")

	return txn, nil
}

// RequestWithdrawal opens a pending withdrawal that members vote on. The
// balance check here is advisory; the binding one happens at settlement.
func (s *Service) RequestWithdrawal(ctx context.Context, fundID, userID int64, amount decimal.Decimal, purpose string) (*models.FundTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	fund, err := s.loadFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActiveMember(ctx, fund.GroupID, userID); err != nil {
		return nil, err
	}
	if !fund.CanCover(amount) {
		return nil, fmt.Errorf("fund %d holds %s, requested %s: %w",
			fund.ID, fund.CurrentBalance.StringFixed(2), amount.StringFixed(2), ErrInsufficientFunds)
	}

	txn, err := s.Transactions.Create(ctx, &models.FundTransaction{
		FundID:  fund.ID,
		UserID:  userID,
		Type:    models.TransactionTypeWithdraw,
		Amount:  amount,
		Purpose: strings.TrimSpace(purpose),
		Status:  models.TransactionStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"fund_id":        fund.ID,
		"transaction_id": txn.ID,
		"user_id":        userID,
		"amount":         amount.StringFixed(2),
	}).Info("Withdrawal requested")

	s.notifier.WithdrawalRequested(ctx, fund, txn)
	return txn, nil
}

// AdminWithdraw debits the fund immediately on an admin's authority. The
// completed record and the debit commit together or not at all.
func (s *Service) AdminWithdraw(ctx context.Context, fundID, adminID int64, amount decimal.Decimal, purpose string) (*models.FundTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	fund, err := s.loadFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, fund.GroupID, adminID); err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &models.FundTransaction{
		FundID:     fund.ID,
		UserID:     adminID,
		Type:       models.TransactionTypeWithdraw,
		Amount:     amount,
		Purpose:    strings.TrimSpace(purpose),
		Status:     models.TransactionStatusCompleted,
		CreatedAt:  now,
		ResolvedAt: &now,
		ResolvedBy: &adminID,
	}

	var updated *models.GroupFund
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		var err error
		updated, err = tx.Funds().Debit(ctx, fund.ID, amount)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, fmt.Errorf("fund %d cannot cover %s: %w", fund.ID, amount.StringFixed(2), ErrInsufficientFunds)
		}
		return nil, fmt.Errorf("failed to withdraw from fund %d: %w", fund.ID, err)
	}

	s.metrics.Settlements.WithLabelValues(string(models.TransactionStatusCompleted), "admin").Inc()
	s.logger.WithFields(logrus.Fields{
		"fund_id":        fund.ID,
		"transaction_id": txn.ID,
		"admin_id":       adminID,
		"amount":         amount.StringFixed(2),
		"balance":        updated.CurrentBalance.StringFixed(2),
	}).Info("Admin withdrawal completed")

	s.notifier.TransactionSettled(ctx, updated, txn)
	return txn, nil
}

// CreateFund returns the group's fund, creating an empty one if needed
func (s *Service) CreateFund(ctx context.Context, groupID int64) (*models.GroupFund, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	fund, err := s.Funds.GetOrCreate(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to create fund for group %d: %w", groupID, err)
	}
	return fund, nil
}

// GetFund returns a fund by id
func (s *Service) GetFund(ctx context.Context, fundID int64) (*models.GroupFund, error) {
	return s.loadFund(ctx, fundID)
}

// GetFundByGroup returns the fund of a group
func (s *Service) GetFundByGroup(ctx context.Context, groupID int64) (*models.GroupFund, error) {
	fund, err := s.Funds.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fund of group %d: %w", groupID, err)
	}
	if fund == nil {
		return nil, fmt.Errorf("fund of group %d: %w", groupID, ErrNotFound)
	}
	return fund, nil
}

// Summary reports the ledger state together with completed flows and the
// number of open requests.
func (s *Service) Summary(ctx context.Context, fundID int64) (*models.FundSummary, error) {
	fund, err := s.loadFund(ctx, fundID)
	if err != nil {
		return nil, err
	}

	totals, err := s.Transactions.Totals(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals of fund %d: %w", fundID, err)
	}

	return &models.FundSummary{
		FundID:           fund.ID,
		GroupID:          fund.GroupID,
		TotalContributed: fund.TotalContributed,
		CurrentBalance:   fund.CurrentBalance,
		TotalDeposit:     totals.Deposits,
		TotalWithdraw:    totals.Withdrawals,
		PendingCount:     totals.PendingCount,
	}, nil
}

// ListTransactions returns a fund's history, newest first
func (s *Service) ListTransactions(ctx context.Context, fundID int64, filters repository.TransactionFilters) ([]*models.FundTransaction, error) {
	if _, err := s.loadFund(ctx, fundID); err != nil {
		return nil, err
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultPageSize
	}
	if filters.Limit > maxPageSize {
		filters.Limit = maxPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	txns, err := s.Transactions.ListByFund(ctx, fundID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of fund %d: %w", fundID, err)
	}
	return txns, nil
}

// ListPending returns the fund's open withdrawal requests
func (s *Service) ListPending(ctx context.Context, fundID int64) ([]*models.FundTransaction, error) {
	status := models.TransactionStatusPending
	typ := models.TransactionTypeWithdraw
	return s.ListTransactions(ctx, fundID, repository.TransactionFilters{
		Status: &status,
		Type:   &typ,
		Limit:  maxPageSize,
	})
}

// GetTransaction returns a transaction with its votes attached
func (s *Service) GetTransaction(ctx context.Context, id int64) (*models.FundTransaction, error) {
	txn, err := s.loadTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	votes, err := s.Votes.GetByTransactionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes of transaction %d: %w", id, err)
	}
	txn.Votes = make([]models.Vote, 0, len(votes))
	for _, v := range votes {
		txn.Votes = append(txn.Votes, *v)
	}

	return txn, nil
}
