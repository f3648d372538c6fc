package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

// Settlement triggers, used as a metric label and in logs
const (
	triggerVote   = "vote"
	triggerAdmin  = "admin"
	triggerCancel = "cancel"
)

type settleResult int

const (
	settled settleResult = iota
	settledShortOfFunds
	alreadyResolved
)

type settleRequest struct {
	target     models.TransactionStatus
	note       string
	resolvedBy *int64
	trigger    string
}

// SubmitVote records a member's vote on a pending withdrawal and evaluates
// quorum straight away. The returned transaction reflects that evaluation.
func (s *Service) SubmitVote(ctx context.Context, transactionID, userID int64, approve bool, note string) (*models.FundTransaction, error) {
	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !txn.IsPendingWithdrawal() {
		return nil, fmt.Errorf("transaction %d is %s %s: %w", txn.ID, txn.Status, txn.Type, ErrInvalidState)
	}

	fund, err := s.loadFund(ctx, txn.FundID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActiveMember(ctx, fund.GroupID, userID); err != nil {
		return nil, err
	}
	if userID == txn.UserID {
		return nil, fmt.Errorf("initiator %d cannot vote on transaction %d: %w", userID, txn.ID, ErrNotAMember)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.Transactions().GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
		}
		if !locked.IsPendingWithdrawal() {
			return fmt.Errorf("transaction %d is already %s: %w", locked.ID, locked.Status, ErrInvalidState)
		}

		_, err = tx.Votes().Create(ctx, &models.Vote{
			TransactionID: transactionID,
			UserID:        userID,
			Approve:       approve,
			Note:          strings.TrimSpace(note),
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("user %d on transaction %d: %w", userID, transactionID, ErrDuplicateVote)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrDuplicateVote) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	decision := "reject"
	if approve {
		decision = "approve"
	}
	s.metrics.Votes.WithLabelValues(decision).Inc()
	s.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"user_id":        userID,
		"decision":       decision,
	}).Info("Vote recorded")

	result, err := s.EvaluateQuorum(ctx, transactionID)
	if err != nil {
		// The vote is stored; the next vote or sweep settles the transaction.
		if errors.Is(err, ErrMembershipUnavailable) && result != nil {
			return result, nil
		}
		return nil, fmt.Errorf("vote recorded but evaluating transaction %d failed: %w", transactionID, err)
	}
	return result, nil
}

// EvaluateQuorum settles a pending withdrawal once its votes decide it.
// It is idempotent: terminal transactions are returned untouched, and when
// several evaluators race only one of them performs the transition.
//
// A membership lookup failure leaves the transaction pending and is
// reported as ErrMembershipUnavailable together with the current record.
func (s *Service) EvaluateQuorum(ctx context.Context, transactionID int64) (*models.FundTransaction, error) {
	txn, _, err := s.evaluateQuorum(ctx, transactionID)
	return txn, err
}

// evaluateQuorum is EvaluateQuorum that also reports whether this call
// performed the transition out of pending.
func (s *Service) evaluateQuorum(ctx context.Context, transactionID int64) (*models.FundTransaction, bool, error) {
	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	if !txn.IsPendingWithdrawal() {
		return txn, false, nil
	}

	fund, err := s.loadFund(ctx, txn.FundID)
	if err != nil {
		return nil, false, err
	}

	members, err := s.membership.ActiveMemberIDs(ctx, fund.GroupID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"group_id":       fund.GroupID,
		}).Warn("Membership unavailable, leaving withdrawal pending")
		return txn, false, fmt.Errorf("transaction %d: %w: %v", txn.ID, ErrMembershipUnavailable, err)
	}

	votes, err := s.Votes.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load votes of transaction %d: %w", txn.ID, err)
	}

	tally := CountVotes(votes, members, txn.UserID)
	outcome := Decide(tally, s.threshold)

	s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"approve":        tally.Approve,
		"reject":         tally.Reject,
		"eligible":       tally.Eligible,
		"outcome":        outcome.String(),
	}).Debug("Quorum evaluated")

	var req settleRequest
	switch outcome {
	case OutcomeApproved:
		req = settleRequest{target: models.TransactionStatusCompleted, note: models.NoteApprovedByVote, trigger: triggerVote}
	case OutcomeRejected:
		req = settleRequest{target: models.TransactionStatusRejected, note: models.NoteRejectedByVote, trigger: triggerVote}
	default:
		return txn, false, nil
	}

	result, outcome, err := s.settle(ctx, fund, transactionID, req)
	if err != nil {
		return result, false, err
	}
	return result, outcome != alreadyResolved, nil
}

// CancelWithdrawal withdraws the initiator's own pending request
func (s *Service) CancelWithdrawal(ctx context.Context, transactionID, userID int64) (*models.FundTransaction, error) {
	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("user %d did not initiate transaction %d: %w", userID, txn.ID, ErrForbidden)
	}
	if !txn.IsPendingWithdrawal() {
		return nil, fmt.Errorf("transaction %d is %s: %w", txn.ID, txn.Status, ErrInvalidState)
	}

	fund, err := s.loadFund(ctx, txn.FundID)
	if err != nil {
		return nil, err
	}

	result, outcome, err := s.settle(ctx, fund, transactionID, settleRequest{
		target:  models.TransactionStatusCancelled,
		trigger: triggerCancel,
	})
	if err != nil {
		return nil, err
	}
	if outcome == alreadyResolved {
		return nil, fmt.Errorf("transaction %d was already %s: %w", result.ID, result.Status, ErrInvalidState)
	}
	return result, nil
}

// ApproveWithdrawal completes a pending withdrawal on an admin's authority.
// When the fund can no longer cover it the request is rejected instead and
// ErrInsufficientFunds is returned alongside the rejected record.
func (s *Service) ApproveWithdrawal(ctx context.Context, transactionID, adminID int64, note string) (*models.FundTransaction, error) {
	return s.override(ctx, transactionID, adminID, models.TransactionStatusCompleted, note)
}

// RejectWithdrawal rejects a pending withdrawal on an admin's authority
func (s *Service) RejectWithdrawal(ctx context.Context, transactionID, adminID int64, note string) (*models.FundTransaction, error) {
	return s.override(ctx, transactionID, adminID, models.TransactionStatusRejected, note)
}

func (s *Service) override(ctx context.Context, transactionID, adminID int64, target models.TransactionStatus, note string) (*models.FundTransaction, error) {
	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	fund, err := s.loadFund(ctx, txn.FundID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, fund.GroupID, adminID); err != nil {
		return nil, err
	}
	if !txn.IsPendingWithdrawal() {
		return nil, fmt.Errorf("transaction %d is %s: %w", txn.ID, txn.Status, ErrInvalidState)
	}

	result, outcome, err := s.settle(ctx, fund, transactionID, settleRequest{
		target:     target,
		note:       strings.TrimSpace(note),
		resolvedBy: &adminID,
		trigger:    triggerAdmin,
	})
	if err != nil {
		return nil, err
	}

	switch outcome {
	case alreadyResolved:
		return nil, fmt.Errorf("transaction %d was already %s: %w", result.ID, result.Status, ErrInvalidState)
	case settledShortOfFunds:
		return result, fmt.Errorf("fund %d cannot cover %s: %w", fund.ID, result.Amount.StringFixed(2), ErrInsufficientFunds)
	}
	return result, nil
}

// settle performs the one transition out of pending. Under the transaction's
// row lock it re-checks the status, debits the fund for completions and
// records the terminal status, all in one unit of work. A debit the fund
// cannot cover turns the completion into a rejection.
func (s *Service) settle(ctx context.Context, fund *models.GroupFund, transactionID int64, req settleRequest) (*models.FundTransaction, settleResult, error) {
	var (
		result  *models.FundTransaction
		outcome = settled
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.Transactions().GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
		}
		if locked.Status != models.TransactionStatusPending {
			result = locked
			outcome = alreadyResolved
			return nil
		}

		status, note := req.target, req.note
		if status == models.TransactionStatusCompleted {
			_, err := tx.Funds().Debit(ctx, locked.FundID, locked.Amount)
			switch {
			case errors.Is(err, repository.ErrInsufficientBalance):
				status = models.TransactionStatusRejected
				note = models.NoteInsufficientFundsAtSettlement
				outcome = settledShortOfFunds
			case err != nil:
				return err
			}
		}

		result, err = tx.Transactions().Resolve(ctx, transactionID, repository.Resolution{
			Status:     status,
			ResolvedBy: req.resolvedBy,
			Note:       note,
			ResolvedAt: time.Now(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to settle transaction %d: %w", transactionID, err)
	}

	if outcome == alreadyResolved {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"status":         result.Status,
			"trigger":        req.trigger,
		}).Debug("Transaction already resolved, nothing to do")
		return result, outcome, nil
	}

	s.metrics.Settlements.WithLabelValues(string(result.Status), req.trigger).Inc()

	entry := s.logger.WithFields(logrus.Fields{
		"transaction_id": result.ID,
		"fund_id":        result.FundID,
		"amount":         result.Amount.StringFixed(2),
		"status":         result.Status,
		"trigger":        req.trigger,
		"note":           result.Note,
	})
	if req.resolvedBy != nil {
		entry = entry.WithField("resolved_by", *req.resolvedBy)
	}
	entry.Info("Withdrawal settled")

	s.notifier.TransactionSettled(ctx, fund, result)
	return result, outcome, nil
}
