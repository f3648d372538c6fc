package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/metrics"
	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

// DefaultApprovalThreshold is the share of active members whose approval
// completes a withdrawal.
var DefaultApprovalThreshold = decimal.RequireFromString("0.51")

// MembershipProvider answers who may vote in a group and with which role.
// It is queried fresh on every evaluation.
type MembershipProvider interface {
	ActiveMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	// MemberRole returns an empty role when the user is not a member.
	MemberRole(ctx context.Context, groupID, userID int64) (models.MemberRole, error)
}

// Notifier is told about withdrawal lifecycle events. It is called after the
// corresponding unit of work committed and must not block for long.
type Notifier interface {
	WithdrawalRequested(ctx context.Context, fund *models.GroupFund, txn *models.FundTransaction)
	TransactionSettled(ctx context.Context, fund *models.GroupFund, txn *models.FundTransaction)
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	ApprovalThreshold decimal.Decimal
	Membership        MembershipProvider
	Notifier          Notifier
	Metrics           *metrics.Metrics
}

// Service is the central business logic layer that holds all repositories
// and provides high-level methods for the application.
type Service struct {
	store      repository.Store
	logger     *logrus.Logger
	membership MembershipProvider
	notifier   Notifier
	metrics    *metrics.Metrics
	threshold  decimal.Decimal

	Users        repository.UserRepository
	Groups       repository.GroupRepository
	Funds        repository.FundRepository
	Transactions repository.TransactionRepository
	Votes        repository.VoteRepository
}

// New creates a new Service on top of store.
func New(store repository.Store, logger *logrus.Logger, opts Options) *Service {
	s := &Service{
		store:        store,
		logger:       logger,
		membership:   opts.Membership,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		threshold:    opts.ApprovalThreshold,
		Users:        store.Users(),
		Groups:       store.Groups(),
		Funds:        store.Funds(),
		Transactions: store.Transactions(),
		Votes:        store.Votes(),
	}

	if s.membership == nil {
		s.membership = NewGroupMembership(s.Groups)
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if !s.threshold.IsPositive() {
		s.threshold = DefaultApprovalThreshold
	}

	return s
}

// Threshold returns the approval threshold in effect
func (s *Service) Threshold() decimal.Decimal {
	return s.threshold
}

// Metrics returns the collectors the service reports to
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// GroupMembership reads membership from the group tables
type GroupMembership struct {
	groups repository.GroupRepository
}

// NewGroupMembership creates a membership provider backed by groups
func NewGroupMembership(groups repository.GroupRepository) *GroupMembership {
	return &GroupMembership{groups: groups}
}

func (m *GroupMembership) ActiveMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return m.groups.ActiveMemberIDs(ctx, groupID)
}

// MemberRole reports no role for deactivated users, who keep their
// membership row but may neither vote nor administer.
func (m *GroupMembership) MemberRole(ctx context.Context, groupID, userID int64) (models.MemberRole, error) {
	member, err := m.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", nil
	}

	active, err := m.groups.ActiveMemberIDs(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !containsID(active, userID) {
		return "", nil
	}
	return member.Role, nil
}

type nopNotifier struct{}

func (nopNotifier) WithdrawalRequested(context.Context, *models.GroupFund, *models.FundTransaction) {}
func (nopNotifier) TransactionSettled(context.Context, *models.GroupFund, *models.FundTransaction) {}

// validateAmount rejects non-positive amounts and sub-cent precision, which
// the NUMERIC(20,2) columns would otherwise round away.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func (s *Service) requireActiveMember(ctx context.Context, groupID, userID int64) error {
	ids, err := s.membership.ActiveMemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMembershipUnavailable, err)
	}
	if !containsID(ids, userID) {
		return fmt.Errorf("user %d in group %d: %w", userID, groupID, ErrNotAMember)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, groupID, userID int64) error {
	role, err := s.membership.MemberRole(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMembershipUnavailable, err)
	}
	if role != models.MemberRoleAdmin {
		return fmt.Errorf("user %d is not an admin of group %d: %w", userID, groupID, ErrForbidden)
	}
	return nil
}

func (s *Service) loadFund(ctx context.Context, fundID int64) (*models.GroupFund, error) {
	fund, err := s.Funds.GetByID(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fund %d: %w", fundID, err)
	}
	if fund == nil {
		return nil, fmt.Errorf("fund %d: %w", fundID, ErrNotFound)
	}
	return fund, nil
}

func (s *Service) loadTransaction(ctx context.Context, id int64) (*models.FundTransaction, error) {
	txn, err := s.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return txn, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
