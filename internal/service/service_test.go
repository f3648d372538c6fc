package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/FundboT/internal/metrics"
	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository/memory"
)

// fixture is a group with members, the first of them admin, and a fund
type fixture struct {
	svc       *Service
	store     *memory.Store
	group     *models.Group
	fund      *models.GroupFund
	members   []*models.User
	notes     *recordingNotifier
	directory *switchableMembership
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, memberCount int, balance int64) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	membership := &switchableMembership{inner: NewGroupMembership(store.Groups())}
	notes := &recordingNotifier{}

	svc := New(store, quietLogger(), Options{
		Membership: membership,
		Notifier:   notes,
		Metrics:    metrics.New(),
	})

	group, err := svc.CreateGroup(ctx, "garage", nil)
	require.NoError(t, err)

	f := &fixture{svc: svc, store: store, group: group, notes: notes, directory: membership}
	for i := 0; i < memberCount; i++ {
		user, err := svc.CreateUser(ctx, &models.User{FirstName: "member"})
		require.NoError(t, err)
		_, err = svc.EnsureGroupMember(ctx, group.ID, user.ID)
		require.NoError(t, err)
		f.members = append(f.members, user)
	}

	f.fund, err = svc.CreateFund(ctx, group.ID)
	require.NoError(t, err)

	if balance > 0 {
		_, err = svc.Deposit(ctx, group.ID, f.members[0].ID, decimal.NewFromInt(balance), "seed")
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) admin() *models.User {
	return f.members[0]
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	fund, err := f.svc.GetFund(context.Background(), f.fund.ID)
	require.NoError(t, err)
	return fund.CurrentBalance
}

// castRaw stores a vote without triggering evaluation
func (f *fixture) castRaw(t *testing.T, txnID, userID int64, approve bool) {
	t.Helper()
	_, err := f.store.Votes().Create(context.Background(), &models.Vote{TransactionID: txnID, UserID: userID, Approve: approve})
	require.NoError(t, err)
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

// switchableMembership delegates to the group tables unless failing or
// hooked for a test.
type switchableMembership struct {
	inner   MembershipProvider
	failing atomic.Bool
	hook    func()
}

var errDirectoryDown = errors.New("directory down")

func (m *switchableMembership) ActiveMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	if m.hook != nil {
		m.hook()
	}
	if m.failing.Load() {
		return nil, errDirectoryDown
	}
	return m.inner.ActiveMemberIDs(ctx, groupID)
}

func (m *switchableMembership) MemberRole(ctx context.Context, groupID, userID int64) (models.MemberRole, error) {
	if m.failing.Load() {
		return "", errDirectoryDown
	}
	return m.inner.MemberRole(ctx, groupID, userID)
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []int64
	settled   []models.TransactionStatus
}

func (n *recordingNotifier) WithdrawalRequested(_ context.Context, _ *models.GroupFund, txn *models.FundTransaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, txn.ID)
}

func (n *recordingNotifier) TransactionSettled(_ context.Context, _ *models.GroupFund, txn *models.FundTransaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settled = append(n.settled, txn.Status)
}

func (n *recordingNotifier) settledStatuses() []models.TransactionStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.TransactionStatus(nil), n.settled...)
}
