package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/FundboT/internal/metrics"
	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

func TestVoteSplitStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 300_000)
	a, b, c := f.members[0], f.members[1], f.members[2]

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, a.ID, decimal.NewFromInt(200_000), "repairs")
	require.NoError(t, err)

	result, err := f.svc.SubmitVote(ctx, txn.ID, b.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Status)

	result, err = f.svc.SubmitVote(ctx, txn.ID, c.ID, false, "too much")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Status)

	_, err = f.svc.SubmitVote(ctx, txn.ID, a.ID, true, "")
	assert.ErrorIs(t, err, ErrNotAMember, "initiator may not vote")

	requireDecimal(t, 300_000, f.balance(t))
}

func TestSettlementShortOfFundsRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 60_000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(50_000), "engine")
	require.NoError(t, err)

	// The balance drops below the request before votes come in.
	_, err = f.svc.AdminWithdraw(ctx, f.fund.ID, f.admin().ID, decimal.NewFromInt(20_000), "tax")
	require.NoError(t, err)
	requireDecimal(t, 40_000, f.balance(t))

	for i, voter := range []*models.User{f.members[2], f.members[3], f.members[4]} {
		result, err := f.svc.SubmitVote(ctx, txn.ID, voter.ID, true, "")
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, models.TransactionStatusPending, result.Status)
			continue
		}
		assert.Equal(t, models.TransactionStatusRejected, result.Status)
		assert.Equal(t, models.NoteInsufficientFundsAtSettlement, result.Note)
	}

	requireDecimal(t, 40_000, f.balance(t))
}

func TestApprovalQuorumCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(400), "")
	require.NoError(t, err)

	result, err := f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Status, "1/3 is below 51%")

	result, err = f.svc.SubmitVote(ctx, txn.ID, f.members[2].ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)
	assert.Equal(t, models.NoteApprovedByVote, result.Note)
	requireDecimal(t, 600, f.balance(t))

	_, err = f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, false, "")
	assert.ErrorIs(t, err, ErrInvalidState, "late vote on a settled transaction")

	assert.Equal(t, []models.TransactionStatus{models.TransactionStatusCompleted}, f.notes.settledStatuses())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Settlements.WithLabelValues("completed", "vote")))
}

func TestRejectionQuorum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(400), "")
	require.NoError(t, err)

	// 0.49 * 4 = 1.96, so the second rejection decides.
	result, err := f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Status)

	result, err = f.svc.SubmitVote(ctx, txn.ID, f.members[2].ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusRejected, result.Status)
	assert.Equal(t, models.NoteRejectedByVote, result.Note)
	requireDecimal(t, 1000, f.balance(t))
}

func TestDuplicateVoteRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	_, err = f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, false, "")
	require.NoError(t, err)
	_, err = f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, true, "changed my mind")
	assert.ErrorIs(t, err, ErrDuplicateVote)

	full, err := f.svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, full.Votes, 1)
	assert.False(t, full.Votes[0].Approve)
}

func TestConcurrentDuplicateVotesStoreOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		dups int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitVote(ctx, txn.ID, f.members[1].ID, true, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
			} else if assert.ErrorIs(t, err, ErrDuplicateVote) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	assert.Equal(t, 9, dups)
}

func TestVoteRequiresActiveMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	outsider, err := f.svc.CreateUser(ctx, &models.User{FirstName: "outsider"})
	require.NoError(t, err)

	_, err = f.svc.SubmitVote(ctx, txn.ID, outsider.ID, true, "")
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = f.svc.SubmitVote(ctx, 999, f.members[1].ID, true, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVotesOfFormerMembersIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	f.castRaw(t, txn.ID, f.members[1].ID, true)
	f.castRaw(t, txn.ID, f.members[2].ID, true)

	// Two approvals of four members clear neither 2.04 nor the reject bar.
	require.NoError(t, f.svc.RemoveMember(ctx, f.group.ID, f.members[3].ID))

	// Three members now: 2 >= 1.53 approves.
	result, err := f.svc.EvaluateQuorum(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)

	other, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	f.castRaw(t, other.ID, f.members[1].ID, true)
	f.castRaw(t, other.ID, f.members[2].ID, true)
	require.NoError(t, f.svc.RemoveMember(ctx, f.group.ID, f.members[2].ID))

	// Member 2 left: only one counted approval of two members, 1 < 1.02.
	result, err = f.svc.EvaluateQuorum(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, result.Status)
}

func TestConcurrentEvaluationSettlesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(700), "")
	require.NoError(t, err)
	f.castRaw(t, txn.ID, f.members[1].ID, true)
	f.castRaw(t, txn.ID, f.members[2].ID, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.EvaluateQuorum(ctx, txn.ID)
			assert.NoError(t, err)
			assert.Equal(t, models.TransactionStatusCompleted, result.Status)
		}()
	}
	wg.Wait()

	requireDecimal(t, 300, f.balance(t))
	assert.Len(t, f.notes.settledStatuses(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics().Settlements.WithLabelValues("completed", "vote")))
}

func TestCancelWithdrawal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	_, err = f.svc.CancelWithdrawal(ctx, txn.ID, f.members[2].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := f.svc.CancelWithdrawal(ctx, txn.ID, f.members[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCancelled, result.Status)

	_, err = f.svc.CancelWithdrawal(ctx, txn.ID, f.members[1].ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.SubmitVote(ctx, txn.ID, f.members[2].ID, true, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	requireDecimal(t, 1000, f.balance(t))
}

func TestCancelRacesEvaluation(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx := context.Background()
		f := newFixture(t, 3, 1000)

		txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(100), "")
		require.NoError(t, err)
		f.castRaw(t, txn.ID, f.members[1].ID, true)
		f.castRaw(t, txn.ID, f.members[2].ID, true)

		var (
			wg        sync.WaitGroup
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.CancelWithdrawal(ctx, txn.ID, f.members[0].ID)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.EvaluateQuorum(ctx, txn.ID)
			assert.NoError(t, err)
		}()
		wg.Wait()

		final, err := f.svc.GetTransaction(ctx, txn.ID)
		require.NoError(t, err)

		switch final.Status {
		case models.TransactionStatusCancelled:
			require.NoError(t, cancelErr)
			requireDecimal(t, 1000, f.balance(t))
		case models.TransactionStatusCompleted:
			require.ErrorIs(t, cancelErr, ErrInvalidState)
			requireDecimal(t, 900, f.balance(t))
		default:
			t.Fatalf("unexpected final status %s", final.Status)
		}
		assert.Len(t, f.notes.settledStatuses(), 1)
	}
}

func TestMembershipFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	f.castRaw(t, txn.ID, f.members[1].ID, true)
	f.castRaw(t, txn.ID, f.members[2].ID, true)

	f.directory.failing.Store(true)
	result, err := f.svc.EvaluateQuorum(ctx, txn.ID)
	require.ErrorIs(t, err, ErrMembershipUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, models.TransactionStatusPending, result.Status)
	requireDecimal(t, 1000, f.balance(t))

	f.directory.failing.Store(false)
	result, err = f.svc.EvaluateQuorum(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)
}

func TestAdminOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	approveMe, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(300), "")
	require.NoError(t, err)
	rejectMe, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(300), "")
	require.NoError(t, err)

	_, err = f.svc.ApproveWithdrawal(ctx, approveMe.ID, f.members[2].ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := f.svc.ApproveWithdrawal(ctx, approveMe.ID, f.admin().ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)
	require.NotNil(t, result.ResolvedBy)
	assert.Equal(t, f.admin().ID, *result.ResolvedBy)
	requireDecimal(t, 700, f.balance(t))

	result, err = f.svc.RejectWithdrawal(ctx, rejectMe.ID, f.admin().ID, "no")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusRejected, result.Status)
	assert.Equal(t, "no", result.Note)

	_, err = f.svc.RejectWithdrawal(ctx, approveMe.ID, f.admin().ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	requireDecimal(t, 700, f.balance(t))
}

func TestAdminApproveShortOfFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 500)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(400), "")
	require.NoError(t, err)
	_, err = f.svc.AdminWithdraw(ctx, f.fund.ID, f.admin().ID, decimal.NewFromInt(200), "")
	require.NoError(t, err)

	result, err := f.svc.ApproveWithdrawal(ctx, txn.ID, f.admin().ID, "")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.NotNil(t, result)
	assert.Equal(t, models.TransactionStatusRejected, result.Status)
	assert.Equal(t, models.NoteInsufficientFundsAtSettlement, result.Note)
	requireDecimal(t, 300, f.balance(t))

	_, err = f.svc.ApproveWithdrawal(ctx, txn.ID, f.admin().ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

// failingTxStore fails its failOn-th unit of work before running it
type failingTxStore struct {
	repository.Store
	failOn int32
	calls  atomic.Int32
}

var errCommit = errors.New("commit failed")

func (s *failingTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if s.calls.Add(1) == s.failOn {
		return errCommit
	}
	return s.Store.WithTx(ctx, fn)
}

func TestVoteReturnsSettlementFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	f.castRaw(t, txn.ID, f.members[1].ID, true)

	// The vote commits, the settlement that follows it does not.
	store := &failingTxStore{Store: f.store, failOn: 2}
	svc := New(store, quietLogger(), Options{Membership: f.directory, Metrics: metrics.New()})

	result, err := svc.SubmitVote(ctx, txn.ID, f.members[2].ID, true, "")
	require.ErrorIs(t, err, errCommit)
	assert.NotErrorIs(t, err, ErrMembershipUnavailable)
	assert.Nil(t, result)

	votes, err := f.store.Votes().GetByTransactionID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	got, err := f.svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, got.Status)
	requireDecimal(t, 1000, f.balance(t))

	got, err = f.svc.EvaluateQuorum(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, got.Status)
	requireDecimal(t, 900, f.balance(t))
}

func TestVoteKeptWhenMembershipFailsAfterRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[0].ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	f.castRaw(t, txn.ID, f.members[1].ID, true)

	// The voter's own membership check passes, the quorum lookup fails.
	var lookups atomic.Int32
	f.directory.hook = func() {
		if lookups.Add(1) > 1 {
			f.directory.failing.Store(true)
		}
	}

	result, err := f.svc.SubmitVote(ctx, txn.ID, f.members[2].ID, true, "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.TransactionStatusPending, result.Status)
	requireDecimal(t, 1000, f.balance(t))

	f.directory.hook = nil
	f.directory.failing.Store(false)
	result, err = f.svc.EvaluateQuorum(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, result.Status)
}

func TestDeactivatedAdminCannotOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 1000)

	txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[1].ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	admin := *f.admin()
	admin.IsActive = false
	_, err = f.store.Users().Update(ctx, &admin)
	require.NoError(t, err)

	role, err := f.directory.MemberRole(ctx, f.group.ID, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, role)

	_, err = f.svc.ApproveWithdrawal(ctx, txn.ID, admin.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.RejectWithdrawal(ctx, txn.ID, admin.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AdminWithdraw(ctx, f.fund.ID, admin.ID, decimal.NewFromInt(100), "")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, got.Status)
	requireDecimal(t, 1000, f.balance(t))
}

func TestConcurrentFundActivityKeepsLedgerBalanced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, 500)
	requester, voters := f.members[1], []*models.User{f.members[2], f.members[3], f.admin()}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(4)
		go func() {
			defer wg.Done()
			_, err := f.svc.DepositToFund(ctx, f.fund.ID, f.members[3].ID, decimal.NewFromInt(25), "")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.AdminWithdraw(ctx, f.fund.ID, f.admin().ID, decimal.NewFromInt(60), "")
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientFunds)
			}
		}()
		go func() {
			defer wg.Done()
			txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, requester.ID, decimal.NewFromInt(40), "")
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientFunds)
				return
			}
			for _, voter := range voters {
				if _, err := f.svc.SubmitVote(ctx, txn.ID, voter.ID, true, ""); err != nil {
					assert.ErrorIs(t, err, ErrInvalidState)
				}
			}
		}()
		go func() {
			defer wg.Done()
			txn, err := f.svc.RequestWithdrawal(ctx, f.fund.ID, f.members[2].ID, decimal.NewFromInt(30), "")
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientFunds)
				return
			}
			if _, err := f.svc.SubmitVote(ctx, txn.ID, f.members[3].ID, true, ""); err != nil {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
			_, err = f.svc.CancelWithdrawal(ctx, txn.ID, f.members[2].ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fund, err := f.svc.GetFund(ctx, f.fund.ID)
	require.NoError(t, err)
	txns, err := f.svc.ListTransactions(ctx, f.fund.ID, repository.TransactionFilters{Limit: 200})
	require.NoError(t, err)
	require.Less(t, len(txns), 200)

	deposits, withdrawals := decimal.Zero, decimal.Zero
	for _, txn := range txns {
		assert.NotEqual(t, models.TransactionStatusPending, txn.Status, "transaction %d left pending", txn.ID)
		if txn.Status != models.TransactionStatusCompleted {
			continue
		}
		switch txn.Type {
		case models.TransactionTypeDeposit:
			deposits = deposits.Add(txn.Amount)
		case models.TransactionTypeWithdraw:
			withdrawals = withdrawals.Add(txn.Amount)
		}
	}

	requireDecimal(t, 750, fund.TotalContributed)
	assert.True(t, fund.TotalContributed.Equal(deposits), "contributed %s, deposits %s", fund.TotalContributed, deposits)
	assert.True(t, fund.CurrentBalance.Equal(deposits.Sub(withdrawals)),
		"balance %s, deposits %s, withdrawals %s", fund.CurrentBalance, deposits, withdrawals)
	assert.False(t, fund.CurrentBalance.IsNegative())
}
