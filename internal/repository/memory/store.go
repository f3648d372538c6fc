// Package memory is an in-process implementation of repository.Store used by
// tests and by STORAGE=memory development runs.
package memory

import (
	"context"
	"sync"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

type state struct {
	users   map[int64]models.User
	groups  map[int64]models.Group
	members map[int64]map[int64]models.GroupMember
	funds   map[int64]models.GroupFund
	txns    map[int64]models.FundTransaction
	votes   map[int64][]models.Vote

	nextUserID  int64
	nextGroupID int64
	nextFundID  int64
	nextTxnID   int64
	nextVoteID  int64
}

func newState() *state {
	return &state{
		users:   make(map[int64]models.User),
		groups:  make(map[int64]models.Group),
		members: make(map[int64]map[int64]models.GroupMember),
		funds:   make(map[int64]models.GroupFund),
		txns:    make(map[int64]models.FundTransaction),
		votes:   make(map[int64][]models.Vote),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for g, ms := range s.members {
		cm := make(map[int64]models.GroupMember, len(ms))
		for k, v := range ms {
			cm[k] = v
		}
		c.members[g] = cm
	}
	for k, v := range s.funds {
		c.funds[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = append([]models.Vote(nil), v...)
	}
	c.nextUserID = s.nextUserID
	c.nextGroupID = s.nextGroupID
	c.nextFundID = s.nextFundID
	c.nextTxnID = s.nextTxnID
	c.nextVoteID = s.nextVoteID
	return c
}

// runner executes fn against a consistent view of the state.
type runner func(fn func(s *state) error) error

// Store keeps every table in maps guarded by one mutex. WithTx works on a
// private copy and swaps it in on success, so a failed unit of work leaves
// no trace.
//
// Repositories obtained from the Store itself must not be used inside a
// WithTx callback; use the ones handed to the callback.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) run(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) Users() repository.UserRepository   { return &userRepository{run: s.run} }
func (s *Store) Groups() repository.GroupRepository { return &groupRepository{run: s.run} }
func (s *Store) Funds() repository.FundRepository   { return &fundRepository{run: s.run} }
func (s *Store) Transactions() repository.TransactionRepository {
	return &transactionRepository{run: s.run}
}
func (s *Store) Votes() repository.VoteRepository { return &voteRepository{run: s.run} }

// WithTx serializes units of work. That is stronger than the row locks the
// Postgres store takes and satisfies the same contract.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	direct := func(f func(st *state) error) error { return f(work) }

	if err := fn(ctx, &txRepos{run: direct}); err != nil {
		return err
	}

	s.state = work
	return nil
}

func (s *Store) Close() error {
	return nil
}

type txRepos struct {
	run runner
}

func (t *txRepos) Funds() repository.FundRepository { return &fundRepository{run: t.run} }
func (t *txRepos) Transactions() repository.TransactionRepository {
	return &transactionRepository{run: t.run}
}
func (t *txRepos) Votes() repository.VoteRepository { return &voteRepository{run: t.run} }
