package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
)

var (
	// ErrNotFound is returned by mutations that address a missing row.
	// Lookups return (nil, nil) instead.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned by Debit when the fund cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned by Credit and Debit for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotPending is returned when a transition targets a transaction that already left the pending state.
	ErrNotPending = errors.New("transaction is not pending")
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}

// GroupRepository defines the interface for group and membership operations
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) (*models.Group, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.Group, error)
	GetByID(ctx context.Context, id int64) (*models.Group, error)
	Update(ctx context.Context, group *models.Group) (*models.Group, error)
	AddMember(ctx context.Context, groupID, userID int64, role models.MemberRole) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	GetMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error)
	// GetMember returns nil when the user does not belong to the group.
	GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error)
	// ActiveMemberIDs returns the ids of members whose user account is active.
	ActiveMemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// FundRepository is the fund ledger.
type FundRepository interface {
	// GetOrCreate returns the group's fund, creating a zero-balance fund if
	// absent. Concurrent callers for the same group get the same fund.
	GetOrCreate(ctx context.Context, groupID int64) (*models.GroupFund, error)
	GetByID(ctx context.Context, id int64) (*models.GroupFund, error)
	GetByGroupID(ctx context.Context, groupID int64) (*models.GroupFund, error)
	// Credit adds amount to both the total contributed and the balance.
	Credit(ctx context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error)
	// Debit subtracts amount from the balance in a single check-and-set step
	// and fails with ErrInsufficientBalance without mutating anything.
	Debit(ctx context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error)
}

// TransactionRepository defines the interface for fund transaction records
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.FundTransaction) (*models.FundTransaction, error)
	GetByID(ctx context.Context, id int64) (*models.FundTransaction, error)
	// GetForUpdate reads the transaction and, inside a unit of work, locks it
	// until the unit of work ends.
	GetForUpdate(ctx context.Context, id int64) (*models.FundTransaction, error)
	ListByFund(ctx context.Context, fundID int64, filters TransactionFilters) ([]*models.FundTransaction, error)
	// ListPending returns up to limit pending withdrawals across all funds
	// with an id above afterID, in id order. Passing the last id of one page
	// as afterID yields the next page; a limit of zero returns all of them.
	ListPending(ctx context.Context, afterID int64, limit int) ([]*models.FundTransaction, error)
	// Resolve moves a pending transaction to a terminal status. It fails with
	// ErrNotPending when the transaction has already been resolved.
	Resolve(ctx context.Context, id int64, res Resolution) (*models.FundTransaction, error)
	Totals(ctx context.Context, fundID int64) (*TransactionTotals, error)
}

// VoteRepository defines the interface for withdrawal votes
type VoteRepository interface {
	// Create fails with ErrDuplicate when the user already voted.
	Create(ctx context.Context, vote *models.Vote) (*models.Vote, error)
	GetByTransactionID(ctx context.Context, transactionID int64) ([]*models.Vote, error)
}

// Tx exposes the repositories that take part in a unit of work.
type Tx interface {
	Funds() FundRepository
	Transactions() TransactionRepository
	Votes() VoteRepository
}

// Store bundles every repository behind one storage backend.
type Store interface {
	Users() UserRepository
	Groups() GroupRepository
	Funds() FundRepository
	Transactions() TransactionRepository
	Votes() VoteRepository
	// WithTx runs fn as one atomic unit of work. Any error returned by fn
	// rolls back every change made through tx.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Resolution describes the terminal state a pending transaction moves to
type Resolution struct {
	Status     models.TransactionStatus
	ResolvedBy *int64
	Note       string
	ResolvedAt time.Time
}

// TransactionFilters represents filters for querying fund transactions
type TransactionFilters struct {
	Status *models.TransactionStatus
	Type   *models.TransactionType
	Limit  int
	Offset int
}

// TransactionTotals aggregates completed flows and open requests of a fund
type TransactionTotals struct {
	Deposits     decimal.Decimal
	Withdrawals  decimal.Decimal
	PendingCount int
}
