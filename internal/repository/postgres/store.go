package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Kerhoff/FundboT/internal/repository"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every repository can run
// either on the pool or inside a unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements repository.Store on PostgreSQL
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a new Postgres-backed store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository         { return NewUserRepository(s.db) }
func (s *Store) Groups() repository.GroupRepository       { return NewGroupRepository(s.db) }
func (s *Store) Funds() repository.FundRepository         { return NewFundRepository(s.db) }
func (s *Store) Transactions() repository.TransactionRepository {
	return NewTransactionRepository(s.db)
}
func (s *Store) Votes() repository.VoteRepository { return NewVoteRepository(s.db) }

// WithTx runs fn inside a READ COMMITTED transaction. Row locks taken through
// GetForUpdate are held until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txRepos{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op: the pool belongs to config.Database.
func (s *Store) Close() error {
	return nil
}

type txRepos struct {
	q DBTX
}

func (t *txRepos) Funds() repository.FundRepository { return NewFundRepository(t.q) }
func (t *txRepos) Transactions() repository.TransactionRepository {
	return NewTransactionRepository(t.q)
}
func (t *txRepos) Votes() repository.VoteRepository { return NewVoteRepository(t.q) }

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
