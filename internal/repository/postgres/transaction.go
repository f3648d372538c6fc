package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

const transactionColumns = `id, fund_id, user_id, type, amount, purpose, status, created_at, resolved_at, resolved_by, note`

type transactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new fund transaction repository
func NewTransactionRepository(db DBTX) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.FundTransaction) (*models.FundTransaction, error) {
	query := `
		INSERT INTO fund_transactions (fund_id, user_id, type, amount, purpose, status, created_at, resolved_at, resolved_by, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		txn.FundID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.Purpose,
		txn.Status,
		txn.CreatedAt,
		txn.ResolvedAt,
		txn.ResolvedBy,
		txn.Note,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create fund transaction: %w", err)
	}

	return txn, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*models.FundTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM fund_transactions WHERE id = $1`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get fund transaction by ID: %w", err)
	}
	return txn, nil
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, id int64) (*models.FundTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM fund_transactions WHERE id = $1 FOR UPDATE`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock fund transaction: %w", err)
	}
	return txn, nil
}

func (r *transactionRepository) ListByFund(ctx context.Context, fundID int64, filters repository.TransactionFilters) ([]*models.FundTransaction, error) {
	conditions := []string{"fund_id = $1"}
	args := []interface{}{fundID}
	argIndex := 2

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filters.Status)
		argIndex++
	}

	if filters.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, *filters.Type)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM fund_transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC`,
		transactionColumns, strings.Join(conditions, " AND "))

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	return r.queryTransactions(ctx, query, args...)
}

func (r *transactionRepository) ListPending(ctx context.Context, afterID int64, limit int) ([]*models.FundTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM fund_transactions
		WHERE status = 'pending' AND type = 'withdraw' AND id > $1
		ORDER BY id ASC`

	args := []interface{}{afterID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	return r.queryTransactions(ctx, query, args...)
}

func (r *transactionRepository) Resolve(ctx context.Context, id int64, res repository.Resolution) (*models.FundTransaction, error) {
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now()
	}

	// Guarding on status makes every transition out of pending happen at most once.
	query := `
		UPDATE fund_transactions
		SET status = $2, resolved_at = $3, resolved_by = $4, note = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id, res.Status, res.ResolvedAt, res.ResolvedBy, res.Note))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fund transaction: %w", err)
	}
	if txn != nil {
		return txn, nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("fund transaction %d: %w", id, repository.ErrNotFound)
	}
	return nil, repository.ErrNotPending
}

func (r *transactionRepository) Totals(ctx context.Context, fundID int64) (*repository.TransactionTotals, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'deposit' AND status = 'completed'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'withdraw' AND status = 'completed'), 0),
			COUNT(*) FILTER (WHERE type = 'withdraw' AND status = 'pending')
		FROM fund_transactions
		WHERE fund_id = $1`

	totals := &repository.TransactionTotals{}
	err := r.db.QueryRowContext(ctx, query, fundID).Scan(
		&totals.Deposits,
		&totals.Withdrawals,
		&totals.PendingCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fund totals: %w", err)
	}

	return totals, nil
}

func (r *transactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*models.FundTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fund transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.FundTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fund transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.FundTransaction, error) {
	txn := &models.FundTransaction{}
	err := row.Scan(
		&txn.ID,
		&txn.FundID,
		&txn.UserID,
		&txn.Type,
		&txn.Amount,
		&txn.Purpose,
		&txn.Status,
		&txn.CreatedAt,
		&txn.ResolvedAt,
		&txn.ResolvedBy,
		&txn.Note,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return txn, nil
}
