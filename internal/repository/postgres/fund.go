package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

const fundColumns = `id, group_id, total_contributed, current_balance, created_at, updated_at`

type fundRepository struct {
	db DBTX
}

// NewFundRepository creates a new fund ledger repository
func NewFundRepository(db DBTX) repository.FundRepository {
	return &fundRepository{db: db}
}

func (r *fundRepository) GetOrCreate(ctx context.Context, groupID int64) (*models.GroupFund, error) {
	// The unique index on group_id makes concurrent creators converge on one row.
	insert := `
		INSERT INTO group_funds (group_id, total_contributed, current_balance, created_at, updated_at)
		VALUES ($1, 0, 0, NOW(), NOW())
		ON CONFLICT (group_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insert, groupID); err != nil {
		return nil, fmt.Errorf("failed to create fund: %w", err)
	}

	fund, err := r.GetByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, fmt.Errorf("fund for group %d: %w", groupID, repository.ErrNotFound)
	}
	return fund, nil
}

func (r *fundRepository) GetByID(ctx context.Context, id int64) (*models.GroupFund, error) {
	query := `SELECT ` + fundColumns + ` FROM group_funds WHERE id = $1`

	fund, err := scanFund(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get fund by ID: %w", err)
	}
	return fund, nil
}

func (r *fundRepository) GetByGroupID(ctx context.Context, groupID int64) (*models.GroupFund, error) {
	query := `SELECT ` + fundColumns + ` FROM group_funds WHERE group_id = $1`

	fund, err := scanFund(r.db.QueryRowContext(ctx, query, groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to get fund by group ID: %w", err)
	}
	return fund, nil
}

func (r *fundRepository) Credit(ctx context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	query := `
		UPDATE group_funds
		SET total_contributed = total_contributed + $2,
		    current_balance = current_balance + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + fundColumns

	fund, err := scanFund(r.db.QueryRowContext(ctx, query, fundID, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to credit fund: %w", err)
	}
	if fund == nil {
		return nil, fmt.Errorf("fund %d: %w", fundID, repository.ErrNotFound)
	}
	return fund, nil
}

func (r *fundRepository) Debit(ctx context.Context, fundID int64, amount decimal.Decimal) (*models.GroupFund, error) {
	if !amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}

	// Check and decrement in one statement so two debits cannot both pass the check.
	query := `
		UPDATE group_funds
		SET current_balance = current_balance - $2,
		    updated_at = NOW()
		WHERE id = $1 AND current_balance >= $2
		RETURNING ` + fundColumns

	fund, err := scanFund(r.db.QueryRowContext(ctx, query, fundID, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to debit fund: %w", err)
	}
	if fund != nil {
		return fund, nil
	}

	existing, err := r.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("fund %d: %w", fundID, repository.ErrNotFound)
	}
	return nil, repository.ErrInsufficientBalance
}

func scanFund(row *sql.Row) (*models.GroupFund, error) {
	fund := &models.GroupFund{}
	err := row.Scan(
		&fund.ID,
		&fund.GroupID,
		&fund.TotalContributed,
		&fund.CurrentBalance,
		&fund.CreatedAt,
		&fund.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return fund, nil
}
