package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

type voteRepository struct {
	db DBTX
}

// NewVoteRepository creates a new vote repository
func NewVoteRepository(db DBTX) repository.VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Create(ctx context.Context, vote *models.Vote) (*models.Vote, error) {
	query := `
		INSERT INTO fund_votes (transaction_id, user_id, approve, note, voted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, voted_at`

	if vote.VotedAt.IsZero() {
		vote.VotedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		vote.TransactionID,
		vote.UserID,
		vote.Approve,
		vote.Note,
		vote.VotedAt,
	).Scan(&vote.ID, &vote.VotedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create vote: %w", err)
	}

	return vote, nil
}

func (r *voteRepository) GetByTransactionID(ctx context.Context, transactionID int64) ([]*models.Vote, error) {
	query := `
		SELECT id, transaction_id, user_id, approve, note, voted_at
		FROM fund_votes
		WHERE transaction_id = $1
		ORDER BY voted_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		vote := &models.Vote{}
		if err := rows.Scan(
			&vote.ID,
			&vote.TransactionID,
			&vote.UserID,
			&vote.Approve,
			&vote.Note,
			&vote.VotedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, vote)
	}

	return votes, rows.Err()
}
