package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

type groupRepository struct {
	db DBTX
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db DBTX) repository.GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *models.Group) (*models.Group, error) {
	query := `
		INSERT INTO groups (chat_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, query,
		group.ChatID,
		group.Name,
		group.CreatedAt,
		group.UpdatedAt,
	).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create group: %w", repository.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return group, nil
}

func (r *groupRepository) GetByChatID(ctx context.Context, chatID int64) (*models.Group, error) {
	query := `
		SELECT id, chat_id, name, created_at, updated_at
		FROM groups
		WHERE chat_id = $1`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, chatID))
	if err != nil {
		return nil, fmt.Errorf("failed to get group by chat ID: %w", err)
	}
	return group, nil
}

func (r *groupRepository) GetByID(ctx context.Context, id int64) (*models.Group, error) {
	query := `
		SELECT id, chat_id, name, created_at, updated_at
		FROM groups
		WHERE id = $1`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get group by ID: %w", err)
	}
	return group, nil
}

func (r *groupRepository) Update(ctx context.Context, group *models.Group) (*models.Group, error) {
	query := `
		UPDATE groups
		SET name = $2, chat_id = $3, updated_at = $4
		WHERE id = $1
		RETURNING updated_at`

	group.UpdatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		group.ID,
		group.Name,
		group.ChatID,
		group.UpdatedAt,
	).Scan(&group.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("group %d: %w", group.ID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	return group, nil
}

func (r *groupRepository) AddMember(ctx context.Context, groupID, userID int64, role models.MemberRole) error {
	query := `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = $3`

	_, err := r.db.ExecContext(ctx, query, groupID, userID, role, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	return nil
}

func (r *groupRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	query := `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("member %d of group %d: %w", userID, groupID, repository.ErrNotFound)
	}

	return nil
}

func (r *groupRepository) GetMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error) {
	query := `
		SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at,
		       u.id, u.telegram_id, u.telegram_username, u.first_name, u.last_name, u.is_active, u.created_at, u.updated_at
		FROM group_members gm
		INNER JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at ASC, gm.user_id ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var members []*models.GroupMember
	for rows.Next() {
		member := &models.GroupMember{User: &models.User{}}
		if err := rows.Scan(
			&member.GroupID,
			&member.UserID,
			&member.Role,
			&member.JoinedAt,
			&member.User.ID,
			&member.User.TelegramID,
			&member.User.TelegramUsername,
			&member.User.FirstName,
			&member.User.LastName,
			&member.User.IsActive,
			&member.User.CreatedAt,
			&member.User.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

func (r *groupRepository) GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, role, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2`

	member := &models.GroupMember{}
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(
		&member.GroupID,
		&member.UserID,
		&member.Role,
		&member.JoinedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group member: %w", err)
	}

	return member, nil
}

func (r *groupRepository) ActiveMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	query := `
		SELECT gm.user_id
		FROM group_members gm
		INNER JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 AND u.is_active
		ORDER BY gm.user_id ASC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanGroup(row *sql.Row) (*models.Group, error) {
	group := &models.Group{}
	err := row.Scan(
		&group.ID,
		&group.ChatID,
		&group.Name,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return group, nil
}
