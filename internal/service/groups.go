package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

// EnsureUser retrieves an existing user by Telegram ID, or creates a new one
// if not found. If the user already exists but their profile information has
// changed (username, first name, last name), it updates the record.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	user, err := s.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user (telegram_id=%d): %w", telegramID, err)
	}
	if user == nil {
		user = &models.User{
			TelegramID:       &telegramID,
			TelegramUsername: username,
			FirstName:        firstName,
			LastName:         lastName,
			IsActive:         true,
		}
		user, err = s.Users.Create(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to create user (telegram_id=%d): %w", telegramID, err)
		}
		s.logger.Infof("Created new user: %s (telegram_id=%d)", user.DisplayName(), telegramID)
		return user, nil
	}

	if user.TelegramUsername == username && user.FirstName == firstName && user.LastName == lastName {
		return user, nil
	}

	user.TelegramUsername = username
	user.FirstName = firstName
	user.LastName = lastName
	user, err = s.Users.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to update user (telegram_id=%d): %w", telegramID, err)
	}
	s.logger.Infof("Updated user profile: %s (telegram_id=%d)", user.DisplayName(), telegramID)

	return user, nil
}

// EnsureGroup retrieves the group bound to a chat, creating it on first
// contact. A changed chat title renames the group.
func (s *Service) EnsureGroup(ctx context.Context, chatID int64, chatTitle string) (*models.Group, error) {
	chatTitle = strings.TrimSpace(chatTitle)

	group, err := s.Groups.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup group (chat_id=%d): %w", chatID, err)
	}
	if group == nil {
		name := chatTitle
		if name == "" {
			name = fmt.Sprintf("chat %d", chatID)
		}
		group, err = s.Groups.Create(ctx, &models.Group{ChatID: &chatID, Name: name})
		if err != nil {
			return nil, fmt.Errorf("failed to create group for chat %d: %w", chatID, err)
		}
		s.logger.Infof("Created new group: %q (chat_id=%d)", name, chatID)
		return group, nil
	}

	if chatTitle != "" && group.Name != chatTitle {
		group.Name = chatTitle
		group, err = s.Groups.Update(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("failed to update group %d: %w", group.ID, err)
		}
		s.logger.Infof("Updated group name to %q (group_id=%d)", chatTitle, group.ID)
	}

	return group, nil
}

// EnsureGroupMember makes sure the user belongs to the group. The first
// member of a group becomes its admin; everyone after joins as a member.
func (s *Service) EnsureGroupMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	existing, err := s.Groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership of user %d in group %d: %w", userID, groupID, err)
	}
	if existing != nil {
		return existing, nil
	}

	members, err := s.Groups.GetMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members for group %d: %w", groupID, err)
	}

	role := models.MemberRoleMember
	if len(members) == 0 {
		role = models.MemberRoleAdmin
	}

	if err := s.Groups.AddMember(ctx, groupID, userID, role); err != nil {
		return nil, fmt.Errorf("failed to add user %d to group %d: %w", userID, groupID, err)
	}

	s.logger.Infof("Added user %d to group %d as %s", userID, groupID, role)
	return &models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: time.Now()}, nil
}

// CreateUser registers a user that is not known through Telegram
func (s *Service) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	user.IsActive = true
	created, err := s.Users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("telegram identity already registered: %w", ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// CreateGroup registers a group, optionally bound to a Telegram chat
func (s *Service) CreateGroup(ctx context.Context, name string, chatID *int64) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", ErrInvalidInput)
	}

	group, err := s.Groups.Create(ctx, &models.Group{Name: name, ChatID: chatID})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("chat already bound to a group: %w", ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"group_id": group.ID, "name": name}).Info("Group created")
	return group, nil
}

// GetGroup returns a group with its members
func (s *Service) GetGroup(ctx context.Context, groupID int64) (*models.Group, error) {
	group, err := s.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %d: %w", groupID, err)
	}
	if group == nil {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	return group, nil
}

// AddMember adds userID to the group with role, or changes the role of an
// existing member.
func (s *Service) AddMember(ctx context.Context, groupID, userID int64, role models.MemberRole) error {
	if role == "" {
		role = models.MemberRoleMember
	}
	if role != models.MemberRoleAdmin && role != models.MemberRoleMember {
		return fmt.Errorf("unknown role %q: %w", role, ErrInvalidInput)
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	if err := s.Groups.AddMember(ctx, groupID, userID, role); err != nil {
		return fmt.Errorf("failed to add user %d to group %d: %w", userID, groupID, err)
	}
	return nil
}

// RemoveMember drops a user from the group. Votes already cast stay on
// record but no longer count towards quorum.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID int64) error {
	if err := s.Groups.RemoveMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("user %d in group %d: %w", userID, groupID, ErrNotFound)
		}
		return fmt.Errorf("failed to remove user %d from group %d: %w", userID, groupID, err)
	}
	return nil
}

// ListMembers returns the group's members with their user records
func (s *Service) ListMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.Groups.GetMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members for group %d: %w", groupID, err)
	}
	return members, nil
}
