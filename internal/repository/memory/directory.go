package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
)

type userRepository struct {
	run runner
}

func (r *userRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	err := r.run(func(s *state) error {
		if user.TelegramID != nil {
			for _, u := range s.users {
				if u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
					return fmt.Errorf("failed to create user: %w", repository.ErrDuplicate)
				}
			}
		}
		s.nextUserID++
		now := time.Now()
		user.ID = s.nextUserID
		user.CreatedAt = now
		user.UpdatedAt = now
		s.users[user.ID] = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	var found *models.User
	err := r.run(func(s *state) error {
		for _, u := range s.users {
			if u.TelegramID != nil && *u.TelegramID == telegramID {
				u := u
				found = &u
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *userRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	var found *models.User
	err := r.run(func(s *state) error {
		if u, ok := s.users[id]; ok {
			found = &u
		}
		return nil
	})
	return found, err
}

func (r *userRepository) Update(_ context.Context, user *models.User) (*models.User, error) {
	err := r.run(func(s *state) error {
		existing, ok := s.users[user.ID]
		if !ok {
			return fmt.Errorf("user %d: %w", user.ID, repository.ErrNotFound)
		}
		user.TelegramID = existing.TelegramID
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = time.Now()
		s.users[user.ID] = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

type groupRepository struct {
	run runner
}

func (r *groupRepository) Create(_ context.Context, group *models.Group) (*models.Group, error) {
	err := r.run(func(s *state) error {
		if group.ChatID != nil {
			for _, g := range s.groups {
				if g.ChatID != nil && *g.ChatID == *group.ChatID {
					return fmt.Errorf("failed to create group: %w", repository.ErrDuplicate)
				}
			}
		}
		s.nextGroupID++
		now := time.Now()
		group.ID = s.nextGroupID
		group.CreatedAt = now
		group.UpdatedAt = now
		stored := *group
		stored.Members = nil
		s.groups[group.ID] = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *groupRepository) GetByChatID(_ context.Context, chatID int64) (*models.Group, error) {
	var found *models.Group
	err := r.run(func(s *state) error {
		for _, g := range s.groups {
			if g.ChatID != nil && *g.ChatID == chatID {
				g := g
				found = &g
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *groupRepository) GetByID(_ context.Context, id int64) (*models.Group, error) {
	var found *models.Group
	err := r.run(func(s *state) error {
		if g, ok := s.groups[id]; ok {
			found = &g
		}
		return nil
	})
	return found, err
}

func (r *groupRepository) Update(_ context.Context, group *models.Group) (*models.Group, error) {
	err := r.run(func(s *state) error {
		existing, ok := s.groups[group.ID]
		if !ok {
			return fmt.Errorf("group %d: %w", group.ID, repository.ErrNotFound)
		}
		existing.Name = group.Name
		existing.ChatID = group.ChatID
		existing.UpdatedAt = time.Now()
		s.groups[group.ID] = existing
		group.UpdatedAt = existing.UpdatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *groupRepository) AddMember(_ context.Context, groupID, userID int64, role models.MemberRole) error {
	return r.run(func(s *state) error {
		if _, ok := s.groups[groupID]; !ok {
			return fmt.Errorf("group %d: %w", groupID, repository.ErrNotFound)
		}
		if _, ok := s.users[userID]; !ok {
			return fmt.Errorf("user %d: %w", userID, repository.ErrNotFound)
		}
		ms, ok := s.members[groupID]
		if !ok {
			ms = make(map[int64]models.GroupMember)
			s.members[groupID] = ms
		}
		if m, ok := ms[userID]; ok {
			m.Role = role
			ms[userID] = m
			return nil
		}
		ms[userID] = models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: time.Now()}
		return nil
	})
}

func (r *groupRepository) RemoveMember(_ context.Context, groupID, userID int64) error {
	return r.run(func(s *state) error {
		if _, ok := s.members[groupID][userID]; !ok {
			return fmt.Errorf("member %d of group %d: %w", userID, groupID, repository.ErrNotFound)
		}
		delete(s.members[groupID], userID)
		return nil
	})
}

func (r *groupRepository) GetMembers(_ context.Context, groupID int64) ([]*models.GroupMember, error) {
	var members []*models.GroupMember
	err := r.run(func(s *state) error {
		for _, m := range s.members[groupID] {
			m := m
			if u, ok := s.users[m.UserID]; ok {
				m.User = &u
			}
			members = append(members, &m)
		}
		return nil
	})
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, err
}

func (r *groupRepository) GetMember(_ context.Context, groupID, userID int64) (*models.GroupMember, error) {
	var found *models.GroupMember
	err := r.run(func(s *state) error {
		if m, ok := s.members[groupID][userID]; ok {
			found = &m
		}
		return nil
	})
	return found, err
}

func (r *groupRepository) ActiveMemberIDs(_ context.Context, groupID int64) ([]int64, error) {
	var ids []int64
	err := r.run(func(s *state) error {
		for id := range s.members[groupID] {
			if u, ok := s.users[id]; ok && u.IsActive {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}
