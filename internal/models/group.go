package models

import "time"

// MemberRole is a member's role inside a group
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Group represents a co-ownership group. A group may be bound to a Telegram
// group chat, in which case fund notifications are posted there.
type Group struct {
	ID        int64         `json:"id" db:"id"`
	ChatID    *int64        `json:"chat_id,omitempty" db:"chat_id"`
	Name      string        `json:"name" db:"name"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
	Members   []GroupMember `json:"members,omitempty"`
}

// GroupMember represents the join table between groups and users
type GroupMember struct {
	GroupID  int64      `json:"group_id" db:"group_id"`
	UserID   int64      `json:"user_id" db:"user_id"`
	Role     MemberRole `json:"role" db:"role"`
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
	User     *User      `json:"user,omitempty"`
}

// IsAdmin reports whether the member may override fund decisions
func (m *GroupMember) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}
