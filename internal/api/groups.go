package api

import (
	"net/http"

	"github.com/Kerhoff/FundboT/internal/models"
)

// ---------------------------------------------------------------------------
// Groups & users
// ---------------------------------------------------------------------------

type createGroupRequest struct {
	Name   string `json:"name"`
	ChatID *int64 `json:"chat_id"`
}

type addMemberRequest struct {
	UserID int64             `json:"user_id"`
	Role   models.MemberRole `json:"role"`
}

type createUserRequest struct {
	TelegramID       *int64 `json:"telegram_id"`
	TelegramUsername string `json:"telegram_username"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	group, err := s.svc.CreateGroup(r.Context(), req.Name, req.ChatID)
	if err != nil {
		s.respondServiceError(w, r, err, "create group")
		return
	}

	s.respondJSON(w, http.StatusCreated, group)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}

	members, err := s.svc.ListMembers(r.Context(), groupID)
	if err != nil {
		s.respondServiceError(w, r, err, "list members")
		return
	}
	if members == nil {
		members = []*models.GroupMember{}
	}

	s.respondJSON(w, http.StatusOK, members)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}

	var req addMemberRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.svc.AddMember(r.Context(), groupID, req.UserID, req.Role); err != nil {
		s.respondServiceError(w, r, err, "add member")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}
	userID, ok := s.requirePathID(w, r, "userId")
	if !ok {
		return
	}

	if err := s.svc.RemoveMember(r.Context(), groupID, userID); err != nil {
		s.respondServiceError(w, r, err, "remove member")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateFund(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}

	fund, err := s.svc.CreateFund(r.Context(), groupID)
	if err != nil {
		s.respondServiceError(w, r, err, "create fund")
		return
	}

	s.respondJSON(w, http.StatusCreated, fund)
}

func (s *Server) handleGetGroupFund(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}

	fund, err := s.svc.GetFundByGroup(r.Context(), groupID)
	if err != nil {
		s.respondServiceError(w, r, err, "get fund")
		return
	}

	s.respondJSON(w, http.StatusOK, fund)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.FirstName == "" && req.TelegramUsername == "" {
		s.respondError(w, http.StatusBadRequest, "first_name or telegram_username is required")
		return
	}

	user, err := s.svc.CreateUser(r.Context(), &models.User{
		TelegramID:       req.TelegramID,
		TelegramUsername: req.TelegramUsername,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "create user")
		return
	}

	s.respondJSON(w, http.StatusCreated, user)
}
