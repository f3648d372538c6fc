package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/FundboT/internal/service"
)

// Server provides the JSON HTTP API of the fund engine.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, logger *logrus.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withLogging(s.mux))
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// API – Funds
	s.mux.HandleFunc("POST /api/funds/{groupId}/deposit", s.handleDeposit)
	s.mux.HandleFunc("POST /api/funds/{fundId}/withdraw/request", s.handleRequestWithdrawal)
	s.mux.HandleFunc("POST /api/funds/{fundId}/withdraw/admin", s.handleAdminWithdraw)
	s.mux.HandleFunc("GET /api/funds/{fundId}/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/funds/{fundId}/transactions", s.handleListTransactions)
	s.mux.HandleFunc("GET /api/funds/{fundId}/pending-requests", s.handleListPending)

	// API – Transactions
	s.mux.HandleFunc("GET /api/transactions/{transactionId}", s.handleGetTransaction)
	s.mux.HandleFunc("POST /api/transactions/{transactionId}/votes", s.handleVote)
	s.mux.HandleFunc("POST /api/transactions/{transactionId}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/transactions/{transactionId}/reject", s.handleReject)
	s.mux.HandleFunc("POST /api/transactions/{transactionId}/cancel", s.handleCancel)

	// API – Groups & users
	s.mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	s.mux.HandleFunc("GET /api/groups/{groupId}/members", s.handleListMembers)
	s.mux.HandleFunc("POST /api/groups/{groupId}/members", s.handleAddMember)
	s.mux.HandleFunc("DELETE /api/groups/{groupId}/members/{userId}", s.handleRemoveMember)
	s.mux.HandleFunc("POST /api/groups/{groupId}/fund", s.handleCreateFund)
	s.mux.HandleFunc("GET /api/groups/{groupId}/fund", s.handleGetGroupFund)
	s.mux.HandleFunc("POST /api/users", s.handleCreateUser)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service failure taxonomy onto HTTP statuses.
// Unexpected errors are logged and hidden behind a generic message.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Errorf("failed to %s", action)
		s.respondError(w, status, "failed to "+action)
		return
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotAMember), errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrDuplicateVote):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrMembershipUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// pathID extracts a named path value and converts it to int64.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s in path", name)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// requirePathID writes a 400 response and returns ok == false when the path
// value is absent or not an integer.
func (s *Server) requirePathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := pathID(r, name)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
