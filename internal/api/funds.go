package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Kerhoff/FundboT/internal/models"
	"github.com/Kerhoff/FundboT/internal/repository"
	"github.com/Kerhoff/FundboT/internal/service"
)

// ---------------------------------------------------------------------------
// Funds
// ---------------------------------------------------------------------------

type moneyRequest struct {
	UserID  int64           `json:"user_id"`
	AdminID int64           `json:"admin_id"`
	Amount  decimal.Decimal `json:"amount"`
	Purpose string          `json:"purpose"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.requirePathID(w, r, "groupId")
	if !ok {
		return
	}

	var req moneyRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	txn, err := s.svc.Deposit(r.Context(), groupID, req.UserID, req.Amount, req.Purpose)
	if err != nil {
		s.respondServiceError(w, r, err, "deposit")
		return
	}

	s.respondJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	fundID, ok := s.requirePathID(w, r, "fundId")
	if !ok {
		return
	}

	var req moneyRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	txn, err := s.svc.RequestWithdrawal(r.Context(), fundID, req.UserID, req.Amount, req.Purpose)
	if err != nil {
		s.respondServiceError(w, r, err, "request withdrawal")
		return
	}

	s.respondJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleAdminWithdraw(w http.ResponseWriter, r *http.Request) {
	fundID, ok := s.requirePathID(w, r, "fundId")
	if !ok {
		return
	}

	var req moneyRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.AdminID == 0 {
		s.respondError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	txn, err := s.svc.AdminWithdraw(r.Context(), fundID, req.AdminID, req.Amount, req.Purpose)
	if err != nil {
		s.respondServiceError(w, r, err, "withdraw")
		return
	}

	s.respondJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	fundID, ok := s.requirePathID(w, r, "fundId")
	if !ok {
		return
	}

	summary, err := s.svc.Summary(r.Context(), fundID)
	if err != nil {
		s.respondServiceError(w, r, err, "get fund summary")
		return
	}

	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	fundID, ok := s.requirePathID(w, r, "fundId")
	if !ok {
		return
	}

	q := r.URL.Query()
	var filters repository.TransactionFilters

	if status := q.Get("status"); status != "" {
		st := models.TransactionStatus(status)
		switch st {
		case models.TransactionStatusPending, models.TransactionStatusCompleted,
			models.TransactionStatusRejected, models.TransactionStatusCancelled:
		default:
			s.respondError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(status))
			return
		}
		filters.Status = &st
	}
	if typ := q.Get("type"); typ != "" {
		tt := models.TransactionType(typ)
		if tt != models.TransactionTypeDeposit && tt != models.TransactionTypeWithdraw {
			s.respondError(w, http.StatusBadRequest, "unknown type "+strconv.Quote(typ))
			return
		}
		filters.Type = &tt
	}
	if limit := q.Get("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filters.Limit = v
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			filters.Offset = v
		}
	}

	txns, err := s.svc.ListTransactions(r.Context(), fundID, filters)
	if err != nil {
		s.respondServiceError(w, r, err, "list transactions")
		return
	}
	if txns == nil {
		txns = []*models.FundTransaction{}
	}

	s.respondJSON(w, http.StatusOK, txns)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	fundID, ok := s.requirePathID(w, r, "fundId")
	if !ok {
		return
	}

	txns, err := s.svc.ListPending(r.Context(), fundID)
	if err != nil {
		s.respondServiceError(w, r, err, "list pending requests")
		return
	}
	if txns == nil {
		txns = []*models.FundTransaction{}
	}

	s.respondJSON(w, http.StatusOK, txns)
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

type voteRequest struct {
	UserID  int64  `json:"user_id"`
	Approve *bool  `json:"approve"`
	Note    string `json:"note"`
}

type overrideRequest struct {
	AdminID int64  `json:"admin_id"`
	Note    string `json:"note"`
}

type cancelRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requirePathID(w, r, "transactionId")
	if !ok {
		return
	}

	txn, err := s.svc.GetTransaction(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "get transaction")
		return
	}

	s.respondJSON(w, http.StatusOK, txn)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requirePathID(w, r, "transactionId")
	if !ok {
		return
	}

	var req voteRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Approve == nil {
		s.respondError(w, http.StatusBadRequest, "approve is required")
		return
	}

	txn, err := s.svc.SubmitVote(r.Context(), id, req.UserID, *req.Approve, req.Note)
	if err != nil {
		s.respondServiceError(w, r, err, "record vote")
		return
	}

	s.respondJSON(w, http.StatusOK, txn)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleOverride(w, r, s.svc.ApproveWithdrawal, "approve withdrawal")
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleOverride(w, r, s.svc.RejectWithdrawal, "reject withdrawal")
}

type overrideFunc func(ctx context.Context, transactionID, adminID int64, note string) (*models.FundTransaction, error)

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request, fn overrideFunc, action string) {
	id, ok := s.requirePathID(w, r, "transactionId")
	if !ok {
		return
	}

	var req overrideRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.AdminID == 0 {
		s.respondError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	txn, err := fn(r.Context(), id, req.AdminID, req.Note)
	if err != nil {
		// An approve the fund can no longer cover still resolved the request.
		if txn != nil && errors.Is(err, service.ErrInsufficientFunds) {
			s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":       err.Error(),
				"transaction": txn,
			})
			return
		}
		s.respondServiceError(w, r, err, action)
		return
	}

	s.respondJSON(w, http.StatusOK, txn)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requirePathID(w, r, "transactionId")
	if !ok {
		return
	}

	var req cancelRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.UserID == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	txn, err := s.svc.CancelWithdrawal(r.Context(), id, req.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "cancel withdrawal")
		return
	}

	s.respondJSON(w, http.StatusOK, txn)
}
