package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"splitledger/internal/auth"
	"splitledger/internal/core"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	expenses, err := s.ledger.ListExpenses(r.Context(), groupID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	respondJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}

	var e core.Expense
	if err := decodeJSON(r, &e); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	e.GroupID = groupID
	e.CreatedID = actor

	id, err := s.ledger.CreateExpense(r.Context(), e)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	created, err := s.ledger.GetExpense(r.Context(), groupID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}
	expenseID, ok := expenseFromPath(w, r)
	if !ok {
		return
	}

	e, err := s.ledger.GetExpense(r.Context(), groupID, expenseID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}
	expenseID, ok := expenseFromPath(w, r)
	if !ok {
		return
	}

	var e core.Expense
	if err := decodeJSON(r, &e); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	e.ID = expenseID
	e.GroupID = groupID
	e.UpdatedID = actor

	if err := s.ledger.UpdateExpense(r.Context(), e); err != nil {
		respondServiceError(w, err)
		return
	}

	updated, err := s.ledger.GetExpense(r.Context(), groupID, expenseID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}
	expenseID, ok := expenseFromPath(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteExpense(r.Context(), groupID, expenseID, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleFormattedExpenses(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	buckets, err := s.ledger.FormattedExpenses(r.Context(), groupID, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if buckets == nil {
		buckets = []core.MonthBucket{}
	}
	respondJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	summaries, err := s.ledger.BalanceSummaries(r.Context(), groupID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

type settleUpRequest struct {
	OtherUserID core.UserID     `json:"other_user_id"`
	CurrencyID  core.CurrencyID `json:"currency_id"`
}

func (s *Server) handleSettleUp(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}

	var req settleUpRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.OtherUserID == "" || req.CurrencyID == 0 {
		respondError(w, http.StatusUnprocessableEntity, "other_user_id and currency_id are required")
		return
	}

	payment, err := s.ledger.SettleUp(r.Context(), groupID, actor, req.OtherUserID, req.CurrencyID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, payment)
}

func expenseFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil || expenseID < 1 {
		respondError(w, http.StatusBadRequest, "invalid expense id")
		return 0, false
	}
	return expenseID, true
}
