package handlers

import (
	"net/http"

	"laikostar/internal/service"
)

func (s *Server) WithdrawBalance(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.WithdrawalRequest
	if !s.decode(w, r, &req) {
		return
	}
	withdrawal, err := s.Ledger.RequestWithdrawal(r.Context(), username, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   "Withdrawal request submitted successfully",
		"requestId": withdrawal.ID,
	})
}

func (s *Server) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	withdrawals, err := s.Ledger.Withdrawals(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

func (s *Server) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req remarksRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	withdrawal, err := s.Ledger.ApproveWithdrawal(r.Context(), id, req.Remarks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

func (s *Server) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req remarksRequest
	if !s.decode(w, r, &req) {
		return
	}
	withdrawal, err := s.Ledger.RejectWithdrawal(r.Context(), id, req.Remarks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) SetWithdrawals(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Ledger.SetWithdrawalsEnabled(r.Context(), *req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"withdrawalsEnabled": *req.Enabled})
}

func (s *Server) GetWithdrawalsSetting(w http.ResponseWriter, r *http.Request) {
	on, err := s.Ledger.WithdrawalsEnabled(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"withdrawalsEnabled": on})
}
