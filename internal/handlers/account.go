package handlers

import (
	"net/http"

	"laikostar/internal/model"
	"laikostar/internal/service"
)

func (s *Server) AddAccount(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.AccountInput
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.Ledger.AddAccount(r.Context(), username, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) GetAccounts(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	accounts, err := s.Ledger.Accounts(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req service.AccountInput
	if !s.decode(w, r, &req) {
		return
	}
	account, err := s.Ledger.EditAccount(r.Context(), username, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := s.Ledger.RemoveAccount(r.Context(), username, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted")
}

func (s *Server) GetNotifications(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	notifications, err := s.Ledger.Notifications(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

type notificationStatusRequest struct {
	Status model.NotificationStatus `json:"status" validate:"required,oneof=read unread"`
}

func (s *Server) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req notificationStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.Ledger.MarkNotification(r.Context(), username, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req service.NotificationInput
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.Ledger.Notify(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) GetPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.Ledger.Plans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req service.NewPlan
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.Ledger.CreatePlan(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}
