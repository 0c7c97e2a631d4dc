package handlers

import (
	"net/http"
	"strings"

	"laikostar/internal/service"
)

func (s *Server) GetTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Ledger.Tasks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) CompleteTask(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	taskID, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	res, err := s.Ledger.CompleteTask(r.Context(), username, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) GetTaskTransactions(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	txs, err := s.Ledger.TaskTransactions(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreateTask accepts a multipart form with an optional image.
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	if !parseUpload(w, r) {
		return
	}
	reward, err := decimalField(r, "reward")
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := service.NewTask{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Reward:      reward,
	}
	if req.Name == "" || req.Description == "" || reward.IsNegative() {
		writeMessage(w, http.StatusBadRequest, "name, description and a non-negative reward are required")
		return
	}
	if link := r.FormValue("redirectLink"); link != "" {
		req.RedirectLink = &link
	}

	image, ok := s.saveUpload(w, r, "tasks", "image", false)
	if !ok {
		return
	}
	if image != "" {
		req.Image = &image
	}
	task, err := s.Ledger.CreateTask(r.Context(), req)
	if err != nil {
		s.discardUpload(r.Context(), image)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}
