package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"laikostar/internal/logging"
	"laikostar/internal/receipts"
	"laikostar/internal/service"
)

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.Registration
	if !s.decode(w, r, &req) {
		return
	}
	creds, err := s.Ledger.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":  true,
		"message":  "User registered successfully! Your credentials have been sent to your email.",
		"username": creds.Username,
		"password": creds.Password,
	}
	if creds.NotificationErr != nil {
		resp["message"] = "User registered successfully, but the credentials email could not be sent."
		resp["warning"] = creds.NotificationErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.Ledger.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Authorization", fmt.Sprintf("Bearer %s", token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Authentication successful",
		"token":   token,
	})
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := s.Ledger.Profile(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.ProfileEdit
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.Ledger.UpdateProfile(r.Context(), username, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	key, ok := s.saveUpload(w, r, "profile", "profilePicture", true)
	if !ok {
		return
	}
	user, err := s.Ledger.SetProfilePicture(r.Context(), username, key)
	if err != nil {
		s.discardUpload(r.Context(), key)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) GetParent(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	parent, err := s.Ledger.Parent(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"fullName": parent.FullName,
		"username": parent.Username,
	})
}

func (s *Server) GetTransactions(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	history, err := s.Ledger.Transactions(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) GetReferrals(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	counts, err := s.Ledger.CountReferrals(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.PasswordChange
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Ledger.ChangePassword(r.Context(), username, req); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

// maxFormOverhead leaves room for the text fields sent alongside the file.
const maxFormOverhead = 1 << 20

// parseUpload bounds the request body and parses the multipart form once.
func parseUpload(w http.ResponseWriter, r *http.Request) bool {
	if r.MultipartForm != nil {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, receipts.MaxUploadSize+maxFormOverhead)
	if err := r.ParseMultipartForm(receipts.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, receipts.ErrTooLarge)
			return false
		}
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return false
	}
	return true
}

// saveUpload stores the multipart file in field under folder. When required is
// false a missing file yields an empty key.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, folder, field string, required bool) (string, bool) {
	if !parseUpload(w, r) {
		return "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return "", true
		}
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return "", false
	}
	defer file.Close()
	if header.Size > receipts.MaxUploadSize {
		writeError(w, r, receipts.ErrTooLarge)
		return "", false
	}

	key, err := s.Receipts.Save(r.Context(), folder, header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	logging.Logg.Debug("File stored", "key", key, "size", header.Size)
	return key, true
}

// discardUpload removes a stored file after the request that carried it failed.
func (s *Server) discardUpload(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Receipts.Remove(ctx, key); err != nil {
		logging.Logg.Warn("Failed to remove orphaned upload", "key", key, "error", err)
	}
}
