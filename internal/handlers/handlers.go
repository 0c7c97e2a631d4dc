package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"laikostar/internal/logging"
	"laikostar/internal/middleware"
	"laikostar/internal/model"
	"laikostar/internal/receipts"
	"laikostar/internal/service"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Ledger is the part of *service.Ledger the HTTP layer calls.
type Ledger interface {
	Register(ctx context.Context, req service.Registration) (*service.Credentials, error)
	Login(ctx context.Context, login, password string) (string, error)
	Authenticate(token string) (string, error)
	ChangePassword(ctx context.Context, username string, req service.PasswordChange) error

	Profile(ctx context.Context, username string) (*model.User, error)
	UpdateProfile(ctx context.Context, username string, req service.ProfileEdit) (*model.User, error)
	SetProfilePicture(ctx context.Context, username, key string) (*model.User, error)
	Parent(ctx context.Context, username string) (*model.User, error)
	Transactions(ctx context.Context, username string) ([]model.Transaction, error)
	CountReferrals(ctx context.Context, username string) (*service.ReferralCounts, error)

	Tasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, req service.NewTask) (*model.Task, error)
	CompleteTask(ctx context.Context, username string, taskID int64) (*service.Completion, error)
	TaskTransactions(ctx context.Context, username string) ([]model.TaskTransaction, error)

	RequestWithdrawal(ctx context.Context, username string, req service.WithdrawalRequest) (*model.WithdrawalRequest, error)
	Withdrawals(ctx context.Context, username string) ([]model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error)
	SetWithdrawalsEnabled(ctx context.Context, on bool) error
	WithdrawalsEnabled(ctx context.Context) (bool, error)

	SubmitPayment(ctx context.Context, username string, req service.PaymentUpload) (*model.PaymentVerification, error)
	Payments(ctx context.Context, username string, kind model.PaymentKind) ([]model.PaymentVerification, error)
	ApprovePayment(ctx context.Context, id int64, points decimal.Decimal) (*service.PaymentApproval, error)
	RejectPayment(ctx context.Context, id int64, feedback string) (*model.PaymentVerification, error)

	AddAccount(ctx context.Context, username string, req service.AccountInput) (*model.UserAccount, error)
	Accounts(ctx context.Context, username string) ([]model.UserAccount, error)
	EditAccount(ctx context.Context, username string, id int64, req service.AccountInput) (*model.UserAccount, error)
	RemoveAccount(ctx context.Context, username string, id int64) error

	Notifications(ctx context.Context, username string) ([]model.Notification, error)
	MarkNotification(ctx context.Context, username string, id int64, status model.NotificationStatus) (*model.Notification, error)
	Notify(ctx context.Context, req service.NotificationInput) (*model.Notification, error)

	Plans(ctx context.Context) ([]model.Plan, error)
	CreatePlan(ctx context.Context, req service.NewPlan) (*model.Plan, error)
}

type Server struct {
	Ledger   Ledger
	Receipts receipts.Saver
	// Ping reports database health for /healthz.
	Ping     func(ctx context.Context) error
	validate *validator.Validate
}

func NewServer(ledger Ledger, saver receipts.Saver, ping func(ctx context.Context) error) *Server {
	return &Server{
		Ledger:   ledger,
		Receipts: saver,
		Ping:     ping,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logg.Error("Failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": status < 400, "message": message})
}

// statusOf maps the service taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidReferralCode),
		errors.Is(err, receipts.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrWithdrawalsDisabled),
		errors.Is(err, service.ErrWithdrawalWindowClosed):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateIdentity),
		errors.Is(err, service.ErrAlreadySettled),
		errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, receipts.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrLimitExceeded):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logging.Logg.Error("Request failed", "path", r.URL.Path, "error", err)
		writeMessage(w, status, "Internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Bad request format")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, err := middleware.ExtractUserFromContext(r)
	if err != nil {
		http.Error(w, "User not found in context", http.StatusUnauthorized)
		return "", false
	}
	return username, true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// decimalField parses an optional decimal form value; empty means zero.
func decimalField(r *http.Request, name string) (decimal.Decimal, error) {
	v := r.FormValue(name)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s", service.ErrValidation, name)
	}
	return d, nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		if err := s.Ping(r.Context()); err != nil {
			logging.Logg.Error("Health check failed", "error", err)
			writeMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ok")
}
