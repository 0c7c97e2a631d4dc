package service

import (
	"context"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Store is the persistence the ledger works against. *store.Database implements it.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetPendingByPin(ctx context.Context, pin string) (*model.UserPending, error)
	CreateUser(ctx context.Context, user *model.User, pin string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateProfile(ctx context.Context, username string, p store.ProfileUpdate) (*model.User, error)
	ReferralLevels(ctx context.Context, userID int64, depth int) ([]int, error)
	Upline(ctx context.Context, userID int64, depth int) ([]model.User, error)
	GetTransactionHistory(ctx context.Context, userID int64) ([]model.Transaction, error)

	GetTasks(ctx context.Context) ([]model.Task, error)
	GetTaskByID(ctx context.Context, id int64) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	CompleteTask(ctx context.Context, c store.Completion) (*store.CompletionResult, error)
	GetTaskTransactions(ctx context.Context, username string) ([]model.TaskTransaction, error)

	CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
	GetWithdrawals(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id int64, remarks *string) (*model.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id int64, remarks string) (*model.WithdrawalRequest, error)

	GetFlag(ctx context.Context, key string, def bool) (bool, error)
	SetFlag(ctx context.Context, key string, on bool) error

	DueCommissions(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ReleaseCommission(ctx context.Context, id int64, now time.Time) (bool, error)

	CreatePayment(ctx context.Context, p *model.PaymentVerification) error
	GetPayments(ctx context.Context, username string, kind model.PaymentKind) ([]model.PaymentVerification, error)
	GetPayment(ctx context.Context, id int64) (*model.PaymentVerification, error)
	PinInUse(ctx context.Context, pin string) (bool, error)
	ApproveTrainingBonus(ctx context.Context, id int64, points decimal.Decimal) (*model.PaymentVerification, error)
	ApproveReferralPlan(ctx context.Context, id int64) (*model.UserPending, error)
	RejectPayment(ctx context.Context, id int64, feedback string) (*model.PaymentVerification, error)

	CreateAccount(ctx context.Context, a *model.UserAccount) error
	GetAccounts(ctx context.Context, username string) ([]model.UserAccount, error)
	UpdateAccount(ctx context.Context, a *model.UserAccount) error
	DeleteAccount(ctx context.Context, username string, id int64) error

	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotifications(ctx context.Context, username string) ([]model.Notification, error)
	SetNotificationStatus(ctx context.Context, username string, id int64, status model.NotificationStatus) (*model.Notification, error)

	GetPlans(ctx context.Context) ([]model.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*model.Plan, error)
	CreatePlan(ctx context.Context, p *model.Plan) error
}

// Notifier delivers the signup credentials. Implementations must not block on delivery.
type Notifier interface {
	SendCredentials(to, fullName, username, password string) error
}

// Policy holds the tunable business rules.
type Policy struct {
	CreditMode      string
	CommissionHold  time.Duration
	ReferralDepth   int
	DailyTaskLimit  int
	Location        *time.Location
	WithdrawEnabled bool
	WithdrawDays    []time.Weekday
	WithdrawFrom    int
	WithdrawTo      int
	TokenSecret     string
	TokenTTL        time.Duration
}

func NewPolicy(cfg *config.Config) (Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	days, err := cfg.WithdrawWeekdays()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		CreditMode:      cfg.CreditMode,
		CommissionHold:  cfg.CommissionHold,
		ReferralDepth:   cfg.ReferralDepth,
		DailyTaskLimit:  cfg.DailyTaskLimit,
		Location:        loc,
		WithdrawEnabled: cfg.WithdrawEnabled,
		WithdrawDays:    days,
		WithdrawFrom:    cfg.WithdrawFrom,
		WithdrawTo:      cfg.WithdrawTo,
		TokenSecret:     cfg.SecretKey,
		TokenTTL:        TokenExp,
	}, nil
}

// WindowOpen reports whether withdrawals are accepted at t.
func (p Policy) WindowOpen(t time.Time) bool {
	t = t.In(p.Location)
	if len(p.WithdrawDays) > 0 {
		allowed := false
		for _, d := range p.WithdrawDays {
			if t.Weekday() == d {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return t.Hour() >= p.WithdrawFrom && t.Hour() < p.WithdrawTo
}

type Ledger struct {
	store    Store
	notifier Notifier
	policy   Policy
	validate *validator.Validate
	locks    *KeyedMutex
	now      func() time.Time
}

func New(s Store, n Notifier, p Policy) *Ledger {
	if p.Location == nil {
		p.Location = time.Local
	}
	if p.ReferralDepth < 2 {
		p.ReferralDepth = 2
	}
	if p.TokenTTL == 0 {
		p.TokenTTL = TokenExp
	}
	return &Ledger{
		store:    s,
		notifier: n,
		policy:   p,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    NewKeyedMutex(),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) user(ctx context.Context, username string) (*model.User, error) {
	user, err := l.store.GetUserByUsername(ctx, username)
	return user, translate(err)
}
