package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultAccountType = "Starter"

type User struct {
	ID                  int64           `db:"user_id" json:"id"`
	Username            string          `db:"username" json:"username"`
	Email               string          `db:"email" json:"email"`
	FullName            string          `db:"full_name" json:"fullName"`
	PasswordHash        string          `db:"password_hash" json:"-"`
	PhoneNumber         string          `db:"phone_number" json:"phoneNumber"`
	ProfilePicture      *string         `db:"profile_picture" json:"profilePicture"`
	AccountType         string          `db:"account_type" json:"accountType"`
	Plan                *string         `db:"plan" json:"plan"`
	PlanActivationDate  *time.Time      `db:"plan_activation_date" json:"planActivationDate"`
	RefPer              decimal.Decimal `db:"ref_per" json:"refPer"`
	RefParentPer        decimal.Decimal `db:"ref_parent_per" json:"refParentPer"`
	Balance             decimal.Decimal `db:"balance" json:"balance"`
	HeldBalance         decimal.Decimal `db:"held_balance" json:"heldBalance"`
	WithdrawalBalance   decimal.Decimal `db:"withdrawal_balance" json:"withdrawalBalance"`
	BonusBalance        decimal.Decimal `db:"bonus_balance" json:"bonusBalance"`
	PendingCommission   decimal.Decimal `db:"pending_commission" json:"pendingCommission"`
	TotalPoints         decimal.Decimal `db:"total_points" json:"totalPoints"`
	AdvancePoints       decimal.Decimal `db:"advance_points" json:"advancePoints"`
	DailyTaskLimit      int             `db:"daily_task_limit" json:"dailyTaskLimit"`
	TasksCompletedToday int             `db:"tasks_completed_today" json:"tasksCompletedToday"`
	LastCompletedDate   *time.Time      `db:"last_completed_date" json:"lastCompletedDate"`
	ParentID            *int64          `db:"parent_id" json:"parent"`
	ReferralCode        string          `db:"referral_code" json:"referralCode"`
	ReferrerCode        *string         `db:"referrer_code" json:"referrerCode"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updatedAt"`
}

// Available is the part of the balance not reserved by pending withdrawals.
func (u *User) Available() decimal.Decimal {
	return u.Balance.Sub(u.HeldBalance)
}

type Task struct {
	ID             int64           `db:"task_id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    string          `db:"description" json:"description"`
	Reward         decimal.Decimal `db:"reward" json:"reward"`
	Image          *string         `db:"image" json:"image"`
	CompletedCount int64           `db:"completed_count" json:"completedCount"`
	RedirectLink   *string         `db:"redirect_link" json:"redirectLink"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type TType string

const (
	Credit TType = "credit"
	Debit  TType = "debit"
)

type TaskTransaction struct {
	ID              int64           `db:"id" json:"id"`
	Username        string          `db:"username" json:"username"`
	TaskID          int64           `db:"task_id" json:"taskId"`
	TaskName        string          `db:"task_name" json:"taskName"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          Status          `db:"status" json:"status"`
	TransactionType TType           `db:"transaction_type" json:"transactionType"`
	Description     string          `db:"description" json:"description"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

type Transaction struct {
	Type        TType           `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

type PendingCommission struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"userId"`
	TaskID           int64           `db:"task_id" json:"taskId"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commissionAmount"`
	ReleaseDate      time.Time       `db:"release_date" json:"releaseDate"`
	ReleasedAt       *time.Time      `db:"released_at" json:"releasedAt"`
}

type WithdrawalRequest struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"userId"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Status        Status          `db:"status" json:"status"`
	Gateway       string          `db:"gateway" json:"gateway"`
	AccountNumber string          `db:"account_number" json:"accountNumber"`
	AccountTitle  string          `db:"account_title" json:"accountTitle"`
	Remarks       *string         `db:"remarks" json:"remarks"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// PlanTerms are the commercial terms a referral plan purchase carries over to the referred user.
type PlanTerms struct {
	PlanName      string          `db:"plan_name" json:"planName"`
	PlanPrice     decimal.Decimal `db:"plan_price" json:"planPrice"`
	AdvancePoints decimal.Decimal `db:"advance_points" json:"advancePoints"`
	DirectPoint   decimal.Decimal `db:"direct_point" json:"directPoint"`
	IndirectPoint decimal.Decimal `db:"indirect_point" json:"indirectPoint"`
	RefPer        decimal.Decimal `db:"ref_per" json:"refPer"`
	RefParentPer  decimal.Decimal `db:"ref_parent_per" json:"refParentPer"`
}

type UserPending struct {
	ID int64 `db:"id" json:"id"`
	PlanTerms
	ReferrerPin string    `db:"referrer_pin" json:"referrerPin"`
	ReferrerID  int64     `db:"referrer_id" json:"referrerId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Plan struct {
	ID             int64           `db:"plan_id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	AdvancePoints  decimal.Decimal `db:"advance_points" json:"advancePoints"`
	DirectPoint    decimal.Decimal `db:"direct_point" json:"directPoint"`
	IndirectPoint  decimal.Decimal `db:"indirect_point" json:"indirectPoint"`
	ParentPer      decimal.Decimal `db:"parent_per" json:"parent"`
	GrandParentPer decimal.Decimal `db:"grand_parent_per" json:"grandParent"`
}

type PaymentKind string

const (
	KindTrainingBonus PaymentKind = "training_bonus"
	KindReferralPlan  PaymentKind = "referral_plan"
)

// PaymentVerification is an uploaded receipt waiting for an admin decision.
// Plan terms and ReferrerPin are only set for referral plan purchases.
type PaymentVerification struct {
	ID                int64           `db:"id" json:"id"`
	Kind              PaymentKind     `db:"kind" json:"kind"`
	Username          string          `db:"username" json:"username"`
	TransactionID     string          `db:"transaction_id" json:"transactionId"`
	TransactionAmount decimal.Decimal `db:"transaction_amount" json:"transactionAmount"`
	Gateway           string          `db:"gateway" json:"gateway"`
	ReceiptPath       string          `db:"receipt_path" json:"imagePath"`
	Status            Status          `db:"status" json:"status"`
	Feedback          *string         `db:"feedback" json:"feedback"`
	AddedPoints       decimal.Decimal `db:"added_points" json:"addedPoints"`
	PlanName          *string         `db:"plan_name" json:"planName,omitempty"`
	PlanPrice         decimal.Decimal `db:"plan_price" json:"planPrice"`
	AdvancePoints     decimal.Decimal `db:"advance_points" json:"advancePoints"`
	DirectPoint       decimal.Decimal `db:"direct_point" json:"directPoint"`
	IndirectPoint     decimal.Decimal `db:"indirect_point" json:"indirectPoint"`
	RefPer            decimal.Decimal `db:"ref_per" json:"refPer"`
	RefParentPer      decimal.Decimal `db:"ref_parent_per" json:"refParentPer"`
	ReferrerPin       *string         `db:"referrer_pin" json:"referrerPin,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// Terms extracts the plan terms of a referral plan receipt.
func (p *PaymentVerification) Terms() PlanTerms {
	name := ""
	if p.PlanName != nil {
		name = *p.PlanName
	}
	return PlanTerms{
		PlanName:      name,
		PlanPrice:     p.PlanPrice,
		AdvancePoints: p.AdvancePoints,
		DirectPoint:   p.DirectPoint,
		IndirectPoint: p.IndirectPoint,
		RefPer:        p.RefPer,
		RefParentPer:  p.RefParentPer,
	}
}

type UserAccount struct {
	ID            int64     `db:"id" json:"id"`
	Username      string    `db:"username" json:"username"`
	Gateway       string    `db:"gateway" json:"gateway"`
	AccountNumber string    `db:"account_number" json:"accountNumber"`
	AccountTitle  string    `db:"account_title" json:"accountTitle"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

type NotificationType string

const (
	NotifyAlert   NotificationType = "alert"
	NotifyMessage NotificationType = "message"
)

type NotificationStatus string

const (
	Read   NotificationStatus = "read"
	Unread NotificationStatus = "unread"
)

type Notification struct {
	ID        int64              `db:"id" json:"id"`
	Username  string             `db:"username" json:"userName"`
	Message   string             `db:"message" json:"message"`
	Type      NotificationType   `db:"type" json:"type"`
	Status    NotificationStatus `db:"status" json:"status"`
	CreatedAt time.Time          `db:"created_at" json:"timestamp"`
}
