package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"laikostar/internal/logging"
	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/shopspring/decimal"
)

const maxPinAttempts = 20

var maxPercent = decimal.NewFromInt(100)

type PaymentUpload struct {
	Kind              model.PaymentKind `validate:"required,oneof=training_bonus referral_plan"`
	TransactionID     string            `validate:"required"`
	TransactionAmount decimal.Decimal
	Gateway           string            `validate:"required"`
	ReceiptPath       string            `validate:"required"`
	// PlanName selects the catalogue plan for referral plan receipts.
	PlanName string
}

// SubmitPayment records an uploaded receipt. Referral plan receipts take their
// terms from the plans catalogue and get a fresh referrer pin that the
// referred person signs up with once approved.
func (l *Ledger) SubmitPayment(ctx context.Context, username string, req PaymentUpload) (*model.PaymentVerification, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !req.TransactionAmount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction amount must be positive", ErrValidation)
	}

	p := &model.PaymentVerification{
		Kind:              req.Kind,
		Username:          username,
		TransactionID:     req.TransactionID,
		TransactionAmount: req.TransactionAmount,
		Gateway:           req.Gateway,
		ReceiptPath:       req.ReceiptPath,
	}
	if req.Kind == model.KindReferralPlan {
		terms, err := l.planTerms(ctx, req.PlanName)
		if err != nil {
			return nil, err
		}
		pin, err := l.freePin(ctx)
		if err != nil {
			return nil, err
		}
		p.PlanName = &terms.PlanName
		p.PlanPrice = terms.PlanPrice
		p.AdvancePoints = terms.AdvancePoints
		p.DirectPoint = terms.DirectPoint
		p.IndirectPoint = terms.IndirectPoint
		p.RefPer = terms.RefPer
		p.RefParentPer = terms.RefParentPer
		p.ReferrerPin = &pin
	}

	if err := l.store.CreatePayment(ctx, p); err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// planTerms resolves a catalogue plan into the terms carried by the receipt.
func (l *Ledger) planTerms(ctx context.Context, name string) (model.PlanTerms, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.PlanTerms{}, fmt.Errorf("%w: plan name is required", ErrValidation)
	}
	plan, err := l.store.GetPlanByName(ctx, name)
	if errors.Is(err, store.ErrPlanNotFound) {
		return model.PlanTerms{}, fmt.Errorf("%w: unknown plan %q", ErrValidation, name)
	}
	if err != nil {
		return model.PlanTerms{}, err
	}
	if !validPercent(plan.ParentPer) || !validPercent(plan.GrandParentPer) {
		return model.PlanTerms{}, fmt.Errorf("%w: plan %q has commission percentages outside 0..100", ErrValidation, name)
	}
	return model.PlanTerms{
		PlanName:      plan.Name,
		PlanPrice:     plan.Price,
		AdvancePoints: plan.AdvancePoints,
		DirectPoint:   plan.DirectPoint,
		IndirectPoint: plan.IndirectPoint,
		RefPer:        plan.ParentPer,
		RefParentPer:  plan.GrandParentPer,
	}, nil
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(maxPercent)
}

func (l *Ledger) freePin(ctx context.Context) (string, error) {
	for i := 0; i < maxPinAttempts; i++ {
		pin, err := newPin()
		if err != nil {
			return "", err
		}
		used, err := l.store.PinInUse(ctx, pin)
		if err != nil {
			return "", err
		}
		if !used {
			return pin, nil
		}
	}
	return "", fmt.Errorf("no free referrer pin after %d attempts", maxPinAttempts)
}

func (l *Ledger) Payments(ctx context.Context, username string, kind model.PaymentKind) ([]model.PaymentVerification, error) {
	return l.store.GetPayments(ctx, username, kind)
}

type PaymentApproval struct {
	Payment *model.PaymentVerification `json:"payment,omitempty"`
	Pending *model.UserPending         `json:"pending,omitempty"`
}

// ApprovePayment settles a receipt according to its kind. Points only apply
// to training bonus receipts.
func (l *Ledger) ApprovePayment(ctx context.Context, id int64, points decimal.Decimal) (*PaymentApproval, error) {
	p, err := l.store.GetPayment(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	switch p.Kind {
	case model.KindTrainingBonus:
		approved, err := l.ApproveTrainingBonus(ctx, id, points)
		if err != nil {
			return nil, err
		}
		return &PaymentApproval{Payment: approved}, nil
	case model.KindReferralPlan:
		pending, err := l.ApproveReferralPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		return &PaymentApproval{Pending: pending}, nil
	}
	return nil, fmt.Errorf("unknown payment kind %q", p.Kind)
}

// ApproveTrainingBonus credits points to the uploader's bonus balance.
func (l *Ledger) ApproveTrainingBonus(ctx context.Context, id int64, points decimal.Decimal) (*model.PaymentVerification, error) {
	if !points.IsPositive() {
		return nil, fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	p, err := l.store.ApproveTrainingBonus(ctx, id, points)
	if err != nil {
		return nil, translate(err)
	}
	l.notifyUser(ctx, p.Username, model.NotifyMessage,
		fmt.Sprintf("Your training bonus payment %s was approved, %s points added.", p.TransactionID, points.StringFixed(2)))
	return p, nil
}

// ApproveReferralPlan turns the receipt's pin into a redeemable pending activation.
func (l *Ledger) ApproveReferralPlan(ctx context.Context, id int64) (*model.UserPending, error) {
	pending, err := l.store.ApproveReferralPlan(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	logging.Logg.Info("Referral plan approved", "payment", id, "referrer", pending.ReferrerID)
	l.notify(ctx, pending.ReferrerID, model.NotifyMessage,
		fmt.Sprintf("Your %s plan payment was approved. Referrer pin: %s", pending.PlanName, pending.ReferrerPin))
	return pending, nil
}

func (l *Ledger) RejectPayment(ctx context.Context, id int64, feedback string) (*model.PaymentVerification, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, fmt.Errorf("%w: feedback is required", ErrValidation)
	}
	p, err := l.store.RejectPayment(ctx, id, feedback)
	if err != nil {
		return nil, translate(err)
	}
	l.notifyUser(ctx, p.Username, model.NotifyAlert,
		fmt.Sprintf("Your payment %s was rejected: %s", p.TransactionID, feedback))
	return p, nil
}
