package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"laikostar/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound = errors.New("payment verification not found")
	// ErrMissingPin marks a referral plan receipt stored without its pin.
	ErrMissingPin = errors.New("referral plan receipt has no referrer pin")
)

const paymentColumns = `id, kind, username, transaction_id, transaction_amount, gateway, receipt_path, status,
	feedback, added_points, plan_name, plan_price, advance_points, direct_point, indirect_point,
	ref_per, ref_parent_per, referrer_pin, created_at, updated_at`

func (r *Database) CreatePayment(ctx context.Context, p *model.PaymentVerification) error {
	p.Status = model.StatusPending
	query, args, err := r.DB.BindNamed(`
		INSERT INTO payment_verifications (kind, username, transaction_id, transaction_amount, gateway,
			receipt_path, status, plan_name, plan_price, advance_points, direct_point, indirect_point,
			ref_per, ref_parent_per, referrer_pin)
		VALUES (:kind, :username, :transaction_id, :transaction_amount, :gateway,
			:receipt_path, :status, :plan_name, :plan_price, :advance_points, :direct_point, :indirect_point,
			:ref_per, :ref_parent_per, :referrer_pin)
		RETURNING id, created_at, updated_at`, p)
	if err != nil {
		return err
	}
	err = r.DB.QueryRowxContext(ctx, query, args...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Database) GetPayments(ctx context.Context, username string, kind model.PaymentKind) ([]model.PaymentVerification, error) {
	payments := []model.PaymentVerification{}
	err := r.DB.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+` FROM payment_verifications
		WHERE username = $1 AND kind = $2 ORDER BY created_at DESC`, username, kind)
	return payments, err
}

func (r *Database) GetPayment(ctx context.Context, id int64) (*model.PaymentVerification, error) {
	var p model.PaymentVerification
	err := r.DB.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payment_verifications WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// PinInUse reports whether a referrer pin was ever issued.
func (r *Database) PinInUse(ctx context.Context, pin string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM payment_verifications WHERE referrer_pin = $1)
			OR EXISTS(SELECT 1 FROM user_pending WHERE referrer_pin = $1)`, pin).Scan(&exists)
	return exists, err
}

func settlePayment(ctx context.Context, tx *sqlx.Tx, id int64, status model.Status, feedback *string, points decimal.Decimal) (*model.PaymentVerification, error) {
	var p model.PaymentVerification
	err := tx.GetContext(ctx, &p, `
		UPDATE payment_verifications SET status = $1, feedback = $2, added_points = $3, updated_at = now()
		WHERE id = $4 AND status = 'pending'
		RETURNING `+paymentColumns, status, feedback, points, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unsettled(ctx, tx, "payment_verifications", id, ErrPaymentNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// ApproveTrainingBonus marks the receipt approved and credits the points to the uploader.
func (r *Database) ApproveTrainingBonus(ctx context.Context, id int64, points decimal.Decimal) (*model.PaymentVerification, error) {
	var p *model.PaymentVerification
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if p, err = settlePayment(ctx, tx, id, model.StatusApproved, nil, points); err != nil {
			return err
		}
		user, err := r.getUser(ctx, tx, "username = $1", p.Username)
		if err != nil {
			return err
		}
		return r.creditBonus(ctx, tx, user.ID, points, "Training bonus "+p.TransactionID)
	})
	return p, err
}

// ApproveReferralPlan marks the receipt approved and issues the user_pending
// row the referred person signs up with.
func (r *Database) ApproveReferralPlan(ctx context.Context, id int64) (*model.UserPending, error) {
	var pending model.UserPending
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		p, err := settlePayment(ctx, tx, id, model.StatusApproved, nil, decimal.Zero)
		if err != nil {
			return err
		}
		if p.ReferrerPin == nil {
			return fmt.Errorf("payment %d: %w", id, ErrMissingPin)
		}
		referrer, err := r.getUser(ctx, tx, "username = $1", p.Username)
		if err != nil {
			return err
		}

		pending.PlanTerms = p.Terms()
		pending.ReferrerPin = *p.ReferrerPin
		pending.ReferrerID = referrer.ID
		query, args, err := tx.BindNamed(`
			INSERT INTO user_pending (plan_name, plan_price, advance_points, direct_point, indirect_point,
				ref_per, ref_parent_per, referrer_pin, referrer_id)
			VALUES (:plan_name, :plan_price, :advance_points, :direct_point, :indirect_point,
				:ref_per, :ref_parent_per, :referrer_pin, :referrer_id)
			RETURNING id, created_at`, &pending)
		if err != nil {
			return err
		}
		return tx.QueryRowxContext(ctx, query, args...).Scan(&pending.ID, &pending.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *Database) RejectPayment(ctx context.Context, id int64, feedback string) (*model.PaymentVerification, error) {
	var p *model.PaymentVerification
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = settlePayment(ctx, tx, id, model.StatusRejected, &feedback, decimal.Zero)
		return err
	})
	return p, err
}
