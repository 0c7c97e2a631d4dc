package store

import (
	"context"
	"database/sql"
	"errors"

	"laikostar/internal/model"
)

func (r *Database) GetPlans(ctx context.Context) ([]model.Plan, error) {
	plans := []model.Plan{}
	err := r.DB.SelectContext(ctx, &plans, `
		SELECT plan_id, name, price, advance_points, direct_point, indirect_point, parent_per, grand_parent_per
		FROM plans ORDER BY price`)
	return plans, err
}

var ErrPlanNotFound = errors.New("plan not found")

func (r *Database) GetPlanByName(ctx context.Context, name string) (*model.Plan, error) {
	var p model.Plan
	err := r.DB.GetContext(ctx, &p, `
		SELECT plan_id, name, price, advance_points, direct_point, indirect_point, parent_per, grand_parent_per
		FROM plans WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Database) CreatePlan(ctx context.Context, p *model.Plan) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO plans (name, price, advance_points, direct_point, indirect_point, parent_per, grand_parent_per)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING plan_id`,
		p.Name, p.Price, p.AdvancePoints, p.DirectPoint, p.IndirectPoint, p.ParentPer, p.GrandParentPer).Scan(&p.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
