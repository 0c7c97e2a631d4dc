package service

import (
	"context"

	"laikostar/internal/model"
)

type ReferralCounts struct {
	DirectCount   int   `json:"DirectCount"`
	IndirectCount int   `json:"IndirectCount"`
	Levels        []int `json:"levels"`
}

// CountReferrals counts descendants level by level down to the policy depth.
// Level one are direct referrals, level two indirect ones.
func (l *Ledger) CountReferrals(ctx context.Context, username string) (*ReferralCounts, error) {
	user, err := l.user(ctx, username)
	if err != nil {
		return nil, err
	}
	levels, err := l.store.ReferralLevels(ctx, user.ID, l.policy.ReferralDepth)
	if err != nil {
		return nil, err
	}
	counts := &ReferralCounts{Levels: levels}
	if len(levels) > 0 {
		counts.DirectCount = levels[0]
	}
	if len(levels) > 1 {
		counts.IndirectCount = levels[1]
	}
	return counts, nil
}

// Parent returns the referrer of username, or ErrNotFound for root users.
func (l *Ledger) Parent(ctx context.Context, username string) (*model.User, error) {
	user, err := l.user(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.ParentID == nil {
		return nil, ErrNotFound
	}
	parent, err := l.store.GetUserByID(ctx, *user.ParentID)
	return parent, translate(err)
}
