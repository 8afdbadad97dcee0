package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"venuepos/backend/internal/commission"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

// Commissions prices the open session's utility for every staff member on
// commission.
func (s *Service) Commissions(ctx context.Context) ([]domain.CommissionLine, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return nil, err
	}
	stats, err := s.LiveStats(ctx)
	if err != nil {
		return nil, err
	}
	return s.commissionLines(ctx, stats.RegisterID, stats)
}

// PayCommission records a payout against what is still pending for one staff
// member. The bonus rides on top and never counts as commission paid.
func (s *Service) PayCommission(ctx context.Context, req domain.CommissionPayRequest) (domain.CommissionPayResponse, error) {
	session, actor, err := s.drawerSession(ctx)
	if err != nil {
		return domain.CommissionPayResponse{}, err
	}
	if req.AmountCents <= 0 || req.BonusCents < 0 {
		return domain.CommissionPayResponse{}, domain.ErrInvalidAmount
	}

	member, err := s.repo.GetStaffByID(ctx, strings.TrimSpace(req.StaffID))
	if err != nil {
		return domain.CommissionPayResponse{}, err
	}
	if !member.CommissionEnabled {
		return domain.CommissionPayResponse{}, store.ErrInvalidTransaction
	}

	stats, err := s.watcher.RecomputeSession(ctx, session.ID)
	if err != nil {
		return domain.CommissionPayResponse{}, fmt.Errorf("%w: session stats: %v", domain.ErrPersistenceFailure, err)
	}
	lines, err := s.commissionLines(ctx, session.ID, stats)
	if err != nil {
		return domain.CommissionPayResponse{}, err
	}
	var line *domain.CommissionLine
	for i := range lines {
		if lines[i].StaffID == member.ID {
			line = &lines[i]
			break
		}
	}
	if line == nil || line.PendingCents <= 0 || req.AmountCents > line.PendingCents {
		return domain.CommissionPayResponse{}, domain.ErrInvalidAmount
	}

	details, err := json.Marshal(map[string]any{
		"staff_id":    member.ID,
		"rate":        line.TierRate,
		"bonus_cents": req.BonusCents,
	})
	if err != nil {
		return domain.CommissionPayResponse{}, err
	}

	now := s.now()
	expense := domain.Expense{
		ID:          xid.New("exp"),
		RegisterID:  session.ID,
		Description: payoutDescription(member.Name, line.TierRate, req.BonusCents),
		AmountCents: req.AmountCents + req.BonusCents,
		Type:        domain.ExpenseTypeCommission,
		Details:     details,
		CreatedBy:   actor.Name,
		Date:        now,
	}
	payout := domain.CommissionPayout{
		ID:          xid.New("pay"),
		StaffID:     member.ID,
		StaffName:   member.Name,
		RegisterID:  session.ID,
		AmountCents: req.AmountCents + req.BonusCents,
		BonusCents:  req.BonusCents,
		Rate:        line.TierRate,
		ExpenseID:   expense.ID,
		CreatedAt:   now,
	}

	savedPayout, savedExpense, err := s.repo.CreateCommissionPayout(ctx, payout, expense)
	if err != nil {
		return domain.CommissionPayResponse{}, fmt.Errorf("%w: commission payout: %v", domain.ErrPersistenceFailure, err)
	}

	s.changed(ctx, session.ID)
	s.publish(ctx, events.TypeExpenseCreated, session.ID, savedExpense)
	s.logAudit(ctx, "commission_pay", "commission_payout", savedPayout.ID, fmt.Sprintf("staff=%s,amount=%d,bonus=%d", member.Name, req.AmountCents, req.BonusCents))

	return domain.CommissionPayResponse{Payout: *savedPayout, Expense: *savedExpense}, nil
}

func (s *Service) CommissionTiers(ctx context.Context) ([]domain.CommissionTier, error) {
	return s.tiers(ctx)
}

func (s *Service) SaveCommissionTiers(ctx context.Context, doc domain.CommissionTierDocument) ([]domain.CommissionTier, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	tiers, err := commission.ValidateTiers(doc.Tiers)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, commission.ErrInvalidTiers
	}
	if err := s.repo.SaveCommissionTiers(ctx, s.venueID, tiers); err != nil {
		return nil, err
	}

	s.logAudit(ctx, "commission_tiers_save", "commission_tiers", s.venueID, fmt.Sprintf("tiers=%d", len(tiers)))
	return tiers, nil
}

func (s *Service) commissionLines(ctx context.Context, registerID string, stats domain.SessionStats) ([]domain.CommissionLine, error) {
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	tiers, err := s.tiers(ctx)
	if err != nil {
		return nil, err
	}
	payouts, err := s.repo.ListCommissionPayouts(ctx, registerID)
	if err != nil {
		return nil, err
	}
	return commission.Compute(staff, stats.StaffUtility, tiers, payouts), nil
}

func (s *Service) tiers(ctx context.Context) ([]domain.CommissionTier, error) {
	tiers, err := s.repo.GetCommissionTiers(ctx, s.venueID)
	if errors.Is(err, store.ErrNotFound) {
		return commission.DefaultTiers(), nil
	}
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func payoutDescription(name string, rate float64, bonusCents int64) string {
	desc := fmt.Sprintf("Comisión %s (%.1f%%)", name, rate*100)
	if bonusCents > 0 {
		desc += fmt.Sprintf(" + bono %d.%02d", bonusCents/100, bonusCents%100)
	}
	return desc
}
