// Package commission prices accumulated staff utility against a progressive
// tier table and nets out what has already been paid this session.
package commission

import (
	"errors"
	"sort"
	"strings"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/money"
)

// ComboRate applies to combo-category utility regardless of the tier table.
const ComboRate = 0.08

const (
	StatusPending  = "pending"
	StatusSettled  = "settled"
	StatusOverpaid = "overpaid"
)

var ErrInvalidTiers = errors.New("invalid commission tiers")

// DefaultTiers is used until a venue saves its own table.
func DefaultTiers() []domain.CommissionTier {
	return []domain.CommissionTier{
		{MaxUtilityCents: 150000, Rate: 0.04},
		{MaxUtilityCents: 300000, Rate: 0.05},
		{MaxUtilityCents: 500000, Rate: 0.06},
	}
}

// LookupRate picks the first tier, ascending by MaxUtilityCents, whose max is at
// or above utility. Utility above every tier takes the highest tier's rate.
func LookupRate(tiers []domain.CommissionTier, utilityCents int64) float64 {
	if len(tiers) == 0 {
		return 0
	}
	sorted := SortTiers(tiers)
	for _, tier := range sorted {
		if utilityCents <= tier.MaxUtilityCents {
			return tier.Rate
		}
	}
	return sorted[len(sorted)-1].Rate
}

func SortTiers(tiers []domain.CommissionTier) []domain.CommissionTier {
	sorted := append([]domain.CommissionTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxUtilityCents < sorted[j].MaxUtilityCents })
	return sorted
}

// ValidateTiers returns the table sorted, or ErrInvalidTiers.
func ValidateTiers(tiers []domain.CommissionTier) ([]domain.CommissionTier, error) {
	seen := make(map[int64]struct{}, len(tiers))
	for _, tier := range tiers {
		if tier.MaxUtilityCents <= 0 || tier.Rate < 0 || tier.Rate > 1 {
			return nil, ErrInvalidTiers
		}
		if _, dup := seen[tier.MaxUtilityCents]; dup {
			return nil, ErrInvalidTiers
		}
		seen[tier.MaxUtilityCents] = struct{}{}
	}
	return SortTiers(tiers), nil
}

// Compute returns one line per commission-enabled staff member, sorted by
// name. Utility is matched by staff id first and falls back to name.
func Compute(staff []domain.StaffMember, utility []domain.StaffUtility, tiers []domain.CommissionTier, payouts []domain.CommissionPayout) []domain.CommissionLine {
	byID := make(map[string]domain.StaffUtility, len(utility))
	byName := make(map[string]domain.StaffUtility, len(utility))
	for _, u := range utility {
		if u.StaffID != "" {
			byID[u.StaffID] = u
		}
		byName[strings.ToLower(strings.TrimSpace(u.StaffName))] = u
	}

	paid := make(map[string]int64)
	for _, p := range payouts {
		paid[p.StaffID] += p.AmountCents - p.BonusCents
	}

	lines := make([]domain.CommissionLine, 0, len(staff))
	for _, member := range staff {
		if !member.CommissionEnabled {
			continue
		}
		u, ok := byID[member.ID]
		if !ok {
			u = byName[strings.ToLower(strings.TrimSpace(member.Name))]
		}

		line := domain.CommissionLine{
			StaffID:              member.ID,
			StaffName:            member.Name,
			StandardUtilityCents: u.StandardUtilityCents,
			StandardSalesCents:   u.StandardSalesCents,
			ComboUtilityCents:    u.ComboUtilityCents,
			ComboSalesCents:      u.ComboSalesCents,
		}
		line.TierRate = LookupRate(tiers, u.StandardUtilityCents)
		line.StandardCommissionCents = nonNegative(money.ApplyRate(u.StandardUtilityCents, line.TierRate))
		line.ComboCommissionCents = nonNegative(money.ApplyRate(u.ComboUtilityCents, ComboRate))
		if member.SalaryEnabled {
			line.BaseSalaryCents = member.DailySalaryCents
		}
		line.TotalCommissionCents = line.StandardCommissionCents + line.ComboCommissionCents + line.BaseSalaryCents
		line.PaidSoFarCents = paid[member.ID]
		line.PendingCents = line.TotalCommissionCents - line.PaidSoFarCents
		line.Status = statusFor(line.PendingCents)
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].StaffName != lines[j].StaffName {
			return lines[i].StaffName < lines[j].StaffName
		}
		return lines[i].StaffID < lines[j].StaffID
	})
	return lines
}

func statusFor(pendingCents int64) string {
	switch {
	case pendingCents > 0:
		return StatusPending
	case pendingCents < 0:
		return StatusOverpaid
	default:
		return StatusSettled
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
