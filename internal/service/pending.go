package service

import (
	"context"
	"fmt"
	"strings"

	"venuepos/backend/internal/bom"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

func (s *Service) CreatePendingOrder(ctx context.Context, req domain.PendingOrderCreateRequest) (domain.PendingOrder, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier, domain.RoleWaiter)
	if err != nil {
		return domain.PendingOrder{}, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.PendingOrder{}, err
	}
	lines := mergeLinesByName(normalizeLines(req.Items, bom.NewCatalog(products)))
	if len(lines) == 0 {
		return domain.PendingOrder{}, store.ErrInvalidTransaction
	}

	total, err := cartTotal(lines)
	if err != nil {
		return domain.PendingOrder{}, err
	}

	staffID := strings.TrimSpace(req.StaffID)
	staffName := strings.TrimSpace(req.StaffName)
	if staffName == "" {
		staffID, staffName = actor.ID, actor.Name
	}

	id := xid.New("po")
	order := domain.PendingOrder{
		ID:         id,
		VenueID:    s.venueID,
		Code:       defaultString(req.Code, id),
		Items:      lines,
		TotalCents: total,
		StaffID:    staffID,
		StaffName:  staffName,
		Zone:       defaultString(req.Zone, domain.DefaultZone),
		Status:     domain.PendingOrderStatusPending,
		CreatedAt:  s.now(),
	}
	saved, err := s.repo.CreatePendingOrder(ctx, order)
	if err != nil {
		return domain.PendingOrder{}, err
	}

	s.logAudit(ctx, "pending_order_create", "pending_order", saved.ID, fmt.Sprintf("code=%s,total=%d,items=%d", saved.Code, saved.TotalCents, len(saved.Items)))
	return *saved, nil
}

func (s *Service) ListPendingOrders(ctx context.Context) ([]domain.PendingOrder, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier, domain.RoleWaiter); err != nil {
		return nil, err
	}
	return s.repo.ListPendingOrders(ctx, s.venueID)
}

// VoidPendingOrder drops an order without charging it. Voiding an order that
// is already gone reports false and is not an error.
func (s *Service) VoidPendingOrder(ctx context.Context, id string) (bool, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, store.ErrInvalidTransaction
	}

	removed, err := s.repo.DeletePendingOrder(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.logAudit(ctx, "pending_order_void", "pending_order", id, "")
	}
	return removed, nil
}
