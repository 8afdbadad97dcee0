package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"venuepos/backend/internal/bom"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/money"
	"venuepos/backend/internal/payment"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

// Settle turns pending orders, ad-hoc cart lines, or both into one paid sale.
// Every validation runs before the sale is written; after that write the sale
// is final and the stock and pending-order steps are best effort.
func (s *Service) Settle(ctx context.Context, req domain.SettleRequest) (domain.SettleResponse, error) {
	started := time.Now()

	session, actor, err := s.drawerSession(ctx)
	if err != nil {
		s.metrics.SettlementRejected(rejectionReason(err))
		return domain.SettleResponse{}, err
	}

	orderIDs := uniqueIDs(req.PendingOrderIDs)
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = xid.SettlementKey(s.venueID, orderIDs)
	}
	if key != "" {
		existing, err := s.repo.FindSaleByIdempotencyKey(ctx, key)
		if err == nil {
			return s.replay(ctx, *existing, started), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SettleResponse{}, fmt.Errorf("%w: idempotency lookup: %v", domain.ErrPersistenceFailure, err)
		}
	} else {
		key = xid.New("settle")
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.SettleResponse{}, fmt.Errorf("%w: catalog: %v", domain.ErrPersistenceFailure, err)
	}
	catalog := bom.NewCatalog(products)

	orders := make([]domain.PendingOrder, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, err := s.repo.GetPendingOrder(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.metrics.SettlementRejected("pending_order_unavailable")
				return domain.SettleResponse{}, fmt.Errorf("%w: %s", domain.ErrPendingOrderUnavailable, id)
			}
			return domain.SettleResponse{}, fmt.Errorf("%w: pending order: %v", domain.ErrPersistenceFailure, err)
		}
		orders = append(orders, *order)
	}

	var lines []domain.LineItem
	for _, order := range orders {
		lines = append(lines, order.Items...)
	}
	lines = append(lines, normalizeLines(req.Items, catalog)...)
	lines = mergeLinesByName(lines)
	if len(lines) == 0 {
		s.metrics.SettlementRejected("empty")
		return domain.SettleResponse{}, store.ErrInvalidTransaction
	}

	target, err := cartTotal(lines)
	if err != nil {
		s.metrics.SettlementRejected(rejectionReason(err))
		return domain.SettleResponse{}, err
	}

	payments, err := payment.Build(req.Payments)
	if err != nil {
		s.metrics.SettlementRejected(rejectionReason(err))
		return domain.SettleResponse{}, err
	}
	settlement := payment.Reconcile(payments, target, req.ConfirmPartialCourtesy)
	if !settlement.Settled {
		s.metrics.SettlementRejected(rejectionReason(domain.ErrIncompleteFunding))
		return domain.SettleResponse{}, domain.ErrIncompleteFunding
	}

	staffID, staffName, zone := attribution(req, orders, actor)
	sale := domain.Sale{
		ID:             xid.New("sale"),
		Date:           s.now(),
		RegisterID:     session.ID,
		StaffID:        staffID,
		StaffName:      staffName,
		CashierName:    actor.Name,
		Items:          lines,
		Payments:       payments,
		TotalPaidCents: settlement.TotalPaidCents,
		ChangeCents:    settlement.ChangeCents,
		TotalCents:     payment.SaleTotal(settlement),
		OrderID:        combinedOrderID(orders),
		SourceOrderIDs: orderIDs,
		Zone:           zone,
		IsCourtesy:     settlement.IsCourtesy,
		IdempotencyKey: key,
	}

	saved, created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		if errors.Is(err, domain.ErrPendingOrderUnavailable) {
			s.metrics.SettlementRejected("pending_order_unavailable")
			return domain.SettleResponse{}, err
		}
		s.metrics.SettlementRejected(rejectionReason(domain.ErrPersistenceFailure))
		return domain.SettleResponse{}, fmt.Errorf("%w: sale: %v", domain.ErrPersistenceFailure, err)
	}
	if !created {
		return s.replay(ctx, *saved, started), nil
	}

	warnings := s.applySaleStock(ctx, *saved, catalog)
	s.removePendingOrders(ctx, saved.SourceOrderIDs)

	kind := "monetary"
	if saved.IsCourtesy {
		kind = "courtesy"
	}
	s.metrics.SaleSettled(kind, time.Since(started))
	s.changed(ctx, saved.RegisterID)
	s.publish(ctx, events.TypeSaleSettled, saved.RegisterID, saved)
	s.logAudit(ctx, "sale_settle", "sale", saved.ID, fmt.Sprintf("total=%d,paid=%d,change=%d,orders=%d", saved.TotalCents, saved.TotalPaidCents, saved.ChangeCents, len(saved.SourceOrderIDs)))

	return domain.SettleResponse{Sale: *saved, StockWarnings: warnings}, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return nil, err
	}
	session, err := s.activeSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalesByRegister(ctx, session.ID)
}

// replay finishes the idempotent tail of an earlier settlement of the same
// key. Stock movements and deletions already done are no-ops the second time.
func (s *Service) replay(ctx context.Context, sale domain.Sale, started time.Time) domain.SettleResponse {
	var warnings []domain.StockWarning
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		log.Warn().Err(err).Str("sale_id", sale.ID).Msg("catalog unavailable on settlement replay")
	} else {
		warnings = s.applySaleStock(ctx, sale, bom.NewCatalog(products))
	}
	s.removePendingOrders(ctx, sale.SourceOrderIDs)
	s.metrics.SaleSettled("duplicate", time.Since(started))
	return domain.SettleResponse{Sale: sale, Duplicate: true, StockWarnings: warnings}
}

// applySaleStock moves inventory for every line of the sale. A failed product
// is reported and skipped, never rolled back into the sale.
func (s *Service) applySaleStock(ctx context.Context, sale domain.Sale, catalog bom.Catalog) []domain.StockWarning {
	var warnings []domain.StockWarning
	for _, delta := range bom.ExpandAll(sale.Items, catalog) {
		applied, err := s.repo.ApplyStockDelta(ctx, domain.StockMovement{
			ID:          xid.New("mov"),
			ReferenceID: sale.ID,
			ProductID:   delta.ProductID,
			Kind:        domain.MovementKindSale,
			DeltaQty:    delta.Qty,
			CreatedAt:   s.now(),
		})
		if err != nil {
			s.metrics.StockAdjustmentFailed()
			log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrStockAdjustmentFailed, err)).
				Str("sale_id", sale.ID).
				Str("product_id", delta.ProductID).
				Int("delta", delta.Qty).
				Msg("stock adjustment skipped")
			warnings = append(warnings, domain.StockWarning{ProductID: delta.ProductID, DeltaQty: delta.Qty, Reason: err.Error()})
			continue
		}
		if applied {
			s.metrics.StockMovementApplied()
		}
	}
	return warnings
}

func (s *Service) removePendingOrders(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, err := s.repo.DeletePendingOrder(ctx, id); err != nil {
			log.Warn().Err(err).Str("pending_order_id", id).Msg("pending order delete failed")
		}
	}
}

// normalizeLines applies the coercion policy: unreadable prices and costs
// become 0, unreadable quantities become 1. Negative money is clamped to 0.
func normalizeLines(items []domain.CartLine, catalog bom.Catalog) []domain.LineItem {
	lines := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		line := domain.LineItem{
			ProductID:      strings.TrimSpace(item.ProductID),
			Name:           strings.TrimSpace(item.Name),
			UnitPriceCents: clampZero(money.CoerceCents(item.UnitPrice, 0)),
			UnitCostCents:  clampZero(money.CoerceCents(item.UnitCost, 0)),
			Quantity:       money.CoerceQuantity(item.Quantity, 1),
			Category:       strings.TrimSpace(item.Category),
			IsCombo:        item.IsCombo,
			Recipe:         item.Recipe,
			IsServiceItem:  item.IsServiceItem,
		}
		if product, ok := catalog[line.ProductID]; ok {
			if line.Name == "" {
				line.Name = product.Name
			}
			if line.Category == "" {
				line.Category = product.Category
			}
			line.IsCombo = line.IsCombo || product.IsCombo
			line.IsServiceItem = line.IsServiceItem || product.IsService
		}
		if line.Name == "" && line.ProductID == "" {
			continue
		}
		if line.Name == "" {
			line.Name = line.ProductID
		}
		lines = append(lines, line)
	}
	return lines
}

// mergeLinesByName folds lines with the same name into the first one seen,
// summing quantities. Used when several orders are paid together.
func mergeLinesByName(lines []domain.LineItem) []domain.LineItem {
	merged := make([]domain.LineItem, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.Name]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.Name] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// attribution picks who earns the sale and where it happened: the request
// first, then the source orders, then the cashier settling it.
func attribution(req domain.SettleRequest, orders []domain.PendingOrder, actor domain.Actor) (string, string, string) {
	staffID := strings.TrimSpace(req.StaffID)
	staffName := strings.TrimSpace(req.StaffName)
	zone := strings.TrimSpace(req.Zone)
	for _, order := range orders {
		if staffName == "" && strings.TrimSpace(order.StaffName) != "" {
			staffID = order.StaffID
			staffName = strings.TrimSpace(order.StaffName)
		}
		if zone == "" {
			zone = strings.TrimSpace(order.Zone)
		}
	}
	if staffName == "" {
		staffID, staffName = actor.ID, actor.Name
	}
	return staffID, staffName, defaultString(zone, domain.DefaultZone)
}

// cartTotal sums line totals, rejecting any line or total outside the cent
// range so a wrapped value can never reach a sale.
func cartTotal(lines []domain.LineItem) (int64, error) {
	var total int64
	for _, line := range lines {
		lineTotal, ok := money.MulQty(line.UnitPriceCents, line.Quantity)
		if !ok {
			return 0, fmt.Errorf("%w: line %q total out of range", domain.ErrInvalidAmount, line.Name)
		}
		if _, ok := money.MulQty(line.UnitCostCents, line.Quantity); !ok {
			return 0, fmt.Errorf("%w: line %q cost out of range", domain.ErrInvalidAmount, line.Name)
		}
		if total, ok = money.Add(total, lineTotal); !ok {
			return 0, fmt.Errorf("%w: cart total out of range", domain.ErrInvalidAmount)
		}
	}
	return total, nil
}

func combinedOrderID(orders []domain.PendingOrder) string {
	parts := make([]string, 0, len(orders))
	for _, order := range orders {
		parts = append(parts, defaultString(order.Code, order.ID))
	}
	return strings.Join(parts, "+")
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, domain.ErrRoleNotPermitted):
		return "role_not_permitted"
	case errors.Is(err, domain.ErrIncompleteFunding):
		return "incomplete_funding"
	case errors.Is(err, domain.ErrCourtesyConflict):
		return "courtesy_conflict"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrNotOpen):
		return "not_open"
	case errors.Is(err, domain.ErrPersistenceFailure):
		return "persistence"
	default:
		return "other"
	}
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
