package service

import (
	"context"
	"fmt"
	"strings"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

// ListInventory returns the products that carry their own stock.
func (s *Service) ListInventory(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.TrackStock && !p.IsCombo && !p.IsService {
			tracked = append(tracked, p)
		}
	}
	return tracked, nil
}

// AdjustStock is a manual restock or write-off. It goes through the same
// delta primitive as sales, under a reference of its own.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	if req.DeltaQty == 0 {
		return domain.Product{}, domain.ErrInvalidAmount
	}

	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return domain.Product{}, err
	}
	if !product.TrackStock || product.IsCombo || product.IsService {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	ref := xid.New("adj")
	if _, err := s.repo.ApplyStockDelta(ctx, domain.StockMovement{
		ID:          xid.New("mov"),
		ReferenceID: ref,
		ProductID:   product.ID,
		Kind:        domain.MovementKindManual,
		DeltaQty:    req.DeltaQty,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   s.now(),
	}); err != nil {
		s.metrics.StockAdjustmentFailed()
		return domain.Product{}, fmt.Errorf("%w: %v", domain.ErrStockAdjustmentFailed, err)
	}
	s.metrics.StockMovementApplied()

	updated, err := s.repo.GetProduct(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "stock_adjust", "product", product.ID, fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.DeltaQty, updated.Stock, req.Reason))
	return *updated, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(productID), limit)
}
