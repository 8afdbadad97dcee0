package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("VENUEPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set VENUEPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSettlementLedgerRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	venueID := fmt.Sprintf("venue-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE register_id IN (SELECT id FROM register_sessions WHERE venue_id = $1)`, venueID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE venue_id = $1`, venueID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM register_sessions WHERE venue_id = $1`, venueID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.UpsertProduct(ctx, domain.Product{ID: productID, Name: "Cerveza IT", TrackStock: true, Stock: 10, Active: true}); err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	session, err := s.CreateSession(ctx, domain.RegisterSession{VenueID: venueID, OpenedBy: "Caja", OpeningAmountCents: 10000})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.CreateSession(ctx, domain.RegisterSession{VenueID: venueID, OpenedBy: "admin"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for second open session, got %v", err)
	}

	order, err := s.CreatePendingOrder(ctx, domain.PendingOrder{
		VenueID: venueID,
		Items:   []domain.LineItem{{ProductID: productID, Name: "Cerveza IT", UnitPriceCents: 2500, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}

	sale := domain.Sale{
		RegisterID:     session.ID,
		CashierName:    "Caja",
		Items:          order.Items,
		Payments:       []domain.Payment{{Method: domain.MethodCash, AmountCents: 5000}},
		TotalPaidCents: 5000,
		TotalCents:     5000,
		SourceOrderIDs: []string{order.ID},
		Zone:           domain.DefaultZone,
		IdempotencyKey: fmt.Sprintf("idem-it-%d", stamp),
	}

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := s.CreateSale(ctx, sale)
			if err != nil {
				t.Errorf("create sale: %v", err)
				return
			}
			results[i] = created
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for _, created := range results {
		if created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Fatalf("expected exactly one created sale, got %d", createdCount)
	}

	stored, err := s.FindSaleByIdempotencyKey(ctx, sale.IdempotencyKey)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.ApplyStockDelta(ctx, domain.StockMovement{ReferenceID: stored.ID, ProductID: productID, DeltaQty: -2, Kind: domain.MovementKindSale}); err != nil {
			t.Fatalf("apply stock delta: %v", err)
		}
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("expected stock 8 after one applied delta, got %d", product.Stock)
	}

	if _, err := s.GetPendingOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected pending order consumed, got %v", err)
	}

	closed, err := s.CloseSession(ctx, session.ID, domain.SessionClosing{ClosedBy: "Caja", FinalCashCalculated: 15000, FinalSalesStats: domain.SessionStats{RegisterID: session.ID, CashSalesCents: 5000}})
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if closed.FinalSalesStats == nil || closed.FinalSalesStats.CashSalesCents != 5000 {
		t.Fatalf("expected frozen stats, got %+v", closed.FinalSalesStats)
	}
	if _, err := s.CloseSession(ctx, session.ID, domain.SessionClosing{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound closing twice, got %v", err)
	}
}
