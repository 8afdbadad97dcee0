package aggregate

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuepos/backend/internal/cache"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
)

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func sampleSales() []domain.Sale {
	return []domain.Sale{
		{
			ID: "s1", RegisterID: "reg", StaffName: "Ana", StaffID: "st-ana", Zone: "Salón",
			Items: []domain.LineItem{
				{ProductID: "beer", Name: "Cerveza", UnitPriceCents: 2500, UnitCostCents: 1000, Quantity: 2, Category: "Bebidas"},
			},
			Payments:    []domain.Payment{{Method: domain.MethodCash, AmountCents: 6000}},
			ChangeCents: 1000, TotalPaidCents: 6000, TotalCents: 5000,
		},
		{
			ID: "s2", RegisterID: "reg", StaffName: "Ana", StaffID: "st-ana", Zone: "Licobar",
			Items: []domain.LineItem{
				{ProductID: "combo", Name: "Combo Fernet", UnitPriceCents: 3000, UnitCostCents: 1200, Quantity: 1, Category: "Combos", IsCombo: true},
			},
			Payments:       []domain.Payment{{Method: "QR", AmountCents: 2000}, {Method: "Tarjeta", AmountCents: 1000}},
			TotalPaidCents: 3000, TotalCents: 3000,
		},
		{
			ID: "s3", RegisterID: "reg", StaffName: "Luis", Zone: "",
			Items: []domain.LineItem{
				{ProductID: "beer", Name: "Cerveza", UnitPriceCents: 2500, UnitCostCents: 1000, Quantity: 1, Category: "Bebidas"},
			},
			Payments:   []domain.Payment{{Method: domain.MethodCourtesy, AmountCents: 2500}},
			IsCourtesy: true,
		},
		{
			ID: "s4", RegisterID: "reg", StaffName: "Luis", Zone: "Salón",
			Items: []domain.LineItem{
				{ProductID: "cover", Name: "Entrada", UnitPriceCents: 1500, Quantity: 2, Category: "Servicios", IsServiceItem: true},
			},
			Payments:       []domain.Payment{{Method: "Reserva", AmountCents: 3000}},
			TotalPaidCents: 3000, TotalCents: 3000,
		},
		{ID: "other", RegisterID: "old-reg", Payments: []domain.Payment{{Method: domain.MethodCash, AmountCents: 99999}}},
	}
}

func sampleExpenses() []domain.Expense {
	return []domain.Expense{
		{ID: "e2", RegisterID: "reg", AmountCents: 700, Date: t0.Add(2 * time.Minute)},
		{ID: "e1", RegisterID: "reg", AmountCents: 300, Date: t0.Add(time.Minute)},
	}
}

func TestRecomputeTotals(t *testing.T) {
	stats := Recompute("reg", sampleSales(), sampleExpenses())

	assert.Equal(t, 4, stats.SalesCount)
	assert.Equal(t, int64(5000), stats.CashSalesCents)
	assert.Equal(t, int64(2000), stats.QRSalesCents)
	assert.Equal(t, int64(1000), stats.CardSalesCents)
	assert.Equal(t, int64(3000), stats.ReservationSalesCents)
	assert.Equal(t, int64(6000), stats.DigitalSalesCents)
	assert.Equal(t, int64(1000), stats.TotalExpensesCents)
	assert.Equal(t, int64(2000+1200+1000), stats.TotalCostOfGoodsCents)
	assert.Equal(t, int64(2500), stats.CourtesyTotalCents)
	assert.Equal(t, int64(1000), stats.CourtesyCostCents)

	require.Len(t, stats.Expenses, 2)
	assert.Equal(t, "e1", stats.Expenses[0].ID)
}

func TestRecomputeRollups(t *testing.T) {
	stats := Recompute("reg", sampleSales(), nil)

	require.Len(t, stats.SoldProducts, 3)
	beer := stats.SoldProducts[0]
	assert.Equal(t, "beer", beer.ProductID)
	assert.Equal(t, 2, beer.SoldQty)
	assert.Equal(t, int64(5000), beer.SoldTotalCents)
	assert.Equal(t, 1, beer.CourtesyQty)
	assert.Equal(t, int64(2500), beer.CourtesyTotalCents)

	assert.Equal(t, []domain.ZoneRevenue{
		{Zone: "Licobar", Sales: 1, RevenueCents: 3000},
		{Zone: "Salón", Sales: 2, RevenueCents: 8000},
	}, stats.ZoneStats)

	require.Len(t, stats.StaffUtility, 2)
	ana := stats.StaffUtility[0]
	assert.Equal(t, "Ana", ana.StaffName)
	assert.Equal(t, "st-ana", ana.StaffID)
	assert.Equal(t, int64(3000+1800), ana.UtilityCents)
	assert.Equal(t, int64(3000), ana.StandardUtilityCents)
	assert.Equal(t, int64(1800), ana.ComboUtilityCents)
	assert.Equal(t, int64(3000), ana.ComboSalesCents)

	luis := stats.StaffUtility[1]
	assert.Equal(t, int64(3000), luis.UtilityCents, "courtesy sale must not count toward utility")
}

func TestRecomputeIsOrderIndependent(t *testing.T) {
	sales := sampleSales()
	expenses := sampleExpenses()
	want := Recompute("reg", sales, expenses)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		s := append([]domain.Sale(nil), sales...)
		e := append([]domain.Expense(nil), expenses...)
		rng.Shuffle(len(s), func(a, b int) { s[a], s[b] = s[b], s[a] })
		rng.Shuffle(len(e), func(a, b int) { e[a], e[b] = e[b], e[a] })
		assert.Equal(t, want, Recompute("reg", s, e))
	}
}

func TestRecomputeEmpty(t *testing.T) {
	stats := Recompute("reg", nil, nil)
	assert.Equal(t, int64(0), stats.CashSalesCents)
	assert.Empty(t, stats.SoldProducts)
	assert.NotNil(t, stats.Expenses)
}

type fakeSource struct {
	session  *domain.RegisterSession
	sales    []domain.Sale
	expenses []domain.Expense
}

func (f *fakeSource) GetActiveSession(_ context.Context, _ string) (*domain.RegisterSession, error) {
	if f.session == nil {
		return nil, store.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeSource) ListSalesByRegister(_ context.Context, _ string) ([]domain.Sale, error) {
	return f.sales, nil
}

func (f *fakeSource) ListExpensesByRegister(_ context.Context, _ string) ([]domain.Expense, error) {
	return f.expenses, nil
}

func TestWatcherRecomputeAndReset(t *testing.T) {
	src := &fakeSource{session: &domain.RegisterSession{ID: "reg", Status: domain.SessionStatusOpen}, sales: sampleSales()}
	w := NewWatcher(src, "venue", cache.NoopStatsCache{}, time.Minute, nil)

	stats, err := w.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stats.CashSalesCents)
	assert.Equal(t, stats, w.Current())

	w.Reset(context.Background(), "reg")
	assert.Equal(t, domain.SessionStats{}, w.Current())

	src.session = nil
	stats, err = w.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStats{}, stats)
}

func TestWatcherRunReactsToSignals(t *testing.T) {
	src := &fakeSource{session: &domain.RegisterSession{ID: "reg"}}
	w := NewWatcher(src, "venue", nil, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		w.Run(ctx, changes)
		close(done)
	}()

	require.Eventually(t, func() bool { return w.Current().RegisterID == "reg" }, time.Second, 5*time.Millisecond)

	src.sales = sampleSales()
	changes <- "reg"
	require.Eventually(t, func() bool { return w.Current().CashSalesCents == 5000 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
