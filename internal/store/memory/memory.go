package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	products             map[string]domain.Product
	movementsByRef       map[string]domain.StockMovement
	movements            []domain.StockMovement
	staffByID            map[string]domain.StaffMember
	sessionsByID         map[string]domain.RegisterSession
	activeSessionByVenue map[string]string
	pendingByID          map[string]domain.PendingOrder
	salesByID            map[string]domain.Sale
	salesByIdem          map[string]string
	saleOrder            []string
	expensesByID         map[string]domain.Expense
	payoutsByID          map[string]domain.CommissionPayout
	tiersByVenue         map[string][]domain.CommissionTier
	auditLogs            []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:             make(map[string]domain.Product),
		movementsByRef:       make(map[string]domain.StockMovement),
		movements:            make([]domain.StockMovement, 0, 128),
		staffByID:            make(map[string]domain.StaffMember),
		sessionsByID:         make(map[string]domain.RegisterSession),
		activeSessionByVenue: make(map[string]string),
		pendingByID:          make(map[string]domain.PendingOrder),
		salesByID:            make(map[string]domain.Sale),
		salesByIdem:          make(map[string]string),
		expensesByID:         make(map[string]domain.Expense),
		payoutsByID:          make(map[string]domain.CommissionPayout),
		tiersByVenue:         make(map[string][]domain.CommissionTier),
		auditLogs:            make([]domain.AuditLog, 0, 128),
	}
}

// seedStaff builds the demo staff directory. PINs come from SEED_ADMIN_PIN,
// SEED_CASHIER_PIN and SEED_WAITER_PIN, with dev defaults when unset. The
// memory store is never used when DATABASE_URL is set.
func seedStaff() []domain.StaffMember {
	adminPIN := envOr("SEED_ADMIN_PIN", "246810")
	cashierPIN := envOr("SEED_CASHIER_PIN", "135790")
	waiterPIN := envOr("SEED_WAITER_PIN", "112358")
	if os.Getenv("SEED_ADMIN_PIN") == "" || os.Getenv("SEED_CASHIER_PIN") == "" || os.Getenv("SEED_WAITER_PIN") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev PINs; set SEED_ADMIN_PIN, SEED_CASHIER_PIN and SEED_WAITER_PIN to override")
	}

	now := time.Now().UTC()
	staff := make([]domain.StaffMember, 0, 4)
	for _, m := range []struct {
		id     string
		name   string
		pin    string
		role   string
		comm   bool
		salary int64
	}{
		{"st-admin", "admin", adminPIN, domain.RoleAdmin, false, 0},
		{"st-caja", "Caja", cashierPIN, domain.RoleCashier, false, 0},
		{"st-ana", "Ana", waiterPIN, domain.RoleWaiter, true, 0},
		{"st-luis", "Luis", waiterPIN, domain.RoleWaiter, true, 15000},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(m.pin), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("staff", m.name).Msg("failed to hash seed PIN")
		}
		staff = append(staff, domain.StaffMember{
			ID:                m.id,
			Name:              m.name,
			Role:              m.role,
			PINHash:           string(hash),
			Active:            true,
			CommissionEnabled: m.comm,
			SalaryEnabled:     m.salary > 0,
			DailySalaryCents:  m.salary,
			CreatedAt:         now,
		})
	}
	return staff
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	products := []domain.Product{
		{ID: "prd-cerveza", Name: "Cerveza", Category: "Bebidas", PriceCents: 2500, CostCents: 1000, TrackStock: true, Stock: 120, Active: true},
		{ID: "prd-fernet", Name: "Fernet (medida)", Category: "Insumos", PriceCents: 1800, CostCents: 700, TrackStock: true, Stock: 60, Active: true},
		{ID: "prd-coca", Name: "Coca Cola (medida)", Category: "Insumos", PriceCents: 800, CostCents: 300, TrackStock: true, Stock: 80, Active: true},
		{ID: "prd-agua", Name: "Agua", Category: "Bebidas", PriceCents: 1200, CostCents: 400, TrackStock: true, Stock: 48, Active: true},
		{ID: "prd-papas", Name: "Papas fritas", Category: "Cocina", PriceCents: 3500, CostCents: 1200, Active: true},
		{ID: "prd-entrada", Name: "Entrada", Category: "Servicios", PriceCents: 1500, IsService: true, Active: true},
		{ID: "prd-combo-fernet", Name: "Combo Fernet", Category: "Combos", PriceCents: 3000, CostCents: 1300, IsCombo: true, Active: true, Recipe: []domain.RecipeEntry{
			{IngredientID: "prd-fernet", QuantityPerUnit: 1},
			{IngredientID: "prd-coca", QuantityPerUnit: 2},
		}},
	}
	for _, p := range products {
		s.products[p.ID] = cloneProduct(p)
	}
	for _, m := range seedStaff() {
		s.staffByID[m.ID] = m
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if existing, ok := s.products[product.ID]; ok {
		// stock only moves through ApplyStockDelta
		product.Stock = existing.Stock
	}
	s.products[product.ID] = cloneProduct(product)
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) ApplyStockDelta(_ context.Context, movement domain.StockMovement) (bool, error) {
	if movement.ReferenceID == "" || movement.ProductID == "" || movement.DeltaQty == 0 {
		return false, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := movementKey(movement.ReferenceID, movement.ProductID)
	if _, done := s.movementsByRef[key]; done {
		return false, nil
	}
	product, ok := s.products[movement.ProductID]
	if !ok {
		return false, store.ErrNotFound
	}
	product.Stock += movement.DeltaQty
	s.products[movement.ProductID] = product

	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsByRef[key] = movement
	s.movements = append(s.movements, movement)
	return true, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 32)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if productID != "" && m.ProductID != productID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff := make([]domain.StaffMember, 0, len(s.staffByID))
	for _, m := range s.staffByID {
		staff = append(staff, m)
	}
	slices.SortFunc(staff, func(a, b domain.StaffMember) int { return strings.Compare(a.Name, b.Name) })
	return staff, nil
}

func (s *Store) GetStaffByID(_ context.Context, id string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.staffByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) GetStaffByName(_ context.Context, name string) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.staffByID {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			dup := m
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpsertStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if strings.TrimSpace(member.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.staffByID {
		if id != member.ID && strings.EqualFold(m.Name, member.Name) {
			return nil, store.ErrConflict
		}
	}
	if member.ID == "" {
		member.ID = xid.New("st")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	s.staffByID[member.ID] = member
	dup := member
	return &dup, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.VenueID) == "" {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeSessionByVenue[session.VenueID]; exists {
		return nil, store.ErrConflict
	}
	if session.ID == "" {
		session.ID = xid.New("reg")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ClosedAt = nil
	session.FinalSalesStats = nil

	s.sessionsByID[session.ID] = session
	s.activeSessionByVenue[session.VenueID] = session.ID
	dup := cloneSession(session)
	return &dup, nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, closing domain.SessionClosing) (*domain.RegisterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[sessionID]
	if !ok || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNotFound
	}
	if closing.ClosedAt.IsZero() {
		closing.ClosedAt = time.Now().UTC()
	}
	closedAt := closing.ClosedAt
	finalCash := closing.FinalCashCalculated
	stats := closing.FinalSalesStats

	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	session.ClosedBy = closing.ClosedBy
	session.FinalCashCalculated = &finalCash
	session.DeclaredCashCents = closing.DeclaredCashCents
	session.DiscrepancyCents = closing.DiscrepancyCents
	session.ClosingNote = closing.ClosingNote
	session.FinalSalesStats = &stats

	delete(s.activeSessionByVenue, session.VenueID)
	s.sessionsByID[sessionID] = session
	dup := cloneSession(session)
	return &dup, nil
}

func (s *Store) GetActiveSession(_ context.Context, venueID string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeSessionByVenue[venueID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session, ok := s.sessionsByID[id]
	if !ok || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNotFound
	}
	dup := cloneSession(session)
	return &dup, nil
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSession(session)
	return &dup, nil
}

func (s *Store) ListSessions(_ context.Context, venueID string, limit int) ([]domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RegisterSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		if venueID != "" && session.VenueID != venueID {
			continue
		}
		result = append(result, cloneSession(session))
	}
	slices.SortFunc(result, func(a, b domain.RegisterSession) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreatePendingOrder(_ context.Context, order domain.PendingOrder) (*domain.PendingOrder, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.PendingOrderStatusPending
	s.pendingByID[order.ID] = clonePendingOrder(order)
	dup := clonePendingOrder(order)
	return &dup, nil
}

func (s *Store) GetPendingOrder(_ context.Context, id string) (*domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.pendingByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := clonePendingOrder(order)
	return &dup, nil
}

func (s *Store) ListPendingOrders(_ context.Context, venueID string) ([]domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PendingOrder, 0, len(s.pendingByID))
	for _, order := range s.pendingByID {
		if venueID != "" && order.VenueID != venueID {
			continue
		}
		result = append(result, clonePendingOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.PendingOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) DeletePendingOrder(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pendingByID[id]; !ok {
		return false, nil
	}
	delete(s.pendingByID, id)
	return true, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if sale.IdempotencyKey == "" || sale.RegisterID == "" || len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
		dup := cloneSale(s.salesByID[id])
		return &dup, false, nil
	}
	for _, orderID := range sale.SourceOrderIDs {
		if _, ok := s.pendingByID[orderID]; !ok {
			return nil, false, domain.ErrPendingOrderUnavailable
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	for _, orderID := range sale.SourceOrderIDs {
		delete(s.pendingByID, orderID)
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	s.salesByIdem[sale.IdempotencyKey] = sale.ID
	s.saleOrder = append(s.saleOrder, sale.ID)
	dup := cloneSale(sale)
	return &dup, true, nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(s.salesByID[id])
	return &dup, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) ListSalesByRegister(_ context.Context, registerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.RegisterID != registerID {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	return result, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.RegisterID == "" || expense.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putExpenseLocked(&expense)
	dup := cloneExpense(expense)
	return &dup, nil
}

func (s *Store) putExpenseLocked(expense *domain.Expense) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = cloneExpense(*expense)
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, ok := s.expensesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneExpense(expense)
	return &dup, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, ok := s.expensesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.expensesByID, id)
	for payoutID, payout := range s.payoutsByID {
		if payout.ExpenseID == id {
			delete(s.payoutsByID, payoutID)
		}
	}
	return &expense, nil
}

func (s *Store) ListExpensesByRegister(_ context.Context, registerID string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 16)
	for _, expense := range s.expensesByID {
		if expense.RegisterID != registerID {
			continue
		}
		result = append(result, cloneExpense(expense))
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.Date.Compare(b.Date)
	})
	return result, nil
}

func (s *Store) CreateCommissionPayout(_ context.Context, payout domain.CommissionPayout, expense domain.Expense) (*domain.CommissionPayout, *domain.Expense, error) {
	if payout.StaffID == "" || payout.RegisterID == "" || expense.AmountCents <= 0 {
		return nil, nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putExpenseLocked(&expense)
	if payout.ID == "" {
		payout.ID = xid.New("pay")
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = expense.Date
	}
	payout.ExpenseID = expense.ID
	s.payoutsByID[payout.ID] = payout

	dupExpense := cloneExpense(expense)
	return &payout, &dupExpense, nil
}

func (s *Store) ListCommissionPayouts(_ context.Context, registerID string) ([]domain.CommissionPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CommissionPayout, 0, 8)
	for _, payout := range s.payoutsByID {
		if payout.RegisterID != registerID {
			continue
		}
		result = append(result, payout)
	}
	slices.SortFunc(result, func(a, b domain.CommissionPayout) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetCommissionTiers(_ context.Context, venueID string) ([]domain.CommissionTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers, ok := s.tiersByVenue[venueID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(tiers), nil
}

func (s *Store) SaveCommissionTiers(_ context.Context, venueID string, tiers []domain.CommissionTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiersByVenue[venueID] = slices.Clone(tiers)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, venueID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if venueID != "" && entry.VenueID != venueID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func movementKey(referenceID string, productID string) string {
	return referenceID + "|" + productID
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Recipe = slices.Clone(src.Recipe)
	return dup
}

func cloneLines(src []domain.LineItem) []domain.LineItem {
	dup := make([]domain.LineItem, len(src))
	for i, item := range src {
		dup[i] = item
		dup[i].Recipe = slices.Clone(item.Recipe)
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = cloneLines(src.Items)
	dup.Payments = slices.Clone(src.Payments)
	dup.SourceOrderIDs = slices.Clone(src.SourceOrderIDs)
	return dup
}

func clonePendingOrder(src domain.PendingOrder) domain.PendingOrder {
	dup := src
	dup.Items = cloneLines(src.Items)
	return dup
}

func cloneExpense(src domain.Expense) domain.Expense {
	dup := src
	dup.Details = slices.Clone(src.Details)
	return dup
}

func cloneSession(src domain.RegisterSession) domain.RegisterSession {
	dup := src
	if src.FinalSalesStats != nil {
		stats := *src.FinalSalesStats
		dup.FinalSalesStats = &stats
	}
	return dup
}
