package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables and indexes. It is safe to run on every
// start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, price_cents, cost_cents, track_stock, stock, is_combo, is_service, recipe, active`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	var recipe []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.TrackStock, &p.Stock, &p.IsCombo, &p.IsService, &recipe, &p.Active); err != nil {
		return p, err
	}
	if err := decodeJSON(recipe, &p.Recipe); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	recipe, err := encodeJSON(product.Recipe, "[]")
	if err != nil {
		return nil, err
	}

	// stock is only written on insert; afterwards it moves through ApplyStockDelta
	saved, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, cost_cents, track_stock, stock, is_combo, is_service, recipe, active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			price_cents = EXCLUDED.price_cents,
			cost_cents = EXCLUDED.cost_cents,
			track_stock = EXCLUDED.track_stock,
			is_combo = EXCLUDED.is_combo,
			is_service = EXCLUDED.is_service,
			recipe = EXCLUDED.recipe,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.PriceCents, product.CostCents, product.TrackStock,
		product.Stock, product.IsCombo, product.IsService, recipe, product.Active))
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, movement domain.StockMovement) (bool, error) {
	if movement.ReferenceID == "" || movement.ProductID == "" || movement.DeltaQty == 0 {
		return false, store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, reference_id, product_id, kind, delta_qty, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (reference_id, product_id) DO NOTHING
	`, movement.ID, movement.ReferenceID, movement.ProductID, movement.Kind, movement.DeltaQty, movement.Reason, movement.CreatedAt)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2
	`, movement.DeltaQty, movement.ProductID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_id, product_id, kind, delta_qty, reason, created_at
		FROM stock_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ReferenceID, &m.ProductID, &m.Kind, &m.DeltaQty, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const staffColumns = `id, name, role, pin_hash, active, commission_enabled, salary_enabled, daily_salary_cents, created_at`

func scanStaff(row interface{ Scan(dest ...any) error }) (domain.StaffMember, error) {
	var m domain.StaffMember
	err := row.Scan(&m.ID, &m.Name, &m.Role, &m.PINHash, &m.Active, &m.CommissionEnabled, &m.SalaryEnabled, &m.DailySalaryCents, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]domain.StaffMember, 0, 16)
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Store) GetStaffByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	return s.getStaff(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
}

func (s *Store) GetStaffByName(ctx context.Context, name string) (*domain.StaffMember, error) {
	return s.getStaff(ctx, `SELECT `+staffColumns+` FROM staff WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
}

func (s *Store) getStaff(ctx context.Context, query string, arg string) (*domain.StaffMember, error) {
	m, err := scanStaff(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpsertStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if strings.TrimSpace(member.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if member.ID == "" {
		member.ID = xid.New("st")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	saved, err := scanStaff(s.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, name, role, pin_hash, active, commission_enabled, salary_enabled, daily_salary_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			pin_hash = CASE WHEN EXCLUDED.pin_hash = '' THEN staff.pin_hash ELSE EXCLUDED.pin_hash END,
			active = EXCLUDED.active,
			commission_enabled = EXCLUDED.commission_enabled,
			salary_enabled = EXCLUDED.salary_enabled,
			daily_salary_cents = EXCLUDED.daily_salary_cents
		RETURNING `+staffColumns,
		member.ID, member.Name, member.Role, member.PINHash, member.Active, member.CommissionEnabled,
		member.SalaryEnabled, member.DailySalaryCents, member.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &saved, nil
}

const sessionColumns = `id, venue_id, status, opened_by, opened_by_id, opened_at, opening_amount_cents, opening_note,
	closed_at, closed_by, final_cash_calculated_cents, declared_cash_cents, discrepancy_cents, closing_note, final_sales_stats`

func scanSession(row interface{ Scan(dest ...any) error }) (domain.RegisterSession, error) {
	var session domain.RegisterSession
	var openedByID, closedBy sql.NullString
	var closedAt sql.NullTime
	var finalCash, declared, discrepancy sql.NullInt64
	var stats []byte
	if err := row.Scan(
		&session.ID,
		&session.VenueID,
		&session.Status,
		&session.OpenedBy,
		&openedByID,
		&session.OpenedAt,
		&session.OpeningAmountCents,
		&session.OpeningNote,
		&closedAt,
		&closedBy,
		&finalCash,
		&declared,
		&discrepancy,
		&session.ClosingNote,
		&stats,
	); err != nil {
		return session, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	session.OpenedByID = openedByID.String
	session.ClosedBy = closedBy.String
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	session.FinalCashCalculated = int64Ptr(finalCash)
	session.DeclaredCashCents = int64Ptr(declared)
	session.DiscrepancyCents = int64Ptr(discrepancy)
	if len(stats) > 0 {
		var snapshot domain.SessionStats
		if err := json.Unmarshal(stats, &snapshot); err != nil {
			return session, err
		}
		session.FinalSalesStats = &snapshot
	}
	return session, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.VenueID) == "" || strings.TrimSpace(session.OpenedBy) == "" {
		return nil, store.ErrInvalidTransaction
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO register_sessions (id, venue_id, status, opened_by, opened_by_id, opened_at, opening_amount_cents, opening_note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, session.ID, session.VenueID, session.Status, session.OpenedBy, nullIfEmpty(session.OpenedByID),
		session.OpenedAt, session.OpeningAmountCents, session.OpeningNote)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID string, closing domain.SessionClosing) (*domain.RegisterSession, error) {
	if closing.ClosedAt.IsZero() {
		closing.ClosedAt = time.Now().UTC()
	}
	stats, err := json.Marshal(closing.FinalSalesStats)
	if err != nil {
		return nil, err
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET status = 'closed', closed_at = $2, closed_by = $3, final_cash_calculated_cents = $4,
			declared_cash_cents = $5, discrepancy_cents = $6, closing_note = $7, final_sales_stats = $8
		WHERE id = $1 AND status = 'open'
		RETURNING `+sessionColumns,
		sessionID, closing.ClosedAt, closing.ClosedBy, closing.FinalCashCalculated,
		nullInt64(closing.DeclaredCashCents), nullInt64(closing.DiscrepancyCents), closing.ClosingNote, string(stats)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetActiveSession(ctx context.Context, venueID string) (*domain.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM register_sessions
		WHERE venue_id = $1 AND status = 'open'
	`, venueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM register_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context, venueID string, limit int) ([]domain.RegisterSession, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM register_sessions
		WHERE venue_id = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, venueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.RegisterSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

const pendingColumns = `id, venue_id, code, items, total_cents, staff_id, staff_name, zone, status, created_at`

func scanPendingOrder(row interface{ Scan(dest ...any) error }) (domain.PendingOrder, error) {
	var order domain.PendingOrder
	var items []byte
	var staffID, staffName sql.NullString
	if err := row.Scan(&order.ID, &order.VenueID, &order.Code, &items, &order.TotalCents, &staffID, &staffName, &order.Zone, &order.Status, &order.CreatedAt); err != nil {
		return order, err
	}
	order.StaffID = staffID.String
	order.StaffName = staffName.String
	order.CreatedAt = order.CreatedAt.UTC()
	if err := decodeJSON(items, &order.Items); err != nil {
		return order, err
	}
	return order, nil
}

func (s *Store) CreatePendingOrder(ctx context.Context, order domain.PendingOrder) (*domain.PendingOrder, error) {
	if len(order.Items) == 0 || order.VenueID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.PendingOrderStatusPending
	items, err := encodeJSON(order.Items, "[]")
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_orders (id, venue_id, code, items, total_cents, staff_id, staff_name, zone, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, order.ID, order.VenueID, order.Code, items, order.TotalCents, nullIfEmpty(order.StaffID),
		nullIfEmpty(order.StaffName), order.Zone, order.Status, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := order
	return &saved, nil
}

func (s *Store) GetPendingOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	order, err := scanPendingOrder(s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListPendingOrders(ctx context.Context, venueID string) ([]domain.PendingOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_orders
		WHERE venue_id = $1
		ORDER BY created_at, id
	`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PendingOrder, 0, 32)
	for rows.Next() {
		order, err := scanPendingOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) DeletePendingOrder(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const saleColumns = `id, register_id, sold_at, staff_id, staff_name, cashier_name, items, payments,
	total_paid_cents, change_cents, total_cents, order_id, source_order_ids, zone, is_courtesy, idempotency_key`

func scanSale(row interface{ Scan(dest ...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var staffID, staffName sql.NullString
	var items, payments, sources []byte
	if err := row.Scan(
		&sale.ID,
		&sale.RegisterID,
		&sale.Date,
		&staffID,
		&staffName,
		&sale.CashierName,
		&items,
		&payments,
		&sale.TotalPaidCents,
		&sale.ChangeCents,
		&sale.TotalCents,
		&sale.OrderID,
		&sources,
		&sale.Zone,
		&sale.IsCourtesy,
		&sale.IdempotencyKey,
	); err != nil {
		return sale, err
	}
	sale.Date = sale.Date.UTC()
	sale.StaffID = staffID.String
	sale.StaffName = staffName.String
	if err := decodeJSON(items, &sale.Items); err != nil {
		return sale, err
	}
	if err := decodeJSON(payments, &sale.Payments); err != nil {
		return sale, err
	}
	if err := decodeJSON(sources, &sale.SourceOrderIDs); err != nil {
		return sale, err
	}
	return sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if sale.IdempotencyKey == "" || sale.RegisterID == "" || len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	items, err := encodeJSON(sale.Items, "[]")
	if err != nil {
		return nil, false, err
	}
	payments, err := encodeJSON(sale.Payments, "[]")
	if err != nil {
		return nil, false, err
	}
	sources, err := encodeJSON(sale.SourceOrderIDs, "[]")
	if err != nil {
		return nil, false, err
	}

	created, err := s.insertSale(ctx, sale, items, payments, sources)
	if err == nil {
		return created, true, nil
	}
	// a concurrent or earlier attempt with the same key wins either by the
	// unique index or by having already claimed the pending orders
	if isUniqueViolation(err) || errors.Is(err, domain.ErrPendingOrderUnavailable) {
		existing, findErr := s.FindSaleByIdempotencyKey(ctx, sale.IdempotencyKey)
		if findErr == nil {
			return existing, false, nil
		}
		if !errors.Is(findErr, store.ErrNotFound) {
			return nil, false, findErr
		}
	}
	return nil, false, err
}

func (s *Store) insertSale(ctx context.Context, sale domain.Sale, items string, payments string, sources string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if len(sale.SourceOrderIDs) > 0 {
		res, err := tx.ExecContext(ctx, `DELETE FROM pending_orders WHERE id = ANY($1)`, sale.SourceOrderIDs)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if int(n) != len(sale.SourceOrderIDs) {
			return nil, domain.ErrPendingOrderUnavailable
		}
	}

	saved, err := scanSale(tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			id, register_id, sold_at, staff_id, staff_name, cashier_name, items, payments,
			total_paid_cents, change_cents, total_cents, order_id, source_order_ids, zone, is_courtesy, idempotency_key
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+saleColumns,
		sale.ID, sale.RegisterID, sale.Date, nullIfEmpty(sale.StaffID), nullIfEmpty(sale.StaffName), sale.CashierName,
		items, payments, sale.TotalPaidCents, sale.ChangeCents, sale.TotalCents, sale.OrderID, sources,
		sale.Zone, sale.IsCourtesy, sale.IdempotencyKey))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM sales WHERE %s = $1`, saleColumns, column), value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSalesByRegister(ctx context.Context, registerID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE register_id = $1
		ORDER BY sold_at, id
	`, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

const expenseColumns = `id, register_id, description, amount_cents, type, details, created_by, spent_at`

func scanExpense(row interface{ Scan(dest ...any) error }) (domain.Expense, error) {
	var e domain.Expense
	var details []byte
	if err := row.Scan(&e.ID, &e.RegisterID, &e.Description, &e.AmountCents, &e.Type, &details, &e.CreatedBy, &e.Date); err != nil {
		return e, err
	}
	e.Date = e.Date.UTC()
	if len(details) > 0 {
		e.Details = json.RawMessage(details)
	}
	return e, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertExpense(ctx context.Context, q rowQuerier, expense domain.Expense) (domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	var details any
	if len(expense.Details) > 0 {
		details = string(expense.Details)
	}
	return scanExpense(q.QueryRowContext(ctx, `
		INSERT INTO expenses (id, register_id, description, amount_cents, type, details, created_by, spent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+expenseColumns,
		expense.ID, expense.RegisterID, expense.Description, expense.AmountCents, expense.Type, details,
		expense.CreatedBy, expense.Date))
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.RegisterID == "" || expense.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	saved, err := insertExpense(ctx, s.db, expense)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `DELETE FROM expenses WHERE id = $1 RETURNING `+expenseColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListExpensesByRegister(ctx context.Context, registerID string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE register_id = $1
		ORDER BY spent_at, id
	`, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateCommissionPayout(ctx context.Context, payout domain.CommissionPayout, expense domain.Expense) (*domain.CommissionPayout, *domain.Expense, error) {
	if payout.StaffID == "" || payout.RegisterID == "" || expense.AmountCents <= 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	savedExpense, err := insertExpense(ctx, tx, expense)
	if err != nil {
		return nil, nil, err
	}
	if payout.ID == "" {
		payout.ID = xid.New("pay")
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = savedExpense.Date
	}
	payout.ExpenseID = savedExpense.ID

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commission_payouts (id, staff_id, staff_name, register_id, amount_cents, bonus_cents, rate, expense_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, payout.ID, payout.StaffID, payout.StaffName, payout.RegisterID, payout.AmountCents, payout.BonusCents,
		payout.Rate, payout.ExpenseID, payout.CreatedAt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &payout, &savedExpense, nil
}

func (s *Store) ListCommissionPayouts(ctx context.Context, registerID string) ([]domain.CommissionPayout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, staff_name, register_id, amount_cents, bonus_cents, rate, expense_id, created_at
		FROM commission_payouts
		WHERE register_id = $1
		ORDER BY created_at, id
	`, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]domain.CommissionPayout, 0, 8)
	for rows.Next() {
		var p domain.CommissionPayout
		if err := rows.Scan(&p.ID, &p.StaffID, &p.StaffName, &p.RegisterID, &p.AmountCents, &p.BonusCents, &p.Rate, &p.ExpenseID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *Store) GetCommissionTiers(ctx context.Context, venueID string) ([]domain.CommissionTier, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT tiers FROM commission_tiers WHERE venue_id = $1`, venueID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var tiers []domain.CommissionTier
	if err := decodeJSON(raw, &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

func (s *Store) SaveCommissionTiers(ctx context.Context, venueID string, tiers []domain.CommissionTier) error {
	raw, err := encodeJSON(tiers, "[]")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commission_tiers (venue_id, tiers, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (venue_id) DO UPDATE SET tiers = EXCLUDED.tiers, updated_at = now()
	`, venueID, raw)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, venue_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.VenueID, entry.ActorName, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, venueID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue_id, actor_name, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE venue_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, venueID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.VenueID, &entry.ActorName, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func encodeJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func int64Ptr(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	v := val.Int64
	return &v
}
