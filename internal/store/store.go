package store

import (
	"context"
	"errors"
	"time"

	"venuepos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// ApplyStockDelta moves stock by movement.DeltaQty in a single server-side
	// update. A movement whose (ReferenceID, ProductID) was already recorded is
	// not applied again and reports applied=false.
	ApplyStockDelta(ctx context.Context, movement domain.StockMovement) (applied bool, err error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	ListStaff(ctx context.Context) ([]domain.StaffMember, error)
	GetStaffByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetStaffByName(ctx context.Context, name string) (*domain.StaffMember, error)
	UpsertStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error)

	// CreateSession fails with ErrConflict when the venue already has an open
	// session.
	CreateSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	// CloseSession closes the session only if it is still open, else ErrNotFound.
	CloseSession(ctx context.Context, sessionID string, closing domain.SessionClosing) (*domain.RegisterSession, error)
	GetActiveSession(ctx context.Context, venueID string) (*domain.RegisterSession, error)
	GetSession(ctx context.Context, id string) (*domain.RegisterSession, error)
	ListSessions(ctx context.Context, venueID string, limit int) ([]domain.RegisterSession, error)

	CreatePendingOrder(ctx context.Context, order domain.PendingOrder) (*domain.PendingOrder, error)
	GetPendingOrder(ctx context.Context, id string) (*domain.PendingOrder, error)
	ListPendingOrders(ctx context.Context, venueID string) ([]domain.PendingOrder, error)
	// DeletePendingOrder reports whether a row was removed. A missing id is not
	// an error.
	DeletePendingOrder(ctx context.Context, id string) (bool, error)

	// CreateSale stores the sale and removes sale.SourceOrderIDs in one step.
	// When the idempotency key is already taken the stored sale is returned
	// with created=false and nothing changes. A missing source order fails with
	// domain.ErrPendingOrderUnavailable.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, bool, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesByRegister(ctx context.Context, registerID string) ([]domain.Sale, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	// DeleteExpense also removes a commission payout backed by the expense.
	DeleteExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpensesByRegister(ctx context.Context, registerID string) ([]domain.Expense, error)

	// CreateCommissionPayout writes the payout and its backing expense together.
	CreateCommissionPayout(ctx context.Context, payout domain.CommissionPayout, expense domain.Expense) (*domain.CommissionPayout, *domain.Expense, error)
	ListCommissionPayouts(ctx context.Context, registerID string) ([]domain.CommissionPayout, error)
	GetCommissionTiers(ctx context.Context, venueID string) ([]domain.CommissionTier, error)
	SaveCommissionTiers(ctx context.Context, venueID string, tiers []domain.CommissionTier) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, venueID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
