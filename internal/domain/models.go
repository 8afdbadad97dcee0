package domain

import (
	"encoding/json"
	"time"
)

type RecipeEntry struct {
	IngredientID    string `json:"ingredient_id"`
	QuantityPerUnit int    `json:"quantity_per_unit"`
}

// Product is the catalog view this engine reads. Stock is only meaningful when
// TrackStock is set; combos and services never carry their own stock.
type Product struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	PriceCents int64         `json:"price_cents"`
	CostCents  int64         `json:"cost_cents"`
	TrackStock bool          `json:"track_stock"`
	Stock      int           `json:"stock"`
	IsCombo    bool          `json:"is_combo"`
	IsService  bool          `json:"is_service"`
	Recipe     []RecipeEntry `json:"recipe,omitempty"`
	Active     bool          `json:"active"`
}

type StaffMember struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	PINHash           string    `json:"-"`
	Active            bool      `json:"active"`
	CommissionEnabled bool      `json:"commission_enabled"`
	SalaryEnabled     bool      `json:"salary_enabled"`
	DailySalaryCents  int64     `json:"daily_salary_cents"`
	CreatedAt         time.Time `json:"created_at"`
}

type Actor struct {
	ID   string
	Name string
	Role string
}

func (a Actor) Anonymous() bool {
	return a.Name == ""
}

type StaffCreateRequest struct {
	Name              string `json:"name"`
	PIN               string `json:"pin"`
	Role              string `json:"role"`
	CommissionEnabled bool   `json:"commission_enabled"`
	SalaryEnabled     bool   `json:"salary_enabled"`
	DailySalaryCents  int64  `json:"daily_salary_cents"`
}

type LoginRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type LineItem struct {
	ProductID      string        `json:"product_id"`
	Name           string        `json:"name"`
	UnitPriceCents int64         `json:"unit_price_cents"`
	UnitCostCents  int64         `json:"unit_cost_cents"`
	Quantity       int           `json:"quantity"`
	Category       string        `json:"category"`
	IsCombo        bool          `json:"is_combo"`
	Recipe         []RecipeEntry `json:"recipe,omitempty"`
	IsServiceItem  bool          `json:"is_service_item"`
}

func (l LineItem) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

func (l LineItem) CostTotalCents() int64 {
	return l.UnitCostCents * int64(l.Quantity)
}

// CartLine is a line as it arrives from a terminal. Price, cost and quantity
// are loosely typed and pass through the coercion policy before use.
type CartLine struct {
	ProductID     string        `json:"product_id"`
	Name          string        `json:"name"`
	UnitPrice     any           `json:"unit_price_cents"`
	UnitCost      any           `json:"unit_cost_cents"`
	Quantity      any           `json:"quantity"`
	Category      string        `json:"category"`
	IsCombo       bool          `json:"is_combo"`
	Recipe        []RecipeEntry `json:"recipe,omitempty"`
	IsServiceItem bool          `json:"is_service_item"`
}

type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type Settlement struct {
	TotalPaidCents int64 `json:"total_paid_cents"`
	ChangeCents    int64 `json:"change_cents"`
	Settled        bool  `json:"settled"`
	IsCourtesy     bool  `json:"is_courtesy"`
}

type RegisterSession struct {
	ID                  string        `json:"id"`
	VenueID             string        `json:"venue_id"`
	Status              string        `json:"status"`
	OpenedBy            string        `json:"opened_by"`
	OpenedByID          string        `json:"opened_by_id,omitempty"`
	OpenedAt            time.Time     `json:"opened_at"`
	OpeningAmountCents  int64         `json:"opening_amount_cents"`
	OpeningNote         string        `json:"opening_note,omitempty"`
	ClosedAt            *time.Time    `json:"closed_at,omitempty"`
	ClosedBy            string        `json:"closed_by,omitempty"`
	FinalCashCalculated *int64        `json:"final_cash_calculated_cents,omitempty"`
	DeclaredCashCents   *int64        `json:"declared_cash_cents,omitempty"`
	DiscrepancyCents    *int64        `json:"discrepancy_cents,omitempty"`
	ClosingNote         string        `json:"closing_note,omitempty"`
	FinalSalesStats     *SessionStats `json:"final_sales_stats,omitempty"`
}

// SessionClosing carries everything frozen onto a session when it closes.
type SessionClosing struct {
	ClosedAt            time.Time
	ClosedBy            string
	FinalCashCalculated int64
	DeclaredCashCents   *int64
	DiscrepancyCents    *int64
	ClosingNote         string
	FinalSalesStats     SessionStats
}

type OpenSessionRequest struct {
	OpeningAmountCents int64  `json:"opening_amount_cents"`
	Note               string `json:"note"`
}

type CloseSessionRequest struct {
	DeclaredCashCents *int64 `json:"declared_cash_cents,omitempty"`
	Note              string `json:"note"`
}

type SessionResponse struct {
	Session RegisterSession `json:"session"`
}

type PendingOrder struct {
	ID         string     `json:"id"`
	VenueID    string     `json:"venue_id"`
	Code       string     `json:"code"`
	Items      []LineItem `json:"items"`
	TotalCents int64      `json:"total_cents"`
	StaffID    string     `json:"staff_id,omitempty"`
	StaffName  string     `json:"staff_name,omitempty"`
	Zone       string     `json:"zone,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PendingOrderCreateRequest struct {
	Code      string     `json:"code"`
	Items     []CartLine `json:"items"`
	StaffID   string     `json:"staff_id"`
	StaffName string     `json:"staff_name"`
	Zone      string     `json:"zone"`
}

type Sale struct {
	ID             string     `json:"id"`
	Date           time.Time  `json:"date"`
	RegisterID     string     `json:"register_id"`
	StaffID        string     `json:"staff_id,omitempty"`
	StaffName      string     `json:"staff_name,omitempty"`
	CashierName    string     `json:"cashier_name"`
	Items          []LineItem `json:"items"`
	Payments       []Payment  `json:"payments"`
	TotalPaidCents int64      `json:"total_paid_cents"`
	ChangeCents    int64      `json:"change_given_cents"`
	TotalCents     int64      `json:"total_cents"`
	OrderID        string     `json:"order_id"`
	SourceOrderIDs []string   `json:"source_order_ids,omitempty"`
	Zone           string     `json:"zone"`
	IsCourtesy     bool       `json:"is_courtesy"`
	IdempotencyKey string     `json:"idempotency_key"`
}

type SettleRequest struct {
	PendingOrderIDs        []string   `json:"pending_order_ids,omitempty"`
	Items                  []CartLine `json:"items,omitempty"`
	Payments               []Payment  `json:"payments"`
	ConfirmPartialCourtesy bool       `json:"confirm_partial_courtesy"`
	StaffID                string     `json:"staff_id,omitempty"`
	StaffName              string     `json:"staff_name,omitempty"`
	Zone                   string     `json:"zone,omitempty"`
	IdempotencyKey         string     `json:"idempotency_key,omitempty"`
}

type StockWarning struct {
	ProductID string `json:"product_id"`
	DeltaQty  int    `json:"delta_qty"`
	Reason    string `json:"reason"`
}

type SettleResponse struct {
	Sale          Sale           `json:"sale"`
	Duplicate     bool           `json:"duplicate"`
	StockWarnings []StockWarning `json:"stock_warnings,omitempty"`
}

type StockDelta struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// StockMovement is one applied delta. ReferenceID plus ProductID is unique, so
// replaying the same movement never moves stock twice.
type StockMovement struct {
	ID          string    `json:"id"`
	ReferenceID string    `json:"reference_id"`
	ProductID   string    `json:"product_id"`
	Kind        string    `json:"kind"`
	DeltaQty    int       `json:"delta_qty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	DeltaQty  int    `json:"delta_qty"`
	Reason    string `json:"reason"`
}

type Expense struct {
	ID          string          `json:"id"`
	RegisterID  string          `json:"register_id"`
	Description string          `json:"description"`
	AmountCents int64           `json:"amount_cents"`
	Type        string          `json:"type"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedBy   string          `json:"created_by"`
	Date        time.Time       `json:"date"`
}

type ExpenseCreateRequest struct {
	Description string          `json:"description"`
	AmountCents int64           `json:"amount_cents"`
	Type        string          `json:"type"`
	Details     json.RawMessage `json:"details,omitempty"`
}

type CommissionTier struct {
	MaxUtilityCents int64   `json:"max_utility_cents"`
	Rate            float64 `json:"rate"`
}

type CommissionPayout struct {
	ID          string    `json:"id"`
	StaffID     string    `json:"staff_id"`
	StaffName   string    `json:"staff_name"`
	RegisterID  string    `json:"register_id"`
	AmountCents int64     `json:"amount_cents"`
	BonusCents  int64     `json:"bonus_cents"`
	Rate        float64   `json:"rate"`
	ExpenseID   string    `json:"expense_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CommissionLine struct {
	StaffID                 string  `json:"staff_id"`
	StaffName               string  `json:"staff_name"`
	StandardUtilityCents    int64   `json:"standard_utility_cents"`
	StandardSalesCents      int64   `json:"standard_sales_cents"`
	ComboUtilityCents       int64   `json:"combo_utility_cents"`
	ComboSalesCents         int64   `json:"combo_sales_cents"`
	TierRate                float64 `json:"tier_rate"`
	StandardCommissionCents int64   `json:"standard_commission_cents"`
	ComboCommissionCents    int64   `json:"combo_commission_cents"`
	BaseSalaryCents         int64   `json:"base_salary_cents"`
	TotalCommissionCents    int64   `json:"total_commission_cents"`
	PaidSoFarCents          int64   `json:"paid_so_far_cents"`
	PendingCents            int64   `json:"pending_cents"`
	Status                  string  `json:"status"`
}

type CommissionPayRequest struct {
	StaffID     string `json:"staff_id"`
	AmountCents int64  `json:"amount_cents"`
	BonusCents  int64  `json:"bonus_cents"`
}

type CommissionPayResponse struct {
	Payout  CommissionPayout `json:"payout"`
	Expense Expense          `json:"expense"`
}

type CommissionTierDocument struct {
	Tiers []CommissionTier `json:"tiers"`
}

type ProductRollup struct {
	ProductID          string `json:"product_id"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	SoldQty            int    `json:"sold_qty"`
	SoldTotalCents     int64  `json:"sold_total_cents"`
	CourtesyQty        int    `json:"courtesy_qty"`
	CourtesyTotalCents int64  `json:"courtesy_total_cents"`
	CostTotalCents     int64  `json:"cost_total_cents"`
}

type ZoneRevenue struct {
	Zone         string `json:"zone"`
	Sales        int    `json:"sales"`
	RevenueCents int64  `json:"revenue_cents"`
}

// StaffUtility is profit attributed to one staff member, split into the
// combo and standard buckets the commission engine prices differently.
type StaffUtility struct {
	StaffID              string `json:"staff_id,omitempty"`
	StaffName            string `json:"staff_name"`
	UtilityCents         int64  `json:"utility_cents"`
	SalesCents           int64  `json:"sales_cents"`
	StandardUtilityCents int64  `json:"standard_utility_cents"`
	StandardSalesCents   int64  `json:"standard_sales_cents"`
	ComboUtilityCents    int64  `json:"combo_utility_cents"`
	ComboSalesCents      int64  `json:"combo_sales_cents"`
}

type SessionStats struct {
	RegisterID            string          `json:"register_id"`
	SalesCount            int             `json:"sales_count"`
	CashSalesCents        int64           `json:"cash_sales_cents"`
	QRSalesCents          int64           `json:"qr_sales_cents"`
	CardSalesCents        int64           `json:"card_sales_cents"`
	ReservationSalesCents int64           `json:"reservation_sales_cents"`
	DigitalSalesCents     int64           `json:"digital_sales_cents"`
	TotalExpensesCents    int64           `json:"total_expenses_cents"`
	TotalCostOfGoodsCents int64           `json:"total_cost_of_goods_cents"`
	CourtesyTotalCents    int64           `json:"courtesy_total_cents"`
	CourtesyCostCents     int64           `json:"courtesy_cost_cents"`
	SoldProducts          []ProductRollup `json:"sold_products"`
	ZoneStats             []ZoneRevenue   `json:"zone_stats"`
	StaffUtility          []StaffUtility  `json:"staff_utility"`
	Expenses              []Expense       `json:"expenses"`
}

type SessionReport struct {
	Session     RegisterSession  `json:"session"`
	Stats       SessionStats     `json:"stats"`
	Commissions []CommissionLine `json:"commissions,omitempty"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	VenueID    string    `json:"venue_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleWaiter  = "waiter"
)

const (
	MethodCash        = "Efectivo"
	MethodQR          = "QR"
	MethodCard        = "Tarjeta"
	MethodReservation = "Reserva"
	MethodCourtesy    = "Cortesía"
)

const (
	PendingOrderStatusPending = "pending"
)

const (
	MovementKindSale   = "sale"
	MovementKindManual = "manual"
)

const (
	ExpenseTypeCommission = "Comisiones"
	DefaultZone           = "Salón"
	ComboCategoryMarker   = "combo"
)
