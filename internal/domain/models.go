package domain

import "time"

// Lifecycle is the single state field that replaces scattered soft-delete
// timestamps on catalog entities. Transitions are checked with
// CanTransition; LifecycleDeleted is terminal.
const (
	LifecycleActive   = "active"
	LifecycleInactive = "inactive"
	LifecycleDeleted  = "deleted"
)

// CanTransition reports whether a catalog entity may move between the two
// lifecycle states. Active and inactive toggle freely, anything can be
// deleted, deleted entities never come back.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case LifecycleActive:
		return to == LifecycleInactive || to == LifecycleDeleted
	case LifecycleInactive:
		return to == LifecycleActive || to == LifecycleDeleted
	default:
		return false
	}
}

const (
	MovementTypeStockIn      = "stock_in"
	MovementTypeStockOut     = "stock_out"
	MovementTypeAdjustment   = "adjustment"
	MovementTypeSale         = "sale"
	MovementTypeInitialStock = "initial_stock"
)

const (
	MovementReferenceTransaction = "transaction"
	MovementReferenceManual      = "manual"
)

const PaymentStatusCompleted = "completed"

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Branch struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
}

type Product struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Brand          string    `json:"brand,omitempty"`
	Category       string    `json:"category,omitempty"`
	Description    string    `json:"description,omitempty"`
	Lifecycle      string    `json:"lifecycle"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProductVariant is the sellable unit. Prices are integer centavos.
type ProductVariant struct {
	ID                   string    `json:"id"`
	OrganizationID       string    `json:"organization_id"`
	ProductID            string    `json:"product_id"`
	Name                 string    `json:"name"`
	SKU                  string    `json:"sku"`
	SellingPriceCentavos int64     `json:"selling_price_centavos"`
	CapitalCostCentavos  int64     `json:"capital_cost_centavos"`
	LowStockThreshold    int       `json:"low_stock_threshold"`
	Lifecycle            string    `json:"lifecycle"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// InventoryRecord is the current stock count for one (branch, variant)
// pair. It is the only entity mutated concurrently; all mutation goes
// through the locked read-modify-write in the store implementations.
type InventoryRecord struct {
	OrganizationID string    `json:"organization_id"`
	BranchID       string    `json:"branch_id"`
	VariantID      string    `json:"variant_id"`
	Quantity       int       `json:"quantity"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InventoryLevel is the joined read model for stock listings.
type InventoryLevel struct {
	BranchID          string `json:"branch_id"`
	VariantID         string `json:"variant_id"`
	ProductName       string `json:"product_name"`
	VariantName       string `json:"variant_name"`
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

// StockMovement is one immutable audit row per inventory-affecting event.
// QuantityChange is signed and records the effective delta, so replaying a
// pair's movements from zero reproduces the current quantity exactly.
type StockMovement struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	BranchID       string    `json:"branch_id"`
	VariantID      string    `json:"variant_id"`
	UserID         string    `json:"user_id"`
	MovementType   string    `json:"movement_type"`
	QuantityChange int       `json:"quantity_change"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after"`
	ReferenceType  string    `json:"reference_type"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Transaction struct {
	ID                       string            `json:"id"`
	OrganizationID           string            `json:"organization_id"`
	BranchID                 string            `json:"branch_id"`
	UserID                   string            `json:"user_id"`
	TransactionNumber        string            `json:"transaction_number"`
	SubtotalCentavos         int64             `json:"subtotal_centavos"`
	TotalCapitalCostCentavos int64             `json:"total_capital_cost_centavos"`
	GrossProfitCentavos      int64             `json:"gross_profit_centavos"`
	PaymentMethod            string            `json:"payment_method"`
	PaymentStatus            string            `json:"payment_status"`
	CustomerName             string            `json:"customer_name,omitempty"`
	CustomerNotes            string            `json:"customer_notes,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
	Items                    []TransactionItem `json:"items"`
}

// TransactionItem snapshots product/variant identity and prices at time of
// sale so later catalog edits never alter historical receipts.
type TransactionItem struct {
	ID                      string `json:"id"`
	TransactionID           string `json:"transaction_id"`
	VariantID               string `json:"variant_id"`
	ProductName             string `json:"product_name"`
	VariantName             string `json:"variant_name"`
	SKU                     string `json:"sku"`
	Quantity                int    `json:"quantity"`
	UnitPriceCentavos       int64  `json:"unit_price_centavos"`
	UnitCapitalCostCentavos int64  `json:"unit_capital_cost_centavos"`
	LineTotalCentavos       int64  `json:"line_total_centavos"`
	LineCapitalCostCentavos int64  `json:"line_capital_cost_centavos"`
	LineProfitCentavos      int64  `json:"line_profit_centavos"`
}

type AuditLog struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Action         string    `json:"action"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	OldValues      string    `json:"old_values,omitempty"`
	NewValues      string    `json:"new_values,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID             string
	OrganizationID string
	Username       string
	Password       string
	Role           string
	Active         bool
	CreatedAt      time.Time
}

// Actor identifies the authenticated caller resolved from the bearer token.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           string
}

// SaleLine is one cart line. Price and cost are optional overrides: a nil
// field means the variant's catalog value at sale time, while an explicit
// zero is honored as zero (a comp line totals 0, it is not re-priced).
type SaleLine struct {
	VariantID         string `json:"variant_id"`
	Quantity          int    `json:"quantity"`
	UnitPriceCentavos *int64 `json:"unit_price_centavos,omitempty"`
	UnitCostCentavos  *int64 `json:"unit_cost_centavos,omitempty"`
}

// SaleRequest carries no tenant or user identity; both always come from
// the authenticated actor.
type SaleRequest struct {
	BranchID      string     `json:"branch_id"`
	PaymentMethod string     `json:"payment_method"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerNotes string     `json:"customer_notes,omitempty"`
	Items         []SaleLine `json:"items"`
}

type SaleResult struct {
	TransactionID            string `json:"transaction_id"`
	TransactionNumber        string `json:"transaction_number"`
	SubtotalCentavos         int64  `json:"subtotal_centavos"`
	TotalCapitalCostCentavos int64  `json:"total_capital_cost_centavos"`
	GrossProfitCentavos      int64  `json:"gross_profit_centavos"`
}

// StockAdjustmentRequest carries a signed Quantity for adjustment
// corrections; stock_in and stock_out callers pass a positive magnitude
// and the movement type determines the applied sign. OrganizationID and
// UserID are filled from the actor, never from the wire.
type StockAdjustmentRequest struct {
	OrganizationID string `json:"-"`
	BranchID       string `json:"branch_id"`
	UserID         string `json:"-"`
	VariantID      string `json:"variant_id"`
	Quantity       int    `json:"quantity"`
	MovementType   string `json:"movement_type"`
	Notes          string `json:"notes,omitempty"`
}

type StockAdjustmentResult struct {
	QuantityBefore int `json:"quantity_before"`
	QuantityAfter  int `json:"quantity_after"`
}

// CatalogVariant is the sale-eligible read model served to POS terminals
// and cached per tenant.
type CatalogVariant struct {
	VariantID            string `json:"variant_id"`
	ProductID            string `json:"product_id"`
	ProductName          string `json:"product_name"`
	VariantName          string `json:"variant_name"`
	SKU                  string `json:"sku"`
	SellingPriceCentavos int64  `json:"selling_price_centavos"`
	CapitalCostCentavos  int64  `json:"capital_cost_centavos"`
	LowStockThreshold    int    `json:"low_stock_threshold"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken    string `json:"access_token"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	ExpiresAt      string `json:"expires_at"`
}

type SignupRequest struct {
	OrganizationName string `json:"organization_name"`
	BranchName       string `json:"branch_name"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

type SignupResponse struct {
	Organization Organization `json:"organization"`
	Branch       Branch       `json:"branch"`
	Username     string       `json:"username"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Brand       *string `json:"brand,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	Lifecycle   *string `json:"lifecycle,omitempty"`
}

type VariantCreateRequest struct {
	ProductID            string `json:"product_id"`
	Name                 string `json:"name"`
	SKU                  string `json:"sku"`
	SellingPriceCentavos int64  `json:"selling_price_centavos"`
	CapitalCostCentavos  int64  `json:"capital_cost_centavos"`
	LowStockThreshold    int    `json:"low_stock_threshold"`
	InitialStock         int    `json:"initial_stock"`
}

type VariantUpdateRequest struct {
	Name                 *string `json:"name,omitempty"`
	SellingPriceCentavos *int64  `json:"selling_price_centavos,omitempty"`
	CapitalCostCentavos  *int64  `json:"capital_cost_centavos,omitempty"`
	LowStockThreshold    *int    `json:"low_stock_threshold,omitempty"`
	Lifecycle            *string `json:"lifecycle,omitempty"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type BranchCreateRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	IsDefault bool   `json:"is_default"`
}

type BranchUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Address   *string `json:"address,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}
