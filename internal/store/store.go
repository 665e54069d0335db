package store

import (
	"context"
	"errors"
	"fmt"

	"tindahan/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidBranch     = errors.New("invalid branch")
	ErrInvalidVariant    = errors.New("invalid variant")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBranchIsDefault   = errors.New("branch is default")
	ErrDuplicateSKU      = errors.New("duplicate sku")
	ErrTransactionFailed = errors.New("transaction failed")
)

// InsufficientStockError carries the details of the first line that could
// not be fulfilled. errors.Is(err, ErrInsufficientStock) matches it.
type InsufficientStockError struct {
	ProductName string
	VariantName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): available %d, requested %d",
		e.ProductName, e.VariantName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository is the tenant-scoped persistence surface. Every method takes
// the caller's organization ID and must never return rows that belong to
// another tenant. CreateSale and AdjustStock are the two serialized
// mutation paths for inventory records.
//
// CreateSale items may arrive with a negative UnitPriceCentavos or
// UnitCapitalCostCentavos, meaning the caller left the field unset; the
// store fills those from the variant snapshot inside the sale transaction.
// Zero is an honored value, not a placeholder.
type Repository interface {
	CreateOrganization(ctx context.Context, org domain.Organization, branch domain.Branch, owner domain.UserAccount) error
	GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error)

	GetUser(ctx context.Context, organizationID string, userID string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error

	ListBranches(ctx context.Context, organizationID string) ([]domain.Branch, error)
	GetBranch(ctx context.Context, organizationID string, branchID string) (*domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	DeleteBranch(ctx context.Context, organizationID string, branchID string) error

	ListProducts(ctx context.Context, organizationID string, includeInactive bool, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, organizationID string, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	GetVariant(ctx context.Context, organizationID string, variantID string) (*domain.ProductVariant, error)
	CreateVariant(ctx context.Context, variant domain.ProductVariant, initialStock int, userID string) (*domain.ProductVariant, error)
	UpdateVariant(ctx context.Context, variant domain.ProductVariant) (*domain.ProductVariant, error)
	ListCatalog(ctx context.Context, organizationID string) ([]domain.CatalogVariant, error)

	ListInventory(ctx context.Context, organizationID string, branchID string, lowOnly bool, limit int) ([]domain.InventoryLevel, error)
	ListStockMovements(ctx context.Context, organizationID string, branchID string, variantID string, limit int) ([]domain.StockMovement, error)

	CreateSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, organizationID string, transactionID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, organizationID string, branchID string, limit int) ([]domain.Transaction, error)
	AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.StockAdjustmentResult, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, organizationID string, limit int) ([]domain.AuditLog, error)
}
