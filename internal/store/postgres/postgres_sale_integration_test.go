package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

func TestSaleAndAdjustmentAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("TINDAHAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TINDAHAN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	orgID := fmt.Sprintf("org-it-%d", stamp)
	branchID := fmt.Sprintf("branch-it-%d", stamp)
	userID := fmt.Sprintf("user-it-%d", stamp)
	now := time.Now().UTC()

	t.Cleanup(func() {
		for _, stmt := range []string{
			`DELETE FROM audit_logs WHERE organization_id = $1`,
			`DELETE FROM transaction_items WHERE transaction_id IN (SELECT id FROM transactions WHERE organization_id = $1)`,
			`DELETE FROM transactions WHERE organization_id = $1`,
			`DELETE FROM transaction_counters WHERE organization_id = $1`,
			`DELETE FROM stock_movements WHERE organization_id = $1`,
			`DELETE FROM inventory_records WHERE organization_id = $1`,
			`DELETE FROM product_variants WHERE organization_id = $1`,
			`DELETE FROM products WHERE organization_id = $1`,
			`DELETE FROM users WHERE organization_id = $1`,
			`DELETE FROM branches WHERE organization_id = $1`,
			`DELETE FROM organizations WHERE id = $1`,
		} {
			_, _ = s.db.ExecContext(ctx, stmt, orgID)
		}
	})

	err = s.CreateOrganization(ctx,
		domain.Organization{ID: orgID, Name: "Integration Tindahan", Active: true, CreatedAt: now},
		domain.Branch{ID: branchID, OrganizationID: orgID, Name: "Main", IsDefault: true, CreatedAt: now},
		domain.UserAccount{
			ID:             userID,
			OrganizationID: orgID,
			Username:       fmt.Sprintf("it-owner-%d", stamp),
			Password:       "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
			Role:           domain.RoleOwner,
			Active:         true,
			CreatedAt:      now,
		},
	)
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		ID:             fmt.Sprintf("prod-it-%d", stamp),
		OrganizationID: orgID,
		Name:           "Integration Biscuit",
		Lifecycle:      domain.LifecycleActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	variant, err := s.CreateVariant(ctx, domain.ProductVariant{
		ID:                   fmt.Sprintf("var-it-%d", stamp),
		OrganizationID:       orgID,
		ProductID:            product.ID,
		Name:                 "Pack of 10",
		SKU:                  fmt.Sprintf("IT-BIS-%d", stamp),
		SellingPriceCentavos: 4500,
		CapitalCostCentavos:  3000,
		LowStockThreshold:    2,
		Lifecycle:            domain.LifecycleActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, 10, userID)
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	created, err := s.CreateSale(ctx, domain.Transaction{
		OrganizationID: orgID,
		BranchID:       branchID,
		UserID:         userID,
		PaymentMethod:  "cash",
		Items: []domain.TransactionItem{
			{VariantID: variant.ID, Quantity: 2, UnitPriceCentavos: -1, UnitCapitalCostCentavos: -1},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.SubtotalCentavos != 9000 || created.TotalCapitalCostCentavos != 6000 || created.GrossProfitCentavos != 3000 {
		t.Fatalf("unexpected totals: subtotal=%d cost=%d profit=%d",
			created.SubtotalCentavos, created.TotalCapitalCostCentavos, created.GrossProfitCentavos)
	}
	wantPrefix := fmt.Sprintf("TXN-%d-", time.Now().UTC().Year())
	if len(created.TransactionNumber) <= len(wantPrefix) || created.TransactionNumber[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("unexpected transaction number %s", created.TransactionNumber)
	}

	// Overselling fails atomically and leaves the quantity untouched.
	_, err = s.CreateSale(ctx, domain.Transaction{
		OrganizationID: orgID,
		BranchID:       branchID,
		UserID:         userID,
		PaymentMethod:  "cash",
		Items: []domain.TransactionItem{
			{VariantID: variant.ID, Quantity: 99, UnitPriceCentavos: -1, UnitCapitalCostCentavos: -1},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_records
		WHERE branch_id = $1 AND variant_id = $2
	`, branchID, variant.ID).Scan(&qty); err != nil {
		t.Fatalf("query quantity: %v", err)
	}
	if qty != 8 {
		t.Fatalf("expected quantity 8 after one sale of 2, got %d", qty)
	}

	result, err := s.AdjustStock(ctx, domain.StockAdjustmentRequest{
		OrganizationID: orgID,
		BranchID:       branchID,
		UserID:         userID,
		VariantID:      variant.ID,
		Quantity:       -20,
		MovementType:   domain.MovementTypeAdjustment,
		Notes:          "integration clamp",
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if result.QuantityBefore != 8 || result.QuantityAfter != 0 {
		t.Fatalf("expected clamp 8 -> 0, got %d -> %d", result.QuantityBefore, result.QuantityAfter)
	}

	movements, err := s.ListStockMovements(ctx, orgID, branchID, variant.ID, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	replayed := 0
	for _, m := range movements {
		replayed += m.QuantityChange
	}
	if replayed != 0 {
		t.Fatalf("expected movement replay to reach 0, got %d", replayed)
	}
}
