package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
	"tindahan/backend/internal/store/memory"
)

type fixture struct {
	svc      *Service
	ownerCtx context.Context
	staffCtx context.Context
	orgID    string
	branchID string
	// 500ml bottle: price 45000, cost 30000, 10 on hand
	variantA string
	// 1L bottle: price 80000, cost 55000, 4 on hand
	variantB string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	svc := New(memory.New(), cache.NoopCatalogCache{}, time.Minute)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, domain.SignupRequest{
		OrganizationName: "Test Tindahan",
		Username:         "owner1",
		Password:         "owner-secret-1",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	ownerCtx := WithActor(ctx, domain.Actor{
		UserID:         mustUserID(t, svc, "owner1"),
		OrganizationID: signup.Organization.ID,
		Role:           domain.RoleOwner,
	})

	staff, err := svc.CreateUser(ownerCtx, domain.UserCreateRequest{
		Username: "staff1",
		Password: "staff-secret-1",
		Role:     domain.RoleStaff,
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	staffCtx := WithActor(ctx, domain.Actor{
		UserID:         staff.ID,
		OrganizationID: signup.Organization.ID,
		Role:           domain.RoleStaff,
	})

	product, err := svc.CreateProduct(ownerCtx, domain.ProductCreateRequest{Name: "Mineral Water", Brand: "Wilkins"})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	variantA, err := svc.CreateVariant(ownerCtx, domain.VariantCreateRequest{
		ProductID:            product.ID,
		Name:                 "500ml",
		SKU:                  "WLK-500",
		SellingPriceCentavos: 45000,
		CapitalCostCentavos:  30000,
		LowStockThreshold:    3,
		InitialStock:         10,
	})
	if err != nil {
		t.Fatalf("create variant A failed: %v", err)
	}
	variantB, err := svc.CreateVariant(ownerCtx, domain.VariantCreateRequest{
		ProductID:            product.ID,
		Name:                 "1L",
		SKU:                  "WLK-1000",
		SellingPriceCentavos: 80000,
		CapitalCostCentavos:  55000,
		LowStockThreshold:    2,
		InitialStock:         4,
	})
	if err != nil {
		t.Fatalf("create variant B failed: %v", err)
	}

	return &fixture{
		svc:      svc,
		ownerCtx: ownerCtx,
		staffCtx: staffCtx,
		orgID:    signup.Organization.ID,
		branchID: signup.Branch.ID,
		variantA: variantA.ID,
		variantB: variantB.ID,
	}
}

func mustUserID(t *testing.T, svc *Service, username string) string {
	t.Helper()
	user, err := svc.repo.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup user %s failed: %v", username, err)
	}
	return user.ID
}

func (f *fixture) quantity(t *testing.T, variantID string) int {
	t.Helper()
	levels, err := f.svc.ListInventory(f.ownerCtx, f.branchID, false, 0)
	if err != nil {
		t.Fatalf("list inventory failed: %v", err)
	}
	for _, lvl := range levels {
		if lvl.VariantID == variantID {
			return lvl.Quantity
		}
	}
	t.Fatalf("no inventory record for variant %s", variantID)
	return 0
}

func TestProcessSaleComputesTotals(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	if result.SubtotalCentavos != 90000 {
		t.Fatalf("expected subtotal 90000, got %d", result.SubtotalCentavos)
	}
	if result.TotalCapitalCostCentavos != 60000 {
		t.Fatalf("expected capital cost 60000, got %d", result.TotalCapitalCostCentavos)
	}
	if result.GrossProfitCentavos != 30000 {
		t.Fatalf("expected gross profit 30000, got %d", result.GrossProfitCentavos)
	}
	wantPrefix := fmt.Sprintf("TXN-%d-", time.Now().UTC().Year())
	if !strings.HasPrefix(result.TransactionNumber, wantPrefix) {
		t.Fatalf("expected transaction number prefix %s, got %s", wantPrefix, result.TransactionNumber)
	}
	if got := f.quantity(t, f.variantA); got != 8 {
		t.Fatalf("expected quantity 8 after sale, got %d", got)
	}

	movements, err := f.svc.ListStockMovements(f.ownerCtx, f.branchID, f.variantA, 0)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	sale := movements[0]
	if sale.MovementType != domain.MovementTypeSale {
		t.Fatalf("expected newest movement to be a sale, got %s", sale.MovementType)
	}
	if sale.QuantityChange != -2 || sale.QuantityBefore != 10 || sale.QuantityAfter != 8 {
		t.Fatalf("unexpected sale movement: change=%d before=%d after=%d", sale.QuantityChange, sale.QuantityBefore, sale.QuantityAfter)
	}
	if sale.ReferenceType != domain.MovementReferenceTransaction || sale.ReferenceID != result.TransactionID {
		t.Fatalf("sale movement should reference transaction %s", result.TransactionID)
	}

	logs, err := f.svc.ListAuditLogs(f.ownerCtx, 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "sale.create" && entry.EntityID == result.TransactionID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sale.create audit entry for %s", result.TransactionID)
	}
}

func centavos(v int64) *int64 {
	return &v
}

func TestProcessSaleHonorsCallerLineValues(t *testing.T) {
	f := newFixture(t)

	// Catalog says 45000 / 30000; the caller overrides both.
	result, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items: []domain.SaleLine{{
			VariantID:         f.variantA,
			Quantity:          2,
			UnitPriceCentavos: centavos(40000),
			UnitCostCentavos:  centavos(20000),
		}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if result.SubtotalCentavos != 80000 {
		t.Fatalf("expected subtotal 80000 from caller price, got %d", result.SubtotalCentavos)
	}
	if result.TotalCapitalCostCentavos != 40000 {
		t.Fatalf("expected capital cost 40000 from caller cost, got %d", result.TotalCapitalCostCentavos)
	}
	if result.GrossProfitCentavos != 40000 {
		t.Fatalf("expected gross profit 40000, got %d", result.GrossProfitCentavos)
	}

	tx, err := f.svc.GetTransaction(f.ownerCtx, result.TransactionID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	item := tx.Items[0]
	if item.UnitPriceCentavos != 40000 || item.UnitCapitalCostCentavos != 20000 {
		t.Fatalf("expected caller line values stored, got price=%d cost=%d", item.UnitPriceCentavos, item.UnitCapitalCostCentavos)
	}
}

func TestProcessSaleZeroPriceLineTotalsZero(t *testing.T) {
	f := newFixture(t)

	// An explicit zero is a giveaway, not a request for the catalog price.
	result, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items: []domain.SaleLine{{
			VariantID:         f.variantA,
			Quantity:          2,
			UnitPriceCentavos: centavos(0),
		}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if result.SubtotalCentavos != 0 {
		t.Fatalf("expected subtotal 0 for a comped line, got %d", result.SubtotalCentavos)
	}
	if result.TotalCapitalCostCentavos != 60000 {
		t.Fatalf("expected catalog capital cost 60000, got %d", result.TotalCapitalCostCentavos)
	}
	if result.GrossProfitCentavos != -60000 {
		t.Fatalf("expected gross profit -60000, got %d", result.GrossProfitCentavos)
	}
	if got := f.quantity(t, f.variantA); got != 8 {
		t.Fatalf("expected stock still decremented to 8, got %d", got)
	}
}

func TestProcessSaleRejectsNegativeLineValues(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1, UnitPriceCentavos: centavos(-1)}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative price, got %v", err)
	}

	_, err = f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1, UnitCostCentavos: centavos(-500)}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative cost, got %v", err)
	}
	if got := f.quantity(t, f.variantA); got != 10 {
		t.Fatalf("expected quantity unchanged at 10, got %d", got)
	}
}

func TestProcessSaleSnapshotsVariantIdentity(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "gcash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	// Later catalog edits must not change the stored receipt.
	newName := "Renamed"
	if _, err := f.svc.UpdateVariant(f.ownerCtx, f.variantA, domain.VariantUpdateRequest{Name: &newName}); err != nil {
		t.Fatalf("update variant failed: %v", err)
	}

	tx, err := f.svc.GetTransaction(f.ownerCtx, result.TransactionID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if len(tx.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(tx.Items))
	}
	item := tx.Items[0]
	if item.VariantName != "500ml" || item.SKU != "WLK-500" {
		t.Fatalf("expected snapshot of original variant identity, got %s / %s", item.VariantName, item.SKU)
	}
	if item.UnitPriceCentavos != 45000 || item.UnitCapitalCostCentavos != 30000 {
		t.Fatalf("expected snapshot prices, got price=%d cost=%d", item.UnitPriceCentavos, item.UnitCapitalCostCentavos)
	}
}

func TestProcessSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 11}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := f.quantity(t, f.variantA); got != 10 {
		t.Fatalf("expected quantity unchanged at 10, got %d", got)
	}
	txs, err := f.svc.ListTransactions(f.ownerCtx, f.branchID, 0)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions after failed sale, got %d", len(txs))
	}
}

func TestProcessSaleMultiLineFailureRollsBackAllLines(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items: []domain.SaleLine{
			{VariantID: f.variantA, Quantity: 2},
			{VariantID: f.variantB, Quantity: 5},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := f.quantity(t, f.variantA); got != 10 {
		t.Fatalf("fulfillable line must not be applied, variant A quantity = %d", got)
	}
	if got := f.quantity(t, f.variantB); got != 4 {
		t.Fatalf("variant B quantity = %d, want 4", got)
	}
}

func TestProcessSaleCountsRepeatedVariantCumulatively(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items: []domain.SaleLine{
			{VariantID: f.variantA, Quantity: 6},
			{VariantID: f.variantA, Quantity: 5},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for cumulative 11 of 10, got %v", err)
	}
	if got := f.quantity(t, f.variantA); got != 10 {
		t.Fatalf("expected quantity unchanged at 10, got %d", got)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)

	// Drain variant B to a single unit.
	_, err := f.svc.AdjustStock(f.ownerCtx, domain.StockAdjustmentRequest{
		BranchID:     f.branchID,
		VariantID:    f.variantB,
		Quantity:     3,
		MovementType: domain.MovementTypeStockOut,
		Notes:        "drain to one unit",
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
				BranchID:      f.branchID,
				PaymentMethod: "cash",
				Items:         []domain.SaleLine{{VariantID: f.variantB, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one sale to win the last unit, got %d", succeeded)
	}
	if got := f.quantity(t, f.variantB); got != 0 {
		t.Fatalf("expected quantity 0, got %d", got)
	}
}

func TestTransactionNumbersUniqueUnderConcurrency(t *testing.T) {
	f := newFixture(t)

	const sales = 8
	var wg sync.WaitGroup
	results := make([]domain.SaleResult, sales)
	errs := make([]error, sales)
	for i := 0; i < sales; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
				BranchID:      f.branchID,
				PaymentMethod: "cash",
				Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, sales)
	for i := 0; i < sales; i++ {
		if errs[i] != nil {
			t.Fatalf("sale %d failed: %v", i, errs[i])
		}
		if seen[results[i].TransactionNumber] {
			t.Fatalf("duplicate transaction number %s", results[i].TransactionNumber)
		}
		seen[results[i].TransactionNumber] = true
	}
	if got := f.quantity(t, f.variantA); got != 10-sales {
		t.Fatalf("expected quantity %d, got %d", 10-sales, got)
	}
}

func TestAdjustStockClampsNegativeAdjustmentAtZero(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.AdjustStock(f.ownerCtx, domain.StockAdjustmentRequest{
		BranchID:     f.branchID,
		VariantID:    f.variantB,
		Quantity:     -7,
		MovementType: domain.MovementTypeAdjustment,
		Notes:        "shrinkage count",
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if result.QuantityBefore != 4 || result.QuantityAfter != 0 {
		t.Fatalf("expected 4 -> 0, got %d -> %d", result.QuantityBefore, result.QuantityAfter)
	}

	// The movement records the effective delta, not the requested one.
	movements, err := f.svc.ListStockMovements(f.ownerCtx, f.branchID, f.variantB, 1)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if movements[0].QuantityChange != -4 {
		t.Fatalf("expected effective delta -4, got %d", movements[0].QuantityChange)
	}
}

func TestAdjustStockStockOutRejectsBelowZero(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdjustStock(f.ownerCtx, domain.StockAdjustmentRequest{
		BranchID:     f.branchID,
		VariantID:    f.variantB,
		Quantity:     5,
		MovementType: domain.MovementTypeStockOut,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := f.quantity(t, f.variantB); got != 4 {
		t.Fatalf("expected quantity unchanged at 4, got %d", got)
	}
}

func TestMovementTrailReplaysToCurrentQuantity(t *testing.T) {
	f := newFixture(t)

	steps := []domain.StockAdjustmentRequest{
		{BranchID: f.branchID, VariantID: f.variantA, Quantity: 5, MovementType: domain.MovementTypeStockIn, Notes: "delivery"},
		{BranchID: f.branchID, VariantID: f.variantA, Quantity: -2, MovementType: domain.MovementTypeAdjustment, Notes: "recount"},
		{BranchID: f.branchID, VariantID: f.variantA, Quantity: 3, MovementType: domain.MovementTypeStockOut, Notes: "damaged"},
	}
	for _, step := range steps {
		if _, err := f.svc.AdjustStock(f.ownerCtx, step); err != nil {
			t.Fatalf("adjust %s failed: %v", step.MovementType, err)
		}
	}
	if _, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 4}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	movements, err := f.svc.ListStockMovements(f.ownerCtx, f.branchID, f.variantA, 0)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	replayed := 0
	for _, m := range movements {
		replayed += m.QuantityChange
	}
	if got := f.quantity(t, f.variantA); replayed != got {
		t.Fatalf("replayed quantity %d does not match stored quantity %d", replayed, got)
	}
}

func TestInactiveVariantNotSellable(t *testing.T) {
	f := newFixture(t)

	inactive := domain.LifecycleInactive
	if _, err := f.svc.UpdateVariant(f.ownerCtx, f.variantA, domain.VariantUpdateRequest{Lifecycle: &inactive}); err != nil {
		t.Fatalf("update variant failed: %v", err)
	}

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidVariant) {
		t.Fatalf("expected invalid variant, got %v", err)
	}

	catalog, err := f.svc.Catalog(f.staffCtx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	for _, entry := range catalog {
		if entry.VariantID == f.variantA {
			t.Fatalf("inactive variant must not appear in catalog")
		}
	}
}

func TestDeletedProductPullsVariantsFromSale(t *testing.T) {
	f := newFixture(t)

	variant, err := f.svc.repo.GetVariant(context.Background(), f.orgID, f.variantA)
	if err != nil {
		t.Fatalf("get variant failed: %v", err)
	}
	if err := f.svc.DeleteProduct(f.ownerCtx, variant.ProductID); err != nil {
		t.Fatalf("delete product failed: %v", err)
	}

	catalog, err := f.svc.Catalog(f.staffCtx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(catalog) != 0 {
		t.Fatalf("expected empty catalog after product delete, got %d entries", len(catalog))
	}

	_, err = f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidVariant) {
		t.Fatalf("expected invalid variant after product delete, got %v", err)
	}

	// Deleted is terminal.
	active := domain.LifecycleActive
	if _, err := f.svc.UpdateProduct(f.ownerCtx, variant.ProductID, domain.ProductUpdateRequest{Lifecycle: &active}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted product to stay gone, got %v", err)
	}
}

func TestSaleRejectsUnknownBranch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      "branch-elsewhere",
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidBranch) {
		t.Fatalf("expected invalid branch, got %v", err)
	}
}

func TestSaleRejectsUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(f.staffCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "barter",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSaleRequiresActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessSale(context.Background(), domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestStaffCannotMutateCatalog(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProduct(f.staffCtx, domain.ProductCreateRequest{Name: "Contraband"})
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for staff create, got %v", err)
	}
	if _, err := f.svc.ListAuditLogs(f.staffCtx, 10); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for staff audit read, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)

	other, err := f.svc.Signup(context.Background(), domain.SignupRequest{
		OrganizationName: "Other Store",
		Username:         "owner2",
		Password:         "owner-secret-2",
	})
	if err != nil {
		t.Fatalf("second signup failed: %v", err)
	}
	otherCtx := WithActor(context.Background(), domain.Actor{
		UserID:         mustUserID(t, f.svc, "owner2"),
		OrganizationID: other.Organization.ID,
		Role:           domain.RoleOwner,
	})

	catalog, err := f.svc.Catalog(otherCtx)
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(catalog) != 0 {
		t.Fatalf("new tenant must not see another tenant's catalog, got %d entries", len(catalog))
	}

	// Selling across tenants fails even with real IDs from the other org.
	_, err = f.svc.ProcessSale(otherCtx, domain.SaleRequest{
		BranchID:      f.branchID,
		PaymentMethod: "cash",
		Items:         []domain.SaleLine{{VariantID: f.variantA, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidBranch) {
		t.Fatalf("expected invalid branch across tenants, got %v", err)
	}

	_, err = f.svc.AdjustStock(otherCtx, domain.StockAdjustmentRequest{
		BranchID:     other.Branch.ID,
		VariantID:    f.variantA,
		Quantity:     5,
		MovementType: domain.MovementTypeStockIn,
	})
	if !errors.Is(err, store.ErrInvalidVariant) {
		t.Fatalf("expected invalid variant across tenants, got %v", err)
	}
}

func TestDuplicateSKURejectedWithinTenant(t *testing.T) {
	f := newFixture(t)

	product, err := f.svc.CreateProduct(f.ownerCtx, domain.ProductCreateRequest{Name: "Soda"})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	_, err = f.svc.CreateVariant(f.ownerCtx, domain.VariantCreateRequest{
		ProductID:            product.ID,
		Name:                 "Can",
		SKU:                  "WLK-500",
		SellingPriceCentavos: 2000,
	})
	if !errors.Is(err, store.ErrDuplicateSKU) {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
}

func TestVariantCreateSeedsInventoryEverywhere(t *testing.T) {
	f := newFixture(t)

	branch, err := f.svc.CreateBranch(f.ownerCtx, domain.BranchCreateRequest{Name: "Annex"})
	if err != nil {
		t.Fatalf("create branch failed: %v", err)
	}

	levels, err := f.svc.ListInventory(f.ownerCtx, branch.ID, false, 0)
	if err != nil {
		t.Fatalf("list inventory failed: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected zero-quantity records for both variants at new branch, got %d", len(levels))
	}
	for _, lvl := range levels {
		if lvl.Quantity != 0 {
			t.Fatalf("expected zero quantity at new branch, got %d for %s", lvl.Quantity, lvl.SKU)
		}
	}

	// Initial stock lands at the default branch with a movement.
	movements, err := f.svc.ListStockMovements(f.ownerCtx, f.branchID, f.variantA, 0)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	last := movements[len(movements)-1]
	if last.MovementType != domain.MovementTypeInitialStock || last.QuantityChange != 10 {
		t.Fatalf("expected initial_stock movement of 10, got %s %d", last.MovementType, last.QuantityChange)
	}
}

func TestDefaultBranchCannotBeDeleted(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.DeleteBranch(f.ownerCtx, f.branchID); !errors.Is(err, store.ErrBranchIsDefault) {
		t.Fatalf("expected branch-is-default error, got %v", err)
	}

	// Promoting another branch shifts the default and frees the old one.
	annex, err := f.svc.CreateBranch(f.ownerCtx, domain.BranchCreateRequest{Name: "Annex", IsDefault: true})
	if err != nil {
		t.Fatalf("create branch failed: %v", err)
	}
	if !annex.IsDefault {
		t.Fatalf("expected new branch to become default")
	}
	if err := f.svc.DeleteBranch(f.ownerCtx, f.branchID); err != nil {
		t.Fatalf("expected old default to be deletable after promotion, got %v", err)
	}
}

func TestLowStockFilter(t *testing.T) {
	f := newFixture(t)

	// Threshold for variant B is 2; bring it down to 2.
	_, err := f.svc.AdjustStock(f.ownerCtx, domain.StockAdjustmentRequest{
		BranchID:     f.branchID,
		VariantID:    f.variantB,
		Quantity:     2,
		MovementType: domain.MovementTypeStockOut,
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	levels, err := f.svc.ListInventory(f.ownerCtx, f.branchID, true, 0)
	if err != nil {
		t.Fatalf("list inventory failed: %v", err)
	}
	if len(levels) != 1 || levels[0].VariantID != f.variantB {
		t.Fatalf("expected only variant B at or below threshold, got %d entries", len(levels))
	}
}
