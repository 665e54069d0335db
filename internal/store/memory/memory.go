// Package memory implements store.Repository with in-process maps. A single
// mutex held for the duration of each mutation gives the same per-pair
// serialization the postgres implementation gets from row locks, which makes
// this store suitable for dev mode and for exercising the engines in tests.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
	"tindahan/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	organizations map[string]domain.Organization
	branches      map[string]domain.Branch
	products      map[string]domain.Product
	variants      map[string]domain.ProductVariant
	inventory     map[string]domain.InventoryRecord
	movements     []domain.StockMovement
	transactions  map[string]*domain.Transaction
	txnCounters   map[string]int
	auditLogs     []domain.AuditLog
	usersByID     map[string]domain.UserAccount
	userIndex     map[string]string
}

func New() *Store {
	return &Store{
		organizations: make(map[string]domain.Organization),
		branches:      make(map[string]domain.Branch),
		products:      make(map[string]domain.Product),
		variants:      make(map[string]domain.ProductVariant),
		inventory:     make(map[string]domain.InventoryRecord),
		movements:     make([]domain.StockMovement, 0, 256),
		transactions:  make(map[string]*domain.Transaction),
		txnCounters:   make(map[string]int),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		usersByID:     make(map[string]domain.UserAccount),
		userIndex:     make(map[string]string),
	}
}

// NewSeeded returns a store preloaded with a demo sari-sari store tenant so
// the server is usable immediately in dev mode. Seed credentials come from
// SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD, with noisy dev defaults.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	org := domain.Organization{ID: "org-demo", Name: "Tindahan ni Aling Nena", Active: true, CreatedAt: now}
	branch := domain.Branch{ID: "branch-demo-main", OrganizationID: org.ID, Name: "Main Branch", Address: "Quezon City", IsDefault: true, CreatedAt: now}
	s.organizations[org.ID] = org
	s.branches[branch.ID] = branch

	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"user-demo-owner", "nena", ownerPwd, domain.RoleOwner},
		{"user-demo-staff", "jun", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		account := domain.UserAccount{
			ID:             u.id,
			OrganizationID: org.ID,
			Username:       u.username,
			Password:       string(hash),
			Role:           u.role,
			Active:         true,
			CreatedAt:      now,
		}
		s.usersByID[account.ID] = account
		s.userIndex[account.Username] = account.ID
	}

	type seedVariant struct {
		name      string
		sku       string
		price     int64
		cost      int64
		threshold int
		stock     int
	}
	seed := []struct {
		product  domain.Product
		variants []seedVariant
	}{
		{
			product: domain.Product{Name: "Instant Pancit Canton", Brand: "Lucky Me", Category: "grocery"},
			variants: []seedVariant{
				{"Original 60g", "PC-ORIG-60", 1500, 1100, 20, 120},
				{"Chilimansi 60g", "PC-CHIL-60", 1500, 1100, 20, 96},
			},
		},
		{
			product: domain.Product{Name: "3-in-1 Coffee", Brand: "Kopiko", Category: "beverage"},
			variants: []seedVariant{
				{"Brown 25g", "KOP-BRN-25", 1100, 800, 30, 200},
				{"Black 25g", "KOP-BLK-25", 1100, 780, 30, 150},
			},
		},
		{
			product: domain.Product{Name: "Canned Sardines", Brand: "Ligo", Category: "grocery"},
			variants: []seedVariant{
				{"Tomato Sauce 155g", "LIGO-TOM-155", 2500, 1900, 15, 80},
			},
		},
		{
			product: domain.Product{Name: "Laundry Detergent", Brand: "Surf", Category: "household"},
			variants: []seedVariant{
				{"Powder 65g", "SURF-PWD-65", 1200, 900, 25, 140},
			},
		},
		{
			product: domain.Product{Name: "Soft Drinks", Brand: "Coca-Cola", Category: "beverage"},
			variants: []seedVariant{
				{"Sakto 200ml", "COKE-SAK-200", 1500, 1150, 24, 72},
				{"Mismo 300ml", "COKE-MIS-300", 2200, 1700, 24, 48},
			},
		},
	}
	for _, entry := range seed {
		p := entry.product
		p.ID = xid.New("prod")
		p.OrganizationID = org.ID
		p.Lifecycle = domain.LifecycleActive
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		for _, v := range entry.variants {
			variant := domain.ProductVariant{
				ID:                   xid.New("var"),
				OrganizationID:       org.ID,
				ProductID:            p.ID,
				Name:                 v.name,
				SKU:                  v.sku,
				SellingPriceCentavos: v.price,
				CapitalCostCentavos:  v.cost,
				LowStockThreshold:    v.threshold,
				Lifecycle:            domain.LifecycleActive,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			s.variants[variant.ID] = variant
			s.inventory[invKey(branch.ID, variant.ID)] = domain.InventoryRecord{
				OrganizationID: org.ID,
				BranchID:       branch.ID,
				VariantID:      variant.ID,
				Quantity:       v.stock,
				UpdatedAt:      now,
			}
			s.movements = append(s.movements, domain.StockMovement{
				ID:             xid.New("mov"),
				OrganizationID: org.ID,
				BranchID:       branch.ID,
				VariantID:      variant.ID,
				UserID:         "user-demo-owner",
				MovementType:   domain.MovementTypeInitialStock,
				QuantityChange: v.stock,
				QuantityBefore: 0,
				QuantityAfter:  v.stock,
				ReferenceType:  domain.MovementReferenceManual,
				Notes:          "Seed stock",
				CreatedAt:      now,
			})
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func invKey(branchID, variantID string) string {
	return branchID + "|" + variantID
}

func (s *Store) CreateOrganization(_ context.Context, org domain.Organization, branch domain.Branch, owner domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userIndex[owner.Username]; taken {
		return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
	}
	branch.IsDefault = true
	s.organizations[org.ID] = org
	s.branches[branch.ID] = branch
	s.usersByID[owner.ID] = owner
	s.userIndex[owner.Username] = owner.ID
	return nil
}

func (s *Store) GetOrganization(_ context.Context, organizationID string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.organizations[organizationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &org, nil
}

func (s *Store) GetUser(_ context.Context, organizationID string, userID string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[userID]
	if !ok || user.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIndex[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userIndex[user.Username]; taken {
		return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
	}
	s.usersByID[user.ID] = user
	s.userIndex[user.Username] = user.ID
	return nil
}

func (s *Store) ListBranches(_ context.Context, organizationID string) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, 4)
	for _, b := range s.branches {
		if b.OrganizationID == organizationID {
			branches = append(branches, b)
		}
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranch(_ context.Context, organizationID string, branchID string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[branchID]
	if !ok || b.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hasAny := false
	for id, b := range s.branches {
		if b.OrganizationID != branch.OrganizationID {
			continue
		}
		hasAny = true
		if branch.IsDefault && b.IsDefault {
			b.IsDefault = false
			s.branches[id] = b
		}
	}
	if !hasAny {
		branch.IsDefault = true
	}
	s.branches[branch.ID] = branch

	// Every variant gets a zero-quantity record at the new branch so
	// inventory listings and adjustments never race record creation.
	now := time.Now().UTC()
	for _, v := range s.variants {
		if v.OrganizationID != branch.OrganizationID || v.Lifecycle == domain.LifecycleDeleted {
			continue
		}
		s.inventory[invKey(branch.ID, v.ID)] = domain.InventoryRecord{
			OrganizationID: branch.OrganizationID,
			BranchID:       branch.ID,
			VariantID:      v.ID,
			UpdatedAt:      now,
		}
	}
	return &branch, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.branches[branch.ID]
	if !ok || current.OrganizationID != branch.OrganizationID {
		return nil, store.ErrNotFound
	}
	if current.IsDefault && !branch.IsDefault {
		return nil, store.ErrBranchIsDefault
	}
	if branch.IsDefault && !current.IsDefault {
		for id, b := range s.branches {
			if b.OrganizationID == branch.OrganizationID && b.IsDefault {
				b.IsDefault = false
				s.branches[id] = b
			}
		}
	}
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) DeleteBranch(_ context.Context, organizationID string, branchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[branchID]
	if !ok || b.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	if b.IsDefault {
		return store.ErrBranchIsDefault
	}
	delete(s.branches, branchID)
	for key, rec := range s.inventory {
		if rec.BranchID == branchID {
			delete(s.inventory, key)
		}
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context, organizationID string, includeInactive bool, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.OrganizationID != organizationID || p.Lifecycle == domain.LifecycleDeleted {
			continue
		}
		if !includeInactive && p.Lifecycle != domain.LifecycleActive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, organizationID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.OrganizationID != organizationID || p.Lifecycle == domain.LifecycleDeleted {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok || current.OrganizationID != product.OrganizationID {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) GetVariant(_ context.Context, organizationID string, variantID string) (*domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[variantID]
	if !ok || v.OrganizationID != organizationID || v.Lifecycle == domain.LifecycleDeleted {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.ProductVariant, initialStock int, userID string) (*domain.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.variants {
		if existing.OrganizationID == variant.OrganizationID &&
			existing.Lifecycle != domain.LifecycleDeleted &&
			existing.SKU == variant.SKU {
			return nil, store.ErrDuplicateSKU
		}
	}
	s.variants[variant.ID] = variant

	now := time.Now().UTC()
	var defaultBranchID string
	for _, b := range s.branches {
		if b.OrganizationID != variant.OrganizationID {
			continue
		}
		s.inventory[invKey(b.ID, variant.ID)] = domain.InventoryRecord{
			OrganizationID: variant.OrganizationID,
			BranchID:       b.ID,
			VariantID:      variant.ID,
			UpdatedAt:      now,
		}
		if b.IsDefault {
			defaultBranchID = b.ID
		}
	}
	if initialStock > 0 && defaultBranchID != "" {
		key := invKey(defaultBranchID, variant.ID)
		rec := s.inventory[key]
		rec.Quantity = initialStock
		rec.UpdatedAt = now
		s.inventory[key] = rec
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			OrganizationID: variant.OrganizationID,
			BranchID:       defaultBranchID,
			VariantID:      variant.ID,
			UserID:         userID,
			MovementType:   domain.MovementTypeInitialStock,
			QuantityChange: initialStock,
			QuantityBefore: 0,
			QuantityAfter:  initialStock,
			ReferenceType:  domain.MovementReferenceManual,
			Notes:          "Initial stock",
			CreatedAt:      now,
		})
	}
	return &variant, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.ProductVariant) (*domain.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.variants[variant.ID]
	if !ok || current.OrganizationID != variant.OrganizationID {
		return nil, store.ErrNotFound
	}
	s.variants[variant.ID] = variant
	return &variant, nil
}

func (s *Store) ListCatalog(_ context.Context, organizationID string) ([]domain.CatalogVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog := make([]domain.CatalogVariant, 0, len(s.variants))
	for _, v := range s.variants {
		if v.OrganizationID != organizationID || v.Lifecycle != domain.LifecycleActive {
			continue
		}
		p, ok := s.products[v.ProductID]
		if !ok || p.Lifecycle != domain.LifecycleActive {
			continue
		}
		catalog = append(catalog, domain.CatalogVariant{
			VariantID:            v.ID,
			ProductID:            p.ID,
			ProductName:          p.Name,
			VariantName:          v.Name,
			SKU:                  v.SKU,
			SellingPriceCentavos: v.SellingPriceCentavos,
			CapitalCostCentavos:  v.CapitalCostCentavos,
			LowStockThreshold:    v.LowStockThreshold,
		})
	}
	slices.SortFunc(catalog, func(a, b domain.CatalogVariant) int {
		if a.ProductName != b.ProductName {
			return strings.Compare(a.ProductName, b.ProductName)
		}
		return strings.Compare(a.VariantName, b.VariantName)
	})
	return catalog, nil
}

func (s *Store) ListInventory(_ context.Context, organizationID string, branchID string, lowOnly bool, limit int) ([]domain.InventoryLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.InventoryLevel, 0, 32)
	for _, rec := range s.inventory {
		if rec.OrganizationID != organizationID {
			continue
		}
		if branchID != "" && rec.BranchID != branchID {
			continue
		}
		v, ok := s.variants[rec.VariantID]
		if !ok || v.Lifecycle == domain.LifecycleDeleted {
			continue
		}
		p := s.products[v.ProductID]
		if lowOnly && rec.Quantity > v.LowStockThreshold {
			continue
		}
		levels = append(levels, domain.InventoryLevel{
			BranchID:          rec.BranchID,
			VariantID:         rec.VariantID,
			ProductName:       p.Name,
			VariantName:       v.Name,
			SKU:               v.SKU,
			Quantity:          rec.Quantity,
			LowStockThreshold: v.LowStockThreshold,
		})
	}
	slices.SortFunc(levels, func(a, b domain.InventoryLevel) int {
		if a.ProductName != b.ProductName {
			return strings.Compare(a.ProductName, b.ProductName)
		}
		return strings.Compare(a.VariantName, b.VariantName)
	})
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	return levels, nil
}

func (s *Store) ListStockMovements(_ context.Context, organizationID string, branchID string, variantID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, 32)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.OrganizationID != organizationID {
			continue
		}
		if branchID != "" && m.BranchID != branchID {
			continue
		}
		if variantID != "" && m.VariantID != variantID {
			continue
		}
		movements = append(movements, m)
		if limit > 0 && len(movements) >= limit {
			break
		}
	}
	return movements, nil
}

// CreateSale runs the whole sale under the write lock: resolve and snapshot
// every line, verify stock for the full cart, then apply decrements,
// movements and the audit row together. Any failure leaves the store
// untouched because nothing is written before the checks pass.
func (s *Store) CreateSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[tx.BranchID]
	if !ok || branch.OrganizationID != tx.OrganizationID {
		return nil, store.ErrInvalidBranch
	}

	type resolved struct {
		variant domain.ProductVariant
		product domain.Product
	}
	resolvedByVariant := make(map[string]resolved, len(tx.Items))
	for _, item := range tx.Items {
		if _, seen := resolvedByVariant[item.VariantID]; seen {
			continue
		}
		v, ok := s.variants[item.VariantID]
		if !ok || v.OrganizationID != tx.OrganizationID || v.Lifecycle != domain.LifecycleActive {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidVariant, item.VariantID)
		}
		p := s.products[v.ProductID]
		if p.Lifecycle == domain.LifecycleDeleted {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidVariant, item.VariantID)
		}
		resolvedByVariant[item.VariantID] = resolved{variant: v, product: p}
	}

	// Availability check over a working copy so repeated variants in one
	// cart are counted cumulatively.
	working := make(map[string]int, len(resolvedByVariant))
	for variantID := range resolvedByVariant {
		working[variantID] = s.inventory[invKey(tx.BranchID, variantID)].Quantity
	}
	for _, item := range tx.Items {
		res := resolvedByVariant[item.VariantID]
		if working[item.VariantID] < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductName: res.product.Name,
				VariantName: res.variant.Name,
				Available:   working[item.VariantID],
				Requested:   item.Quantity,
			}
		}
		working[item.VariantID] -= item.Quantity
	}

	now := time.Now().UTC()
	year := now.Year()
	counterKey := fmt.Sprintf("%s|%d", tx.OrganizationID, year)
	s.txnCounters[counterKey]++
	tx.ID = xid.New("txn")
	tx.TransactionNumber = fmt.Sprintf("TXN-%d-%04d", year, s.txnCounters[counterKey])
	tx.PaymentStatus = domain.PaymentStatusCompleted
	tx.CreatedAt = now

	tx.SubtotalCentavos = 0
	tx.TotalCapitalCostCentavos = 0
	for i := range tx.Items {
		item := &tx.Items[i]
		res := resolvedByVariant[item.VariantID]
		if item.UnitPriceCentavos < 0 {
			item.UnitPriceCentavos = res.variant.SellingPriceCentavos
		}
		if item.UnitCapitalCostCentavos < 0 {
			item.UnitCapitalCostCentavos = res.variant.CapitalCostCentavos
		}
		item.ID = xid.New("txi")
		item.TransactionID = tx.ID
		item.ProductName = res.product.Name
		item.VariantName = res.variant.Name
		item.SKU = res.variant.SKU
		item.LineTotalCentavos = item.UnitPriceCentavos * int64(item.Quantity)
		item.LineCapitalCostCentavos = item.UnitCapitalCostCentavos * int64(item.Quantity)
		item.LineProfitCentavos = item.LineTotalCentavos - item.LineCapitalCostCentavos
		tx.SubtotalCentavos += item.LineTotalCentavos
		tx.TotalCapitalCostCentavos += item.LineCapitalCostCentavos
	}
	tx.GrossProfitCentavos = tx.SubtotalCentavos - tx.TotalCapitalCostCentavos

	for _, item := range tx.Items {
		key := invKey(tx.BranchID, item.VariantID)
		rec := s.inventory[key]
		before := rec.Quantity
		rec.OrganizationID = tx.OrganizationID
		rec.BranchID = tx.BranchID
		rec.VariantID = item.VariantID
		rec.Quantity = before - item.Quantity
		rec.UpdatedAt = now
		s.inventory[key] = rec
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			OrganizationID: tx.OrganizationID,
			BranchID:       tx.BranchID,
			VariantID:      item.VariantID,
			UserID:         tx.UserID,
			MovementType:   domain.MovementTypeSale,
			QuantityChange: -item.Quantity,
			QuantityBefore: before,
			QuantityAfter:  rec.Quantity,
			ReferenceType:  domain.MovementReferenceTransaction,
			ReferenceID:    tx.ID,
			Notes:          "Sale: " + tx.TransactionNumber,
			CreatedAt:      now,
		})
	}

	txCopy := tx
	txCopy.Items = slices.Clone(tx.Items)
	s.transactions[tx.ID] = &txCopy
	s.auditLogs = append(s.auditLogs, domain.AuditLog{
		ID:             xid.New("aud"),
		OrganizationID: tx.OrganizationID,
		UserID:         tx.UserID,
		Action:         "sale.create",
		EntityType:     "transaction",
		EntityID:       tx.ID,
		NewValues:      fmt.Sprintf(`{"transaction_number":%q,"subtotal_centavos":%d}`, tx.TransactionNumber, tx.SubtotalCentavos),
		CreatedAt:      now,
	})
	return &tx, nil
}

func (s *Store) GetTransaction(_ context.Context, organizationID string, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok || tx.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	cp := *tx
	cp.Items = slices.Clone(tx.Items)
	return &cp, nil
}

func (s *Store) ListTransactions(_ context.Context, organizationID string, branchID string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if tx.OrganizationID != organizationID {
			continue
		}
		if branchID != "" && tx.BranchID != branchID {
			continue
		}
		cp := *tx
		cp.Items = slices.Clone(tx.Items)
		txs = append(txs, cp)
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// AdjustStock applies a single manual movement under the write lock.
// stock_out below zero is rejected; a negative adjustment larger than the
// current quantity clamps at zero and records the effective delta, so the
// movement trail still replays to the stored quantity.
func (s *Store) AdjustStock(_ context.Context, req domain.StockAdjustmentRequest) (*domain.StockAdjustmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[req.BranchID]
	if !ok || branch.OrganizationID != req.OrganizationID {
		return nil, store.ErrInvalidBranch
	}
	v, ok := s.variants[req.VariantID]
	if !ok || v.OrganizationID != req.OrganizationID || v.Lifecycle == domain.LifecycleDeleted {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidVariant, req.VariantID)
	}

	key := invKey(req.BranchID, req.VariantID)
	rec := s.inventory[key]
	before := rec.Quantity

	var delta int
	switch req.MovementType {
	case domain.MovementTypeStockIn:
		delta = req.Quantity
	case domain.MovementTypeStockOut:
		if before-req.Quantity < 0 {
			p := s.products[v.ProductID]
			return nil, &store.InsufficientStockError{
				ProductName: p.Name,
				VariantName: v.Name,
				Available:   before,
				Requested:   req.Quantity,
			}
		}
		delta = -req.Quantity
	case domain.MovementTypeAdjustment:
		delta = req.Quantity
		if before+delta < 0 {
			delta = -before
		}
	default:
		return nil, fmt.Errorf("%w: movement type %q", store.ErrInvalidInput, req.MovementType)
	}

	now := time.Now().UTC()
	rec.OrganizationID = req.OrganizationID
	rec.BranchID = req.BranchID
	rec.VariantID = req.VariantID
	rec.Quantity = before + delta
	rec.UpdatedAt = now
	s.inventory[key] = rec
	s.movements = append(s.movements, domain.StockMovement{
		ID:             xid.New("mov"),
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
		VariantID:      req.VariantID,
		UserID:         req.UserID,
		MovementType:   req.MovementType,
		QuantityChange: delta,
		QuantityBefore: before,
		QuantityAfter:  rec.Quantity,
		ReferenceType:  domain.MovementReferenceManual,
		Notes:          req.Notes,
		CreatedAt:      now,
	})
	return &domain.StockAdjustmentResult{QuantityBefore: before, QuantityAfter: rec.Quantity}, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, organizationID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.OrganizationID != organizationID {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}
