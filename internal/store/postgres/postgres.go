package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
	"tindahan/backend/internal/xid"
)

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

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateOrganization(ctx context.Context, org domain.Organization, branch domain.Branch, owner domain.UserAccount) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, active, created_at)
		VALUES ($1,$2,$3,$4)
	`, org.ID, org.Name, org.Active, org.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO branches (id, organization_id, name, address, is_default, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, branch.ID, branch.OrganizationID, branch.Name, branch.Address, branch.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, owner.ID, owner.OrganizationID, owner.Username, owner.Password, owner.Role, owner.Active, owner.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
		}
		return err
	}

	return tx.Commit()
}

func (s *Store) GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at
		FROM organizations
		WHERE id = $1
	`, organizationID).Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *Store) GetUser(ctx context.Context, organizationID string, userID string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, username, password_hash, role, active, created_at
		FROM users
		WHERE id = $1 AND organization_id = $2
	`, userID, organizationID).Scan(&user.ID, &user.OrganizationID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.OrganizationID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.OrganizationID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
	}
	return err
}

func (s *Store) ListBranches(ctx context.Context, organizationID string) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, address, is_default, created_at
		FROM branches
		WHERE organization_id = $1
		ORDER BY name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 4)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Address, &b.IsDefault, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, organizationID string, branchID string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, address, is_default, created_at
		FROM branches
		WHERE id = $1 AND organization_id = $2
	`, branchID, organizationID).Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Address, &b.IsDefault, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM branches WHERE organization_id = $1
	`, branch.OrganizationID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing == 0 {
		branch.IsDefault = true
	}
	if branch.IsDefault {
		_, err = tx.ExecContext(ctx, `
			UPDATE branches SET is_default = false
			WHERE organization_id = $1 AND is_default = true
		`, branch.OrganizationID)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO branches (id, organization_id, name, address, is_default, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, branch.ID, branch.OrganizationID, branch.Name, branch.Address, branch.IsDefault, branch.CreatedAt)
	if err != nil {
		return nil, err
	}

	// Eagerly give every variant a zero-quantity record at the new branch.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_records (organization_id, branch_id, variant_id, quantity, updated_at)
		SELECT $1, $2, id, 0, now()
		FROM product_variants
		WHERE organization_id = $1 AND lifecycle <> 'deleted'
		ON CONFLICT (branch_id, variant_id) DO NOTHING
	`, branch.OrganizationID, branch.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var isDefault bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_default FROM branches
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, branch.ID, branch.OrganizationID).Scan(&isDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	// The default branch cannot be demoted directly; promote another
	// branch instead.
	if isDefault && !branch.IsDefault {
		return nil, store.ErrBranchIsDefault
	}
	if branch.IsDefault && !isDefault {
		_, err = tx.ExecContext(ctx, `
			UPDATE branches SET is_default = false
			WHERE organization_id = $1 AND is_default = true
		`, branch.OrganizationID)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE branches
		SET name = $3, address = $4, is_default = $5
		WHERE id = $1 AND organization_id = $2
	`, branch.ID, branch.OrganizationID, branch.Name, branch.Address, branch.IsDefault)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) DeleteBranch(ctx context.Context, organizationID string, branchID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var isDefault bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_default FROM branches
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, branchID, organizationID).Scan(&isDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if isDefault {
		return store.ErrBranchIsDefault
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM inventory_records WHERE branch_id = $1
	`, branchID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM branches WHERE id = $1 AND organization_id = $2
	`, branchID, organizationID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListProducts(ctx context.Context, organizationID string, includeInactive bool, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 100
	}
	lifecycles := []string{domain.LifecycleActive}
	if includeInactive {
		lifecycles = append(lifecycles, domain.LifecycleInactive)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, brand, category, description, lifecycle, created_at, updated_at
		FROM products
		WHERE organization_id = $1 AND lifecycle = ANY($2)
		ORDER BY name
		LIMIT $3
	`, organizationID, lifecycles, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Brand, &p.Category, &p.Description, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, organizationID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, brand, category, description, lifecycle, created_at, updated_at
		FROM products
		WHERE id = $1 AND organization_id = $2 AND lifecycle <> 'deleted'
	`, productID, organizationID).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Brand, &p.Category, &p.Description, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, organization_id, name, brand, category, description, lifecycle, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.OrganizationID, product.Name, product.Brand, product.Category, product.Description, product.Lifecycle, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, brand = $4, category = $5, description = $6, lifecycle = $7, updated_at = $8
		WHERE id = $1 AND organization_id = $2
	`, product.ID, product.OrganizationID, product.Name, product.Brand, product.Category, product.Description, product.Lifecycle, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetVariant(ctx context.Context, organizationID string, variantID string) (*domain.ProductVariant, error) {
	var v domain.ProductVariant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, product_id, name, sku, selling_price_centavos, capital_cost_centavos,
		       low_stock_threshold, lifecycle, created_at, updated_at
		FROM product_variants
		WHERE id = $1 AND organization_id = $2 AND lifecycle <> 'deleted'
	`, variantID, organizationID).Scan(&v.ID, &v.OrganizationID, &v.ProductID, &v.Name, &v.SKU,
		&v.SellingPriceCentavos, &v.CapitalCostCentavos, &v.LowStockThreshold, &v.Lifecycle, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.ProductVariant, initialStock int, userID string) (*domain.ProductVariant, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_variants (
			id, organization_id, product_id, name, sku, selling_price_centavos,
			capital_cost_centavos, low_stock_threshold, lifecycle, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, variant.ID, variant.OrganizationID, variant.ProductID, variant.Name, variant.SKU,
		variant.SellingPriceCentavos, variant.CapitalCostCentavos, variant.LowStockThreshold,
		variant.Lifecycle, variant.CreatedAt, variant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSKU
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_records (organization_id, branch_id, variant_id, quantity, updated_at)
		SELECT $1, id, $2, 0, now()
		FROM branches
		WHERE organization_id = $1
	`, variant.OrganizationID, variant.ID)
	if err != nil {
		return nil, err
	}

	if initialStock > 0 {
		var defaultBranchID string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM branches
			WHERE organization_id = $1 AND is_default = true
		`, variant.OrganizationID).Scan(&defaultBranchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInvalidBranch
			}
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_records
			SET quantity = $1, updated_at = now()
			WHERE branch_id = $2 AND variant_id = $3
		`, initialStock, defaultBranchID, variant.ID)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (
				id, organization_id, branch_id, variant_id, user_id, movement_type,
				quantity_change, quantity_before, quantity_after, reference_type, reference_id, notes, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,0,$7,$8,NULL,$9,now())
		`, xid.New("mov"), variant.OrganizationID, defaultBranchID, variant.ID, userID,
			domain.MovementTypeInitialStock, initialStock, domain.MovementReferenceManual, "Initial stock")
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &variant, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.ProductVariant) (*domain.ProductVariant, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET name = $3, selling_price_centavos = $4, capital_cost_centavos = $5,
		    low_stock_threshold = $6, lifecycle = $7, updated_at = $8
		WHERE id = $1 AND organization_id = $2
	`, variant.ID, variant.OrganizationID, variant.Name, variant.SellingPriceCentavos,
		variant.CapitalCostCentavos, variant.LowStockThreshold, variant.Lifecycle, variant.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &variant, nil
}

func (s *Store) ListCatalog(ctx context.Context, organizationID string) ([]domain.CatalogVariant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.product_id, p.name, v.name, v.sku, v.selling_price_centavos,
		       v.capital_cost_centavos, v.low_stock_threshold
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.organization_id = $1 AND v.lifecycle = 'active' AND p.lifecycle = 'active'
		ORDER BY p.name, v.name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	catalog := make([]domain.CatalogVariant, 0, 64)
	for rows.Next() {
		var c domain.CatalogVariant
		if err := rows.Scan(&c.VariantID, &c.ProductID, &c.ProductName, &c.VariantName, &c.SKU,
			&c.SellingPriceCentavos, &c.CapitalCostCentavos, &c.LowStockThreshold); err != nil {
			return nil, err
		}
		catalog = append(catalog, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (s *Store) ListInventory(ctx context.Context, organizationID string, branchID string, lowOnly bool, limit int) ([]domain.InventoryLevel, error) {
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT i.branch_id, i.variant_id, p.name, v.name, v.sku, i.quantity, v.low_stock_threshold
		FROM inventory_records i
		JOIN product_variants v ON v.id = i.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE i.organization_id = $1 AND v.lifecycle <> 'deleted'
	`
	args := []any{organizationID}
	if branchID != "" {
		args = append(args, branchID)
		query += fmt.Sprintf(" AND i.branch_id = $%d", len(args))
	}
	if lowOnly {
		query += " AND i.quantity <= v.low_stock_threshold"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY p.name, v.name LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.InventoryLevel, 0, limit)
	for rows.Next() {
		var lvl domain.InventoryLevel
		if err := rows.Scan(&lvl.BranchID, &lvl.VariantID, &lvl.ProductName, &lvl.VariantName, &lvl.SKU, &lvl.Quantity, &lvl.LowStockThreshold); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *Store) ListStockMovements(ctx context.Context, organizationID string, branchID string, variantID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, organization_id, branch_id, variant_id, user_id, movement_type,
		       quantity_change, quantity_before, quantity_after, reference_type,
		       COALESCE(reference_id, ''), notes, created_at
		FROM stock_movements
		WHERE organization_id = $1
	`
	args := []any{organizationID}
	if branchID != "" {
		args = append(args, branchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if variantID != "" {
		args = append(args, variantID)
		query += fmt.Sprintf(" AND variant_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.BranchID, &m.VariantID, &m.UserID, &m.MovementType,
			&m.QuantityChange, &m.QuantityBefore, &m.QuantityAfter, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// CreateSale runs the whole sale in one serializable transaction. All
// inventory rows for the cart are locked up front in a single query, which
// keeps concurrent sales from deadlocking on row order, and every check
// happens before the first write so a failed sale leaves no rows behind.
func (s *Store) CreateSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var branchOK bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT true FROM branches WHERE id = $1 AND organization_id = $2
	`, tx.BranchID, tx.OrganizationID).Scan(&branchOK)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInvalidBranch
		}
		return nil, err
	}

	variantIDs := uniqueVariantIDs(tx.Items)
	type snapshot struct {
		productName string
		variantName string
		sku         string
		price       int64
		cost        int64
	}
	snapshots := make(map[string]snapshot, len(variantIDs))
	variantRows, err := pgTx.QueryContext(ctx, `
		SELECT v.id, p.name, v.name, v.sku, v.selling_price_centavos, v.capital_cost_centavos
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.organization_id = $1 AND v.id = ANY($2)
		  AND v.lifecycle = 'active' AND p.lifecycle <> 'deleted'
	`, tx.OrganizationID, variantIDs)
	if err != nil {
		return nil, err
	}
	for variantRows.Next() {
		var id string
		var snap snapshot
		if err := variantRows.Scan(&id, &snap.productName, &snap.variantName, &snap.sku, &snap.price, &snap.cost); err != nil {
			_ = variantRows.Close()
			return nil, err
		}
		snapshots[id] = snap
	}
	if err := variantRows.Err(); err != nil {
		_ = variantRows.Close()
		return nil, err
	}
	_ = variantRows.Close()
	for _, id := range variantIDs {
		if _, ok := snapshots[id]; !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidVariant, id)
		}
	}

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT variant_id, quantity
		FROM inventory_records
		WHERE organization_id = $1 AND branch_id = $2 AND variant_id = ANY($3)
		FOR UPDATE
	`, tx.OrganizationID, tx.BranchID, variantIDs)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]int, len(variantIDs))
	for stockRows.Next() {
		var variantID string
		var qty int
		if err := stockRows.Scan(&variantID, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[variantID] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	// Availability over the locked quantities, counting repeated variants
	// in the same cart cumulatively.
	working := make(map[string]int, len(stockMap))
	for id, qty := range stockMap {
		working[id] = qty
	}
	for _, item := range tx.Items {
		snap := snapshots[item.VariantID]
		if working[item.VariantID] < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductName: snap.productName,
				VariantName: snap.variantName,
				Available:   working[item.VariantID],
				Requested:   item.Quantity,
			}
		}
		working[item.VariantID] -= item.Quantity
	}

	now := time.Now().UTC()
	year := now.Year()
	var counter int
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transaction_counters (organization_id, year, n)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, year)
		DO UPDATE SET n = transaction_counters.n + 1
		RETURNING n
	`, tx.OrganizationID, year).Scan(&counter)
	if err != nil {
		return nil, err
	}

	tx.ID = xid.New("txn")
	tx.TransactionNumber = fmt.Sprintf("TXN-%d-%04d", year, counter)
	tx.PaymentStatus = domain.PaymentStatusCompleted
	tx.CreatedAt = now

	tx.SubtotalCentavos = 0
	tx.TotalCapitalCostCentavos = 0
	for i := range tx.Items {
		item := &tx.Items[i]
		snap := snapshots[item.VariantID]
		if item.UnitPriceCentavos < 0 {
			item.UnitPriceCentavos = snap.price
		}
		if item.UnitCapitalCostCentavos < 0 {
			item.UnitCapitalCostCentavos = snap.cost
		}
		item.ID = xid.New("txi")
		item.TransactionID = tx.ID
		item.ProductName = snap.productName
		item.VariantName = snap.variantName
		item.SKU = snap.sku
		item.LineTotalCentavos = item.UnitPriceCentavos * int64(item.Quantity)
		item.LineCapitalCostCentavos = item.UnitCapitalCostCentavos * int64(item.Quantity)
		item.LineProfitCentavos = item.LineTotalCentavos - item.LineCapitalCostCentavos
		tx.SubtotalCentavos += item.LineTotalCentavos
		tx.TotalCapitalCostCentavos += item.LineCapitalCostCentavos
	}
	tx.GrossProfitCentavos = tx.SubtotalCentavos - tx.TotalCapitalCostCentavos

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, organization_id, branch_id, user_id, transaction_number,
			subtotal_centavos, total_capital_cost_centavos, gross_profit_centavos,
			payment_method, payment_status, customer_name, customer_notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, tx.ID, tx.OrganizationID, tx.BranchID, tx.UserID, tx.TransactionNumber,
		tx.SubtotalCentavos, tx.TotalCapitalCostCentavos, tx.GrossProfitCentavos,
		tx.PaymentMethod, tx.PaymentStatus, tx.CustomerName, tx.CustomerNotes, tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	running := stockMap
	for _, item := range tx.Items {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (
				id, transaction_id, variant_id, product_name, variant_name, sku,
				quantity, unit_price_centavos, unit_capital_cost_centavos,
				line_total_centavos, line_capital_cost_centavos, line_profit_centavos
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, item.ID, item.TransactionID, item.VariantID, item.ProductName, item.VariantName, item.SKU,
			item.Quantity, item.UnitPriceCentavos, item.UnitCapitalCostCentavos,
			item.LineTotalCentavos, item.LineCapitalCostCentavos, item.LineProfitCentavos)
		if err != nil {
			return nil, err
		}

		before := running[item.VariantID]
		after := before - item.Quantity
		running[item.VariantID] = after

		_, err = pgTx.ExecContext(ctx, `
			UPDATE inventory_records
			SET quantity = $1, updated_at = $2
			WHERE organization_id = $3 AND branch_id = $4 AND variant_id = $5
		`, after, now, tx.OrganizationID, tx.BranchID, item.VariantID)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_movements (
				id, organization_id, branch_id, variant_id, user_id, movement_type,
				quantity_change, quantity_before, quantity_after, reference_type, reference_id, notes, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, xid.New("mov"), tx.OrganizationID, tx.BranchID, item.VariantID, tx.UserID,
			domain.MovementTypeSale, -item.Quantity, before, after,
			domain.MovementReferenceTransaction, tx.ID, "Sale: "+tx.TransactionNumber, now)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, user_id, action, entity_type, entity_id, old_values, new_values, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'',$7,$8)
	`, xid.New("aud"), tx.OrganizationID, tx.UserID, "sale.create", "transaction", tx.ID,
		fmt.Sprintf(`{"transaction_number":%q,"subtotal_centavos":%d}`, tx.TransactionNumber, tx.SubtotalCentavos), now)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, organizationID string, transactionID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, branch_id, user_id, transaction_number,
		       subtotal_centavos, total_capital_cost_centavos, gross_profit_centavos,
		       payment_method, payment_status, customer_name, customer_notes, created_at
		FROM transactions
		WHERE id = $1 AND organization_id = $2
	`, transactionID, organizationID).Scan(&tx.ID, &tx.OrganizationID, &tx.BranchID, &tx.UserID, &tx.TransactionNumber,
		&tx.SubtotalCentavos, &tx.TotalCapitalCostCentavos, &tx.GrossProfitCentavos,
		&tx.PaymentMethod, &tx.PaymentStatus, &tx.CustomerName, &tx.CustomerNotes, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadItems(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, organizationID string, branchID string, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT id, organization_id, branch_id, user_id, transaction_number,
		       subtotal_centavos, total_capital_cost_centavos, gross_profit_centavos,
		       payment_method, payment_status, customer_name, customer_notes, created_at
		FROM transactions
		WHERE organization_id = $1
	`
	args := []any{organizationID}
	if branchID != "" {
		args = append(args, branchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.OrganizationID, &tx.BranchID, &tx.UserID, &tx.TransactionNumber,
			&tx.SubtotalCentavos, &tx.TotalCapitalCostCentavos, &tx.GrossProfitCentavos,
			&tx.PaymentMethod, &tx.PaymentStatus, &tx.CustomerName, &tx.CustomerNotes, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Items = items[txs[i].ID]
	}
	return txs, nil
}

func (s *Store) loadItems(ctx context.Context, transactionIDs []string) (map[string][]domain.TransactionItem, error) {
	result := make(map[string][]domain.TransactionItem, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, variant_id, product_name, variant_name, sku,
		       quantity, unit_price_centavos, unit_capital_cost_centavos,
		       line_total_centavos, line_capital_cost_centavos, line_profit_centavos
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.VariantID, &item.ProductName, &item.VariantName, &item.SKU,
			&item.Quantity, &item.UnitPriceCentavos, &item.UnitCapitalCostCentavos,
			&item.LineTotalCentavos, &item.LineCapitalCostCentavos, &item.LineProfitCentavos); err != nil {
			return nil, err
		}
		result[item.TransactionID] = append(result[item.TransactionID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AdjustStock locks the single inventory row, applies the movement and
// writes the trail entry in one serializable transaction. A missing row
// counts as quantity zero and is created on first write.
func (s *Store) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.StockAdjustmentResult, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var branchOK bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT true FROM branches WHERE id = $1 AND organization_id = $2
	`, req.BranchID, req.OrganizationID).Scan(&branchOK)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInvalidBranch
		}
		return nil, err
	}

	var productName, variantName string
	err = pgTx.QueryRowContext(ctx, `
		SELECT p.name, v.name
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND v.organization_id = $2 AND v.lifecycle <> 'deleted'
	`, req.VariantID, req.OrganizationID).Scan(&productName, &variantName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidVariant, req.VariantID)
		}
		return nil, err
	}

	before := 0
	err = pgTx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_records
		WHERE organization_id = $1 AND branch_id = $2 AND variant_id = $3
		FOR UPDATE
	`, req.OrganizationID, req.BranchID, req.VariantID).Scan(&before)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var delta int
	switch req.MovementType {
	case domain.MovementTypeStockIn:
		delta = req.Quantity
	case domain.MovementTypeStockOut:
		if before-req.Quantity < 0 {
			return nil, &store.InsufficientStockError{
				ProductName: productName,
				VariantName: variantName,
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
	after := before + delta

	now := time.Now().UTC()
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO inventory_records (organization_id, branch_id, variant_id, quantity, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (branch_id, variant_id)
		DO UPDATE SET quantity = $4, updated_at = $5
	`, req.OrganizationID, req.BranchID, req.VariantID, after, now)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, organization_id, branch_id, variant_id, user_id, movement_type,
			quantity_change, quantity_before, quantity_after, reference_type, reference_id, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL,$11,$12)
	`, xid.New("mov"), req.OrganizationID, req.BranchID, req.VariantID, req.UserID,
		req.MovementType, delta, before, after, domain.MovementReferenceManual, req.Notes, now)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &domain.StockAdjustmentResult{QuantityBefore: before, QuantityAfter: after}, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, user_id, action, entity_type, entity_id, old_values, new_values, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.OrganizationID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.OldValues, entry.NewValues, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, organizationID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, user_id, action, entity_type, entity_id, old_values, new_values, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.UserID, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.OldValues, &entry.NewValues, &entry.CreatedAt); err != nil {
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

func uniqueVariantIDs(items []domain.TransactionItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VariantID]; ok {
			continue
		}
		seen[item.VariantID] = struct{}{}
		ids = append(ids, item.VariantID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
