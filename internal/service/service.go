// Package service holds the application layer: validation, authorization,
// audit logging and the orchestration of sale and stock operations on top
// of store.Repository.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tindahan/backend/internal/cache"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/metrics"
	"tindahan/backend/internal/store"
	"tindahan/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var paymentMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"gcash":         true,
	"maya":          true,
	"bank_transfer": true,
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		catalogTTL: catalogTTL,
	}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.OrganizationID == "" || actor.UserID == "" {
		return domain.Actor{}, store.ErrUnauthorized
	}
	return actor, nil
}

func (s *Service) owner(ctx context.Context) (domain.Actor, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleOwner {
		return domain.Actor{}, store.ErrUnauthorized
	}
	return actor, nil
}

// verifyMembership re-checks the token's subject against the user table so
// a revoked or deactivated account cannot keep acting on a live token.
func (s *Service) verifyMembership(ctx context.Context, actor domain.Actor) error {
	user, err := s.repo.GetUser(ctx, actor.OrganizationID, actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrUnauthorized
		}
		return err
	}
	if !user.Active {
		return store.ErrUnauthorized
	}
	return nil
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (domain.SignupResponse, error) {
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	req.BranchName = strings.TrimSpace(req.BranchName)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.OrganizationName == "" || req.Username == "" {
		return domain.SignupResponse{}, fmt.Errorf("%w: organization name and username are required", store.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return domain.SignupResponse{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}
	if req.BranchName == "" {
		req.BranchName = "Main Branch"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.SignupResponse{}, err
	}

	now := time.Now().UTC()
	org := domain.Organization{ID: xid.New("org"), Name: req.OrganizationName, Active: true, CreatedAt: now}
	branch := domain.Branch{ID: xid.New("branch"), OrganizationID: org.ID, Name: req.BranchName, IsDefault: true, CreatedAt: now}
	owner := domain.UserAccount{
		ID:             xid.New("user"),
		OrganizationID: org.ID,
		Username:       req.Username,
		Password:       string(hash),
		Role:           domain.RoleOwner,
		Active:         true,
		CreatedAt:      now,
	}

	if err := s.repo.CreateOrganization(ctx, org, branch, owner); err != nil {
		return domain.SignupResponse{}, err
	}

	s.logAudit(ctx, domain.Actor{UserID: owner.ID, OrganizationID: org.ID, Role: owner.Role},
		"organization.create", "organization", org.ID, nil, org)

	return domain.SignupResponse{Organization: org, Branch: branch, Username: owner.Username}, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" {
		return domain.UserAccount{}, fmt.Errorf("%w: username is required", store.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleStaff {
		return domain.UserAccount{}, fmt.Errorf("%w: role %q", store.ErrInvalidInput, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	user := domain.UserAccount{
		ID:             xid.New("user"),
		OrganizationID: actor.OrganizationID,
		Username:       req.Username,
		Password:       string(hash),
		Role:           req.Role,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, actor, "user.create", "user", user.ID, nil, map[string]string{"username": user.Username, "role": user.Role})
	user.Password = ""
	return user, nil
}

// ProcessSale validates and authorizes the sale, then hands the whole cart
// to the repository, which commits the transaction, its items, the stock
// decrements, the movement rows and the audit entry atomically. Any error
// leaves no trace of the attempt.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if err := s.verifyMembership(ctx, actor); err != nil {
		return domain.SaleResult{}, err
	}

	if len(req.Items) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: sale requires at least one item", store.ErrInvalidInput)
	}
	if !paymentMethods[req.PaymentMethod] {
		return domain.SaleResult{}, fmt.Errorf("%w: payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	for _, line := range req.Items {
		if line.VariantID == "" || line.Quantity < 1 {
			return domain.SaleResult{}, fmt.Errorf("%w: every line needs a variant and a positive quantity", store.ErrInvalidInput)
		}
		if line.UnitPriceCentavos != nil && *line.UnitPriceCentavos < 0 {
			return domain.SaleResult{}, fmt.Errorf("%w: negative unit price", store.ErrInvalidInput)
		}
		if line.UnitCostCentavos != nil && *line.UnitCostCentavos < 0 {
			return domain.SaleResult{}, fmt.Errorf("%w: negative unit cost", store.ErrInvalidInput)
		}
	}

	if _, err := s.repo.GetBranch(ctx, actor.OrganizationID, req.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleResult{}, store.ErrInvalidBranch
		}
		return domain.SaleResult{}, err
	}

	// Negative values mark fields the caller left unset; the store fills
	// those from the variant snapshot inside the sale transaction.
	items := make([]domain.TransactionItem, 0, len(req.Items))
	for _, line := range req.Items {
		item := domain.TransactionItem{
			VariantID:               line.VariantID,
			Quantity:                line.Quantity,
			UnitPriceCentavos:       -1,
			UnitCapitalCostCentavos: -1,
		}
		if line.UnitPriceCentavos != nil {
			item.UnitPriceCentavos = *line.UnitPriceCentavos
		}
		if line.UnitCostCentavos != nil {
			item.UnitCapitalCostCentavos = *line.UnitCostCentavos
		}
		items = append(items, item)
	}

	created, err := s.repo.CreateSale(ctx, domain.Transaction{
		OrganizationID: actor.OrganizationID,
		BranchID:       req.BranchID,
		UserID:         actor.UserID,
		PaymentMethod:  req.PaymentMethod,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerNotes:  strings.TrimSpace(req.CustomerNotes),
		Items:          items,
	})
	if err != nil {
		metrics.SalesTotal.WithLabelValues(saleOutcome(err)).Inc()
		return domain.SaleResult{}, mapStorageError(err)
	}
	metrics.SalesTotal.WithLabelValues("completed").Inc()

	return domain.SaleResult{
		TransactionID:            created.ID,
		TransactionNumber:        created.TransactionNumber,
		SubtotalCentavos:         created.SubtotalCentavos,
		TotalCapitalCostCentavos: created.TotalCapitalCostCentavos,
		GrossProfitCentavos:      created.GrossProfitCentavos,
	}, nil
}

// AdjustStock applies one manual stock movement. stock_in and stock_out
// take a positive magnitude; adjustment takes a signed correction and
// clamps at zero rather than failing.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StockAdjustmentResult{}, err
	}
	if err := s.verifyMembership(ctx, actor); err != nil {
		return domain.StockAdjustmentResult{}, err
	}

	switch req.MovementType {
	case domain.MovementTypeStockIn, domain.MovementTypeStockOut:
		if req.Quantity < 1 {
			return domain.StockAdjustmentResult{}, fmt.Errorf("%w: quantity must be positive for %s", store.ErrInvalidInput, req.MovementType)
		}
	case domain.MovementTypeAdjustment:
		if req.Quantity == 0 {
			return domain.StockAdjustmentResult{}, fmt.Errorf("%w: adjustment quantity cannot be zero", store.ErrInvalidInput)
		}
	default:
		return domain.StockAdjustmentResult{}, fmt.Errorf("%w: movement type %q", store.ErrInvalidInput, req.MovementType)
	}
	if req.VariantID == "" || req.BranchID == "" {
		return domain.StockAdjustmentResult{}, fmt.Errorf("%w: branch and variant are required", store.ErrInvalidInput)
	}

	req.OrganizationID = actor.OrganizationID
	req.UserID = actor.UserID
	req.Notes = strings.TrimSpace(req.Notes)

	result, err := s.repo.AdjustStock(ctx, req)
	if err != nil {
		metrics.StockAdjustmentsTotal.WithLabelValues(req.MovementType, saleOutcome(err)).Inc()
		return domain.StockAdjustmentResult{}, mapStorageError(err)
	}
	metrics.StockAdjustmentsTotal.WithLabelValues(req.MovementType, "completed").Inc()

	s.logAudit(ctx, actor, "stock.adjust", "inventory_record", req.BranchID+"/"+req.VariantID,
		map[string]int{"quantity": result.QuantityBefore},
		map[string]any{"quantity": result.QuantityAfter, "movement_type": req.MovementType, "notes": req.Notes})

	return *result, nil
}

func (s *Service) Catalog(ctx context.Context) ([]domain.CatalogVariant, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	key := catalogKey(actor.OrganizationID)
	if cached, ok, err := s.catalog.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed org=%s: %v", actor.OrganizationID, err)
	}

	catalog, err := s.repo.ListCatalog(ctx, actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, key, catalog, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed org=%s: %v", actor.OrganizationID, err)
	}
	return catalog, nil
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool, limit int) ([]domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.OrganizationID, includeInactive, limit)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:             xid.New("prod"),
		OrganizationID: actor.OrganizationID,
		Name:           req.Name,
		Brand:          strings.TrimSpace(req.Brand),
		Category:       strings.TrimSpace(req.Category),
		Description:    strings.TrimSpace(req.Description),
		Lifecycle:      domain.LifecycleActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, actor, "product.create", "product", created.ID, nil, created)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, actor.OrganizationID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: product name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Lifecycle != nil {
		if !domain.CanTransition(existing.Lifecycle, *req.Lifecycle) {
			return domain.Product{}, fmt.Errorf("%w: lifecycle %s -> %s", store.ErrInvalidInput, existing.Lifecycle, *req.Lifecycle)
		}
		updated.Lifecycle = *req.Lifecycle
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx, actor.OrganizationID)
	s.logAudit(ctx, actor, "product.update", "product", saved.ID, existing, saved)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	lifecycle := domain.LifecycleDeleted
	_, err := s.UpdateProduct(ctx, productID, domain.ProductUpdateRequest{Lifecycle: &lifecycle})
	return err
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.ProductVariant, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.ProductID == "" || req.Name == "" || req.SKU == "" {
		return domain.ProductVariant{}, fmt.Errorf("%w: product, name and sku are required", store.ErrInvalidInput)
	}
	if req.SellingPriceCentavos < 0 || req.CapitalCostCentavos < 0 {
		return domain.ProductVariant{}, fmt.Errorf("%w: prices cannot be negative", store.ErrInvalidInput)
	}
	if req.LowStockThreshold < 0 || req.InitialStock < 0 {
		return domain.ProductVariant{}, fmt.Errorf("%w: threshold and initial stock cannot be negative", store.ErrInvalidInput)
	}

	if _, err := s.repo.GetProduct(ctx, actor.OrganizationID, req.ProductID); err != nil {
		return domain.ProductVariant{}, err
	}

	now := time.Now().UTC()
	variant := domain.ProductVariant{
		ID:                   xid.New("var"),
		OrganizationID:       actor.OrganizationID,
		ProductID:            req.ProductID,
		Name:                 req.Name,
		SKU:                  req.SKU,
		SellingPriceCentavos: req.SellingPriceCentavos,
		CapitalCostCentavos:  req.CapitalCostCentavos,
		LowStockThreshold:    req.LowStockThreshold,
		Lifecycle:            domain.LifecycleActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	created, err := s.repo.CreateVariant(ctx, variant, req.InitialStock, actor.UserID)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	s.invalidateCatalog(ctx, actor.OrganizationID)
	s.logAudit(ctx, actor, "variant.create", "product_variant", created.ID, nil, created)
	return *created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, variantID string, req domain.VariantUpdateRequest) (domain.ProductVariant, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	existing, err := s.repo.GetVariant(ctx, actor.OrganizationID, variantID)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ProductVariant{}, fmt.Errorf("%w: variant name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.SellingPriceCentavos != nil {
		if *req.SellingPriceCentavos < 0 {
			return domain.ProductVariant{}, fmt.Errorf("%w: prices cannot be negative", store.ErrInvalidInput)
		}
		updated.SellingPriceCentavos = *req.SellingPriceCentavos
	}
	if req.CapitalCostCentavos != nil {
		if *req.CapitalCostCentavos < 0 {
			return domain.ProductVariant{}, fmt.Errorf("%w: prices cannot be negative", store.ErrInvalidInput)
		}
		updated.CapitalCostCentavos = *req.CapitalCostCentavos
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.ProductVariant{}, fmt.Errorf("%w: threshold cannot be negative", store.ErrInvalidInput)
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Lifecycle != nil {
		if !domain.CanTransition(existing.Lifecycle, *req.Lifecycle) {
			return domain.ProductVariant{}, fmt.Errorf("%w: lifecycle %s -> %s", store.ErrInvalidInput, existing.Lifecycle, *req.Lifecycle)
		}
		updated.Lifecycle = *req.Lifecycle
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	s.invalidateCatalog(ctx, actor.OrganizationID)
	s.logAudit(ctx, actor, "variant.update", "product_variant", saved.ID, existing, saved)
	return *saved, nil
}

func (s *Service) DeleteVariant(ctx context.Context, variantID string) error {
	lifecycle := domain.LifecycleDeleted
	_, err := s.UpdateVariant(ctx, variantID, domain.VariantUpdateRequest{Lifecycle: &lifecycle})
	return err
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBranches(ctx, actor.OrganizationID)
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Branch{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Branch{}, fmt.Errorf("%w: branch name is required", store.ErrInvalidInput)
	}

	branch := domain.Branch{
		ID:             xid.New("branch"),
		OrganizationID: actor.OrganizationID,
		Name:           req.Name,
		Address:        strings.TrimSpace(req.Address),
		IsDefault:      req.IsDefault,
		CreatedAt:      time.Now().UTC(),
	}
	created, err := s.repo.CreateBranch(ctx, branch)
	if err != nil {
		return domain.Branch{}, err
	}

	s.logAudit(ctx, actor, "branch.create", "branch", created.ID, nil, created)
	return *created, nil
}

func (s *Service) UpdateBranch(ctx context.Context, branchID string, req domain.BranchUpdateRequest) (domain.Branch, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Branch{}, err
	}

	existing, err := s.repo.GetBranch(ctx, actor.OrganizationID, branchID)
	if err != nil {
		return domain.Branch{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Branch{}, fmt.Errorf("%w: branch name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.IsDefault != nil {
		updated.IsDefault = *req.IsDefault
	}

	saved, err := s.repo.UpdateBranch(ctx, updated)
	if err != nil {
		return domain.Branch{}, err
	}

	s.logAudit(ctx, actor, "branch.update", "branch", saved.ID, existing, saved)
	return *saved, nil
}

func (s *Service) DeleteBranch(ctx context.Context, branchID string) error {
	actor, err := s.owner(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBranch(ctx, actor.OrganizationID, branchID); err != nil {
		return err
	}
	s.logAudit(ctx, actor, "branch.delete", "branch", branchID, nil, nil)
	return nil
}

func (s *Service) ListInventory(ctx context.Context, branchID string, lowOnly bool, limit int) ([]domain.InventoryLevel, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInventory(ctx, actor.OrganizationID, branchID, lowOnly, limit)
}

func (s *Service) ListStockMovements(ctx context.Context, branchID string, variantID string, limit int) ([]domain.StockMovement, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStockMovements(ctx, actor.OrganizationID, branchID, variantID, limit)
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, actor.OrganizationID, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, branchID string, limit int) ([]domain.Transaction, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, actor.OrganizationID, branchID, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, actor.OrganizationID, limit)
}

func (s *Service) invalidateCatalog(ctx context.Context, organizationID string) {
	if err := s.catalog.Invalidate(ctx, catalogKey(organizationID)); err != nil {
		log.Printf("[service] WARN: catalog cache invalidation failed org=%s: %v", organizationID, err)
	}
}

func catalogKey(organizationID string) string {
	return "catalog:" + organizationID
}

// logAudit writes a best-effort audit row. Sale audit entries are the
// exception: the store writes them inside the sale transaction.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, oldValues any, newValues any) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:             xid.New("aud"),
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		OldValues:      marshalValues(oldValues),
		NewValues:      marshalValues(newValues),
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func marshalValues(v any) string {
	if v == nil {
		return ""
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(payload)
}

func saleOutcome(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrInvalidVariant):
		return "invalid_variant"
	case errors.Is(err, store.ErrInvalidBranch):
		return "invalid_branch"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

// mapStorageError keeps the sentinel taxonomy intact for callers and folds
// everything unexpected into ErrTransactionFailed so handlers never leak
// driver errors.
func mapStorageError(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalidVariant),
		errors.Is(err, store.ErrInvalidBranch),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrUnauthorized),
		errors.Is(err, store.ErrBranchIsDefault),
		errors.Is(err, store.ErrDuplicateSKU):
		return err
	default:
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
}
