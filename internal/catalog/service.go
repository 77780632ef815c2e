package catalog

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const supplierLedgerLimit = 200

var upper = cases.Upper(language.Und)

// service implements Service interface
type service struct {
	repo     Repository
	registry *Registry
}

// NewService creates a new catalog service. The registry is invalidated
// whenever a store binding changes.
func NewService(repo Repository, registry *Registry) Service {
	return &service{repo: repo, registry: registry}
}

// NormalizeCode trims and upper-cases a product code.
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// Warehouse operations
func (s *service) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, filters)
}

func (s *service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.Invalid("id", "invalid warehouse id")
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *service) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	warehouse.Name = strings.TrimSpace(warehouse.Name)
	if warehouse.Name == "" {
		return Warehouse{}, shared.Invalid("name", "warehouse name is required")
	}
	return s.repo.CreateWarehouse(ctx, warehouse)
}

func (s *service) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.Invalid("id", "invalid warehouse id")
	}
	warehouse.Name = strings.TrimSpace(warehouse.Name)
	if warehouse.Name == "" {
		return Warehouse{}, shared.Invalid("name", "warehouse name is required")
	}
	return s.repo.UpdateWarehouse(ctx, id, warehouse)
}

func (s *service) DeleteWarehouse(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("id", "invalid warehouse id")
	}
	return s.repo.DeleteWarehouse(ctx, id)
}

// Store operations
func (s *service) ListStores(ctx context.Context, filters ListFilters) ([]Store, int, error) {
	return s.repo.ListStores(ctx, filters)
}

func (s *service) GetStore(ctx context.Context, id int64) (Store, error) {
	if id <= 0 {
		return Store{}, shared.Invalid("id", "invalid store id")
	}
	return s.repo.GetStore(ctx, id)
}

func (s *service) CreateStore(ctx context.Context, store Store) (Store, error) {
	if err := validateStore(&store); err != nil {
		return Store{}, err
	}
	return s.repo.CreateStore(ctx, store)
}

func (s *service) UpdateStore(ctx context.Context, id int64, store Store) (Store, error) {
	if id <= 0 {
		return Store{}, shared.Invalid("id", "invalid store id")
	}
	if err := validateStore(&store); err != nil {
		return Store{}, err
	}
	updated, err := s.repo.UpdateStore(ctx, id, store)
	if err != nil {
		return Store{}, err
	}
	s.registry.Invalidate(ctx, id)
	return updated, nil
}

func (s *service) DeleteStore(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("id", "invalid store id")
	}
	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	s.registry.Invalidate(ctx, id)
	return nil
}

// Product operations
func (s *service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalid("id", "invalid product id")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if err := validateProduct(&product); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *service) UpdateProduct(ctx context.Context, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalid("id", "invalid product id")
	}
	if err := validateProduct(&product); err != nil {
		return Product{}, err
	}
	return s.repo.UpdateProduct(ctx, id, product)
}

func (s *service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("id", "invalid product id")
	}
	return s.repo.DeleteProduct(ctx, id)
}

// Supplier operations
func (s *service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *service) GetSupplier(ctx context.Context, id int64) (SupplierDetail, error) {
	if id <= 0 {
		return SupplierDetail{}, shared.Invalid("id", "invalid supplier id")
	}
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return SupplierDetail{}, err
	}
	ledger, err := s.repo.SupplierLedger(ctx, id, supplierLedgerLimit)
	if err != nil {
		return SupplierDetail{}, err
	}
	return SupplierDetail{Supplier: supplier, Ledger: ledger}, nil
}

// CreateSupplier always registers the supplier as active.
func (s *service) CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error) {
	in.Status = nil
	supplier, err := supplierFromInput(in, SupplierActive)
	if err != nil {
		return Supplier{}, err
	}
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *service) UpdateSupplier(ctx context.Context, id int64, in SupplierInput) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.Invalid("id", "invalid supplier id")
	}
	current, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return Supplier{}, err
	}
	supplier, err := supplierFromInput(in, current.Status)
	if err != nil {
		return Supplier{}, err
	}
	return s.repo.UpdateSupplier(ctx, id, supplier)
}

// DeleteSupplier deactivates the supplier; its receipts and ledger stay intact.
func (s *service) DeleteSupplier(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("id", "invalid supplier id")
	}
	return s.repo.SetSupplierStatus(ctx, id, SupplierInactive)
}

// Validation methods
func validateStore(store *Store) error {
	store.Name = strings.TrimSpace(store.Name)
	store.City = strings.TrimSpace(store.City)
	if store.Name == "" {
		return shared.Invalid("name", "store name is required")
	}
	if store.WarehouseID <= 0 {
		return shared.Invalid("warehouse_id", "warehouse is required")
	}
	return nil
}

func validateProduct(product *Product) error {
	product.Code = NormalizeCode(product.Code)
	product.Name = strings.TrimSpace(product.Name)
	if product.Code == "" {
		return shared.Invalid("code", "product code is required")
	}
	if product.Name == "" {
		return shared.Invalid("name", "product name is required")
	}
	if product.PurchaseCost.IsNegative() {
		return shared.Invalid("purchase_cost", "cannot be negative")
	}
	if product.SellingPrice.IsNegative() {
		return shared.Invalid("selling_price", "cannot be negative")
	}
	return nil
}

func supplierFromInput(in SupplierInput, status int16) (Supplier, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Supplier{}, shared.Invalid("name", "supplier name is required")
	}
	if in.Status != nil {
		status = *in.Status
	}
	if status != SupplierActive && status != SupplierInactive {
		return Supplier{}, shared.Invalid("status", "must be 0 or 1")
	}
	return Supplier{Name: name, Phone: strings.TrimSpace(in.Phone), Status: status}, nil
}
