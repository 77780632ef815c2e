package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Supplier status values.
const (
	SupplierInactive int16 = 0
	SupplierActive   int16 = 1
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Limit   int
	Offset  int
	Search  string
	SortBy  string
	SortDir string

	// Entity specific filters
	WarehouseID int64
	Status      *int16
	IsActive    *bool
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"required,max=255"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a point of sale bound to exactly one fulfilment warehouse.
type Store struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name" validate:"required,max=255"`
	City          string    `json:"city" validate:"max=255"`
	WarehouseID   int64     `json:"warehouse_id" validate:"required,gt=0"`
	WarehouseName string    `json:"warehouse_name,omitempty"`
	IsActive      *bool     `json:"is_active,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Active reports whether the store accepts sales; unset means active.
func (s Store) Active() bool { return s.IsActive == nil || *s.IsActive }

// Product is a catalog item.
type Product struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=255"`
	Manufacturer string          `json:"manufacturer" validate:"max=255"`
	Image        string          `json:"image" validate:"omitempty,url"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Supplier provides goods; Balance is what the business owes it.
type Supplier struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Balance   decimal.Decimal `json:"balance"`
	Status    int16           `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SupplierInput creates or edits a supplier. Balance only moves through receipts.
type SupplierInput struct {
	Name   string `json:"name" validate:"required,max=255"`
	Phone  string `json:"phone" validate:"max=50"`
	Status *int16 `json:"status" validate:"omitempty,oneof=0 1"`
}

// SupplierEntry is one supplier ledger line.
type SupplierEntry struct {
	ID           int64           `json:"id"`
	ReceiptID    int64           `json:"receipt_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SupplierDetail is a supplier with its ledger.
type SupplierDetail struct {
	Supplier
	Ledger []SupplierEntry `json:"ledger"`
}

// Repository interface for catalog operations
type Repository interface {
	// Warehouse operations
	ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) (Warehouse, error)
	DeleteWarehouse(ctx context.Context, id int64) error

	// Store operations
	ListStores(ctx context.Context, filters ListFilters) ([]Store, int, error)
	GetStore(ctx context.Context, id int64) (Store, error)
	CreateStore(ctx context.Context, store Store) (Store, error)
	UpdateStore(ctx context.Context, id int64, store Store) (Store, error)
	DeleteStore(ctx context.Context, id int64) error
	StoreWarehouseID(ctx context.Context, storeID int64) (int64, error)

	// Product operations
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// Supplier operations
	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	SupplierLedger(ctx context.Context, id int64, limit int) ([]SupplierEntry, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, supplier Supplier) (Supplier, error)
	SetSupplierStatus(ctx context.Context, id int64, status int16) error
}

// Service interface for catalog business logic
type Service interface {
	ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) (Warehouse, error)
	DeleteWarehouse(ctx context.Context, id int64) error

	ListStores(ctx context.Context, filters ListFilters) ([]Store, int, error)
	GetStore(ctx context.Context, id int64) (Store, error)
	CreateStore(ctx context.Context, store Store) (Store, error)
	UpdateStore(ctx context.Context, id int64, store Store) (Store, error)
	DeleteStore(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (SupplierDetail, error)
	CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, in SupplierInput) (Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error
}
