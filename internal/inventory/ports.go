package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPositions(ctx context.Context, filter PositionFilter) ([]PositionView, error)
	GetPosition(ctx context.Context, warehouseID, productID int64) (StockPosition, error)
	ListChanges(ctx context.Context, filter ChangeFilter) ([]StockChange, error)
	GetChange(ctx context.Context, id int64) (StockChange, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
}

// TxRepository exposes transactional operations used by service. Every
// method runs inside the caller's unit of work.
type TxRepository interface {
	WarehouseName(ctx context.Context, id int64) (string, error)
	SupplierActive(ctx context.Context, id int64) (bool, error)
	EnsureProducts(ctx context.Context, ids []int64) error
	Store(ctx context.Context, id int64) (StoreRef, error)

	// LockPosition takes a row lock on an existing position; found is false when absent.
	LockPosition(ctx context.Context, warehouseID, productID int64) (pos StockPosition, found bool, err error)
	// EnsurePosition materialises a zero position if needed and locks it.
	EnsurePosition(ctx context.Context, warehouseID, productID int64) (StockPosition, error)
	LockPositionByID(ctx context.Context, id int64) (StockPosition, error)
	SavePosition(ctx context.Context, pos StockPosition) (StockPosition, error)
	InsertChange(ctx context.Context, change StockChange) (StockChange, error)

	InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	LockSale(ctx context.Context, id int64) (SaleRef, error)
	SoldQuantities(ctx context.Context, saleID int64) (map[int64]int64, error)
	ReturnedQuantities(ctx context.Context, saleID int64) (map[int64]int64, error)
	InsertReturn(ctx context.Context, ret Return) (Return, error)

	Ledger() LedgerPort
}

// LedgerPort books the balance side effects of movements. Implementations
// write through the same transaction as the stock mutation.
type LedgerPort interface {
	ChargeSupplier(ctx context.Context, supplierID int64, amount decimal.Decimal, receiptID, actorID int64) error
	ChargeCustomer(ctx context.Context, customerID int64, amount decimal.Decimal, saleID, actorID int64) error
	CreditCustomer(ctx context.Context, customerID int64, amount decimal.Decimal, returnID, actorID int64) error
	OpenDebtor(ctx context.Context, name, phone string) (int64, error)
	ChargeDebtor(ctx context.Context, debtorID int64, amount decimal.Decimal, saleID, actorID int64) error
	CreditDebtor(ctx context.Context, debtorID int64, amount decimal.Decimal, returnID, actorID int64) error
	RecordCash(ctx context.Context, storeID int64, kind string, amount decimal.Decimal, refID, actorID int64) error
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// StoreDirectory resolves the warehouse bound to a store.
type StoreDirectory interface {
	StoreWarehouse(ctx context.Context, storeID int64) (int64, error)
}

// Observer receives movement outcomes.
type Observer interface {
	MovementPosted(operation string)
	StockShortage(dimension string)
}

type noopObserver struct{}

func (noopObserver) MovementPosted(string) {}
func (noopObserver) StockShortage(string)  {}
