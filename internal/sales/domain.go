package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Payment types as stored on sales rows.
const (
	PaymentDebt       = "debt"
	PaymentPaid       = "paid"
	PaymentRetailDebt = "retail_debt"
)

// Sale is a posted sale with reference names resolved.
type Sale struct {
	ID           int64           `json:"id"`
	StoreID      int64           `json:"store_id"`
	StoreName    string          `json:"store_name"`
	WarehouseID  int64           `json:"warehouse_id"`
	CustomerID   int64           `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	DebtorID     int64           `json:"debtor_id,omitempty"`
	DebtorName   string          `json:"debtor_name,omitempty"`
	PaymentType  string          `json:"payment_type"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedBy    int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SaleLine is one sold product with the quantity already returned against it.
type SaleLine struct {
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	ReturnedQty int64           `json:"returned_qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Returnable is how many units of the line can still come back.
func (l SaleLine) Returnable() int64 {
	if l.ReturnedQty >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReturnedQty
}

// SaleDetail is a sale with its lines and returns.
type SaleDetail struct {
	Sale
	Items   []SaleLine `json:"items"`
	Returns []Return   `json:"returns"`
}

// Return is a posted customer return.
type Return struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id,omitempty"`
	StoreID     int64           `json:"store_id,omitempty"`
	WarehouseID int64           `json:"warehouse_id"`
	CustomerID  int64           `json:"customer_id,omitempty"`
	DebtorID    int64           `json:"debtor_id,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Reason      string          `json:"reason,omitempty"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReturnLine is one returned product.
type ReturnLine struct {
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// ReturnDetail is a return with its lines.
type ReturnDetail struct {
	Return
	Items []ReturnLine `json:"items"`
}

// Period bounds a report; To is exclusive.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	StoreID     int64
	CustomerID  int64
	PaymentType string
	Period      Period
	Limit       int
	Offset      int
}

// ReturnFilter narrows return listings.
type ReturnFilter struct {
	SaleID  int64
	StoreID int64
	Period  Period
	Limit   int
	Offset  int
}

// PaymentTotal is the turnover of one payment type.
type PaymentTotal struct {
	PaymentType string
	Count       int
	Amount      decimal.Decimal
}

// StoreSummary aggregates a store's trade over a period.
type StoreSummary struct {
	StoreID         int64           `json:"store_id"`
	Period          Period          `json:"period"`
	SaleCount       int             `json:"sale_count"`
	SalesTotal      decimal.Decimal `json:"sales_total"`
	ReturnCount     int             `json:"return_count"`
	ReturnsTotal    decimal.Decimal `json:"returns_total"`
	Net             decimal.Decimal `json:"net"`
	PaidTotal       decimal.Decimal `json:"paid_total"`
	DebtTotal       decimal.Decimal `json:"debt_total"`
	RetailDebtTotal decimal.Decimal `json:"retail_debt_total"`
}

// Reader is the read side used by Service.
type Reader interface {
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, int, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	SaleLines(ctx context.Context, saleID int64) ([]SaleLine, error)
	ListReturns(ctx context.Context, filter ReturnFilter) ([]Return, int, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	ReturnLines(ctx context.Context, returnID int64) ([]ReturnLine, error)
	StoreExists(ctx context.Context, storeID int64) (bool, error)
	PaymentTotals(ctx context.Context, storeID int64, period Period) ([]PaymentTotal, error)
	ReturnTotals(ctx context.Context, storeID int64, period Period) (int, decimal.Decimal, error)
}
