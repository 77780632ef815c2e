package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType enumerates stock change kinds recorded in the audit trail.
type ChangeType string

const (
	// ChangeIn increases a position.
	ChangeIn ChangeType = "IN"
	// ChangeOut decreases a position.
	ChangeOut ChangeType = "OUT"
	// ChangeAdjustment overwrites a position after a stocktake.
	ChangeAdjustment ChangeType = "ADJUSTMENT"
)

// PaymentType describes how a sale is settled.
type PaymentType string

const (
	// PaymentDebt charges a registered customer's balance.
	PaymentDebt PaymentType = "debt"
	// PaymentPaid is settled in cash at the store.
	PaymentPaid PaymentType = "paid"
	// PaymentRetailDebt opens a debt for an unregistered buyer.
	PaymentRetailDebt PaymentType = "retail_debt"
)

// Measures are the three independently tracked units of a position.
// A NULL weight or volume means the measure is not tracked.
type Measures struct {
	Pieces    int64               `json:"total_pieces"`
	WeightKg  decimal.NullDecimal `json:"weight_kg"`
	VolumeCbm decimal.NullDecimal `json:"volume_cbm"`
}

// StockPosition is the on-hand quantity of one product in one warehouse.
type StockPosition struct {
	ID          int64 `json:"id"`
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	Measures
	UpdatedAt time.Time `json:"updated_at"`
}

// PositionView decorates a position with reference names for listings.
type PositionView struct {
	StockPosition
	WarehouseName string          `json:"warehouse_name"`
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
}

// StockChange is one immutable audit entry.
type StockChange struct {
	ID          int64      `json:"id"`
	WarehouseID int64      `json:"warehouse_id"`
	ProductID   int64      `json:"product_id"`
	ActorID     int64      `json:"user_id,omitempty"`
	Type        ChangeType `json:"change_type"`
	Old         Measures   `json:"old"`
	New         Measures   `json:"new"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Receipt is goods accepted into a warehouse from a supplier.
type Receipt struct {
	ID          int64           `json:"id"`
	WarehouseID int64           `json:"warehouse_id"`
	SupplierID  int64           `json:"supplier_id"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []ReceiptItem   `json:"items,omitempty"`
	Changes     []StockChange   `json:"changes,omitempty"`
}

// ReceiptItem is one product line of a receipt.
type ReceiptItem struct {
	ID           int64               `json:"id"`
	ReceiptID    int64               `json:"receipt_id"`
	ProductID    int64               `json:"product_id"`
	BoxesQty     int64               `json:"boxes_qty"`
	PiecesPerBox int64               `json:"pieces_per_box"`
	LoosePieces  int64               `json:"loose_pieces"`
	TotalPieces  int64               `json:"total_pieces"`
	WeightKg     decimal.NullDecimal `json:"weight_kg"`
	VolumeCbm    decimal.NullDecimal `json:"volume_cbm"`
	Amount       decimal.Decimal     `json:"amount"`
	PurchaseCost decimal.NullDecimal `json:"purchase_cost"`
	SellingPrice decimal.NullDecimal `json:"selling_price"`
}

// Sale is an outbound customer transaction fulfilled from a store's warehouse.
type Sale struct {
	ID          int64           `json:"id"`
	StoreID     int64           `json:"store_id"`
	WarehouseID int64           `json:"warehouse_id"`
	CustomerID  int64           `json:"customer_id,omitempty"`
	DebtorID    int64           `json:"debtor_id,omitempty"`
	PaymentType PaymentType     `json:"payment_type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []LineItem      `json:"items"`
	Changes     []StockChange   `json:"changes,omitempty"`
}

// Return is an inbound customer transaction crediting stock back.
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
	Items       []LineItem      `json:"items"`
	Changes     []StockChange   `json:"changes,omitempty"`
}

// LineItem is a sale or return line.
type LineItem struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// StoreRef is the slice of a store the ledger needs.
type StoreRef struct {
	ID          int64
	WarehouseID int64
	Active      bool
}

// SaleRef is the slice of a sale a return needs.
type SaleRef struct {
	ID          int64
	StoreID     int64
	WarehouseID int64
	CustomerID  int64
	DebtorID    int64
	PaymentType PaymentType
}

// ReceiptInput requests a Receipt movement.
type ReceiptInput struct {
	WarehouseID    int64              `json:"warehouse_id" validate:"required,gt=0"`
	SupplierID     int64              `json:"supplier_id" validate:"required,gt=0"`
	Items          []ReceiptItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID        int64              `json:"-"`
	IdempotencyKey string             `json:"-"`
}

// ReceiptItemInput is one line of a ReceiptInput.
type ReceiptItemInput struct {
	ProductID    int64               `json:"product_id" validate:"required,gt=0"`
	BoxesQty     int64               `json:"boxes_qty" validate:"gte=0"`
	PiecesPerBox int64               `json:"pieces_per_box" validate:"gte=0"`
	LoosePieces  int64               `json:"loose_pieces" validate:"gte=0"`
	WeightKg     decimal.NullDecimal `json:"weight_kg"`
	VolumeCbm    decimal.NullDecimal `json:"volume_cbm"`
	Amount       decimal.Decimal     `json:"amount"`
	PurchaseCost decimal.NullDecimal `json:"purchase_cost"`
	SellingPrice decimal.NullDecimal `json:"selling_price"`
}

// TotalPieces derives the pieces added by the line.
func (i ReceiptItemInput) TotalPieces() int64 {
	return i.BoxesQty*i.PiecesPerBox + i.LoosePieces
}

// TransferInput requests a Transfer movement.
type TransferInput struct {
	FromWarehouseID int64               `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64               `json:"to_warehouse_id" validate:"required,gt=0"`
	ProductID       int64               `json:"product_id" validate:"required,gt=0"`
	Pieces          int64               `json:"total_pieces" validate:"required,gt=0"`
	WeightKg        decimal.NullDecimal `json:"weight_kg"`
	VolumeCbm       decimal.NullDecimal `json:"volume_cbm"`
	Reason          string              `json:"reason" validate:"max=500"`
	ActorID         int64               `json:"-"`
	IdempotencyKey  string              `json:"-"`
}

// TransferResult reports both sides of a transfer.
type TransferResult struct {
	Source      StockPosition `json:"source"`
	Destination StockPosition `json:"destination"`
	Out         StockChange   `json:"out"`
	In          StockChange   `json:"in"`
}

// LineInput is one requested sale or return line.
type LineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleInput requests a SaleDeduction movement.
type SaleInput struct {
	StoreID        int64       `json:"store_id" validate:"required,gt=0"`
	CustomerID     int64       `json:"customer_id" validate:"gte=0"`
	PaymentType    PaymentType `json:"payment_type" validate:"omitempty,oneof=debt paid retail_debt"`
	DebtorName     string      `json:"debtor_name" validate:"max=255"`
	DebtorPhone    string      `json:"debtor_phone" validate:"max=50"`
	Items          []LineInput `json:"items" validate:"required,min=1,dive"`
	ActorID        int64       `json:"-"`
	IdempotencyKey string      `json:"-"`
}

// ReturnInput requests a ReturnCredit movement.
type ReturnInput struct {
	SaleID         int64       `json:"sale_id" validate:"gte=0"`
	StoreID        int64       `json:"store_id" validate:"gte=0"`
	WarehouseID    int64       `json:"warehouse_id" validate:"gte=0"`
	CustomerID     int64       `json:"customer_id" validate:"gte=0"`
	Reason         string      `json:"reason" validate:"max=500"`
	Items          []LineInput `json:"items" validate:"required,min=1,dive"`
	ActorID        int64       `json:"-"`
	IdempotencyKey string      `json:"-"`
}

// AdjustInput requests a ManualAdjustment of one position.
type AdjustInput struct {
	PositionID     int64               `json:"-"`
	TotalPieces    *int64              `json:"total_pieces" validate:"required,gte=0"`
	WeightKg       decimal.NullDecimal `json:"weight_kg"`
	VolumeCbm      decimal.NullDecimal `json:"volume_cbm"`
	Reason         string              `json:"reason" validate:"max=500"`
	ActorID        int64               `json:"-"`
	IdempotencyKey string              `json:"-"`
}

// PositionFilter narrows position listings.
type PositionFilter struct {
	WarehouseID int64
	ProductID   int64
	InStockOnly bool
	Limit       int
	Offset      int
}

// ChangeFilter narrows audit trail listings.
type ChangeFilter struct {
	WarehouseID int64
	ProductID   int64
	Type        ChangeType
	Limit       int
	Offset      int
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	WarehouseID int64
	SupplierID  int64
	Limit       int
	Offset      int
}
