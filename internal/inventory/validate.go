package inventory

import (
	"fmt"
	"math"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MaxQuantity bounds the pieces a single movement may move for one product.
// Keeping totals under it means per-product sums never wrap int64.
const MaxQuantity int64 = 1_000_000_000

// Receipt counts are stored in INTEGER columns.
const maxReceiptCount = math.MaxInt32

func validateReceipt(in ReceiptInput) error {
	if in.WarehouseID <= 0 {
		return shared.Invalid("warehouse_id", "is required")
	}
	if in.SupplierID <= 0 {
		return shared.Invalid("supplier_id", "is required")
	}
	if len(in.Items) == 0 {
		return shared.Invalid("items", "at least one item required")
	}
	for i, item := range in.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		if item.ProductID <= 0 {
			return shared.Invalid(field("product_id"), "is required")
		}
		if item.BoxesQty < 0 || item.PiecesPerBox < 0 || item.LoosePieces < 0 {
			return shared.Invalid(field("total_pieces"), "counts must be >= 0")
		}
		if item.BoxesQty > maxReceiptCount || item.PiecesPerBox > maxReceiptCount || item.LoosePieces > maxReceiptCount {
			return shared.Invalid(field("total_pieces"), fmt.Sprintf("counts must be <= %d", maxReceiptCount))
		}
		if item.TotalPieces() > MaxQuantity {
			return shared.Invalid(field("total_pieces"), fmt.Sprintf("must be <= %d", MaxQuantity))
		}
		if err := nonNegative(field("weight_kg"), item.WeightKg); err != nil {
			return err
		}
		if err := nonNegative(field("volume_cbm"), item.VolumeCbm); err != nil {
			return err
		}
		if item.Amount.IsNegative() {
			return shared.Invalid(field("amount"), "must be >= 0")
		}
	}
	return nil
}

func validateTransfer(in TransferInput) error {
	if in.FromWarehouseID <= 0 {
		return shared.Invalid("from_warehouse_id", "is required")
	}
	if in.ToWarehouseID <= 0 {
		return shared.Invalid("to_warehouse_id", "is required")
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return shared.Invalid("to_warehouse_id", "must differ from from_warehouse_id")
	}
	if in.ProductID <= 0 {
		return shared.Invalid("product_id", "is required")
	}
	if in.Pieces <= 0 {
		return shared.Invalid("total_pieces", "must be > 0")
	}
	if in.Pieces > MaxQuantity {
		return shared.Invalid("total_pieces", fmt.Sprintf("must be <= %d", MaxQuantity))
	}
	if err := nonNegative("weight_kg", in.WeightKg); err != nil {
		return err
	}
	return nonNegative("volume_cbm", in.VolumeCbm)
}

// validateSale checks the input and resolves the effective payment type.
func validateSale(in SaleInput) (PaymentType, error) {
	if in.StoreID <= 0 {
		return "", shared.Invalid("store_id", "is required")
	}
	if err := validateLines(in.Items); err != nil {
		return "", err
	}
	payment := in.PaymentType
	if payment == "" {
		payment = PaymentPaid
		if in.CustomerID > 0 {
			payment = PaymentDebt
		}
	}
	switch payment {
	case PaymentDebt:
		if in.CustomerID <= 0 {
			return "", shared.Invalid("customer_id", "required for debt sales")
		}
	case PaymentRetailDebt:
		if in.DebtorName == "" {
			return "", shared.Invalid("debtor_name", "required for retail debt sales")
		}
		if in.CustomerID > 0 {
			return "", shared.Invalid("customer_id", "retail debt sales are for unregistered buyers")
		}
	case PaymentPaid:
	default:
		return "", shared.Invalid("payment_type", "must be debt, paid or retail_debt")
	}
	return payment, nil
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return shared.Invalid("items", "at least one item required")
	}
	totals := make(map[int64]int64, len(lines))
	for i, line := range lines {
		if line.ProductID <= 0 {
			return shared.Invalid(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if line.Quantity <= 0 {
			return shared.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be > 0")
		}
		if line.Quantity > MaxQuantity-totals[line.ProductID] {
			return shared.Invalid(fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("product %d totals more than %d pieces", line.ProductID, MaxQuantity))
		}
		totals[line.ProductID] += line.Quantity
		if line.UnitPrice.IsNegative() {
			return shared.Invalid(fmt.Sprintf("items[%d].unit_price", i), "must be >= 0")
		}
	}
	return nil
}
