package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Dimension names a measure checked by the guard.
type Dimension string

const (
	DimensionPieces Dimension = "pieces"
	DimensionWeight Dimension = "weight_kg"
	DimensionVolume Dimension = "volume_cbm"
)

// InsufficientStockError reports a decrement that would leave a measure negative.
type InsufficientStockError struct {
	WarehouseID int64
	ProductID   int64
	Dimension   Dimension
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s for product %d in warehouse %d: requested %s, available %s",
		e.Dimension, e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return shared.ErrInsufficientStock }

// ProblemFields exposes the shortfall to API clients.
func (e *InsufficientStockError) ProblemFields() map[string]any {
	return map[string]any{
		"warehouse_id": e.WarehouseID,
		"product_id":   e.ProductID,
		"dimension":    e.Dimension,
		"requested":    e.Requested.String(),
		"available":    e.Available.String(),
	}
}

// checkPieces rejects taking more pieces than the position holds.
func checkPieces(pos StockPosition, requested int64) error {
	if requested <= pos.Pieces {
		return nil
	}
	return &InsufficientStockError{
		WarehouseID: pos.WarehouseID,
		ProductID:   pos.ProductID,
		Dimension:   DimensionPieces,
		Requested:   decimal.NewFromInt(requested),
		Available:   decimal.NewFromInt(pos.Pieces),
	}
}

// checkMeasure rejects taking more weight or volume than tracked. Untracked
// measures and absent amounts are never rejected.
func checkMeasure(pos StockPosition, dim Dimension, current, requested decimal.NullDecimal) error {
	if !current.Valid || !requested.Valid {
		return nil
	}
	if requested.Decimal.LessThanOrEqual(current.Decimal) {
		return nil
	}
	return &InsufficientStockError{
		WarehouseID: pos.WarehouseID,
		ProductID:   pos.ProductID,
		Dimension:   dim,
		Requested:   requested.Decimal,
		Available:   current.Decimal,
	}
}

// checkTake runs every guard for removing m from pos.
func checkTake(pos StockPosition, m Measures) error {
	if err := checkPieces(pos, m.Pieces); err != nil {
		return err
	}
	if err := checkMeasure(pos, DimensionWeight, pos.WeightKg, m.WeightKg); err != nil {
		return err
	}
	return checkMeasure(pos, DimensionVolume, pos.VolumeCbm, m.VolumeCbm)
}

// subtractClamped removes amount from a tracked measure, flooring at zero to
// absorb rounding drift. Untracked measures stay untracked.
func subtractClamped(current, amount decimal.NullDecimal) decimal.NullDecimal {
	if !current.Valid || !amount.Valid {
		return current
	}
	out := current.Decimal.Sub(amount.Decimal)
	if out.IsNegative() {
		out = decimal.Zero
	}
	return decimal.NewNullDecimal(out)
}

// addMeasure adds amount when one is given, starting an untracked measure at zero.
func addMeasure(current, amount decimal.NullDecimal) decimal.NullDecimal {
	if !amount.Valid {
		return current
	}
	return decimal.NewNullDecimal(orZero(current).Add(amount.Decimal))
}

// accumulate is the receipt rule: both sides default to zero and the result is tracked.
func accumulate(current, amount decimal.NullDecimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(orZero(current).Add(orZero(amount)))
}

func orZero(v decimal.NullDecimal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	return decimal.Zero
}

func nonNegative(field string, v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return shared.Invalid(field, "must be >= 0")
	}
	return nil
}
