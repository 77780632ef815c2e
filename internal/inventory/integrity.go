package inventory

import (
	"context"
	"fmt"
)

// Integrity finding kinds.
const (
	FindingNegative = "negative"
	FindingDrift    = "drift"
)

// IntegrityFinding describes a position that breaks a ledger invariant.
type IntegrityFinding struct {
	Kind        string `json:"kind"`
	WarehouseID int64  `json:"warehouse_id"`
	ProductID   int64  `json:"product_id"`
	Detail      string `json:"detail"`
}

const negativePositionsQuery = `SELECT warehouse_id, product_id, total_pieces,
	COALESCE(weight_kg::text, ''), COALESCE(volume_cbm::text, '')
FROM warehouse_stock
WHERE total_pieces < 0 OR weight_kg < 0 OR volume_cbm < 0
ORDER BY warehouse_id, product_id`

// A position drifts when its current row disagrees with the new_* values of
// its most recent change record.
const driftedPositionsQuery = `SELECT s.warehouse_id, s.product_id, s.total_pieces, c.new_total_pieces
FROM warehouse_stock s
JOIN LATERAL (
	SELECT new_total_pieces, new_weight_kg, new_volume_cbm
	FROM stock_changes
	WHERE warehouse_id = s.warehouse_id AND product_id = s.product_id
	ORDER BY id DESC
	LIMIT 1
) c ON TRUE
WHERE c.new_total_pieces <> s.total_pieces
	OR c.new_weight_kg IS DISTINCT FROM s.weight_kg
	OR c.new_volume_cbm IS DISTINCT FROM s.volume_cbm
ORDER BY s.warehouse_id, s.product_id`

// IntegrityFindings scans every position for negative quantities and for
// drift against the change history.
func (r *Repository) IntegrityFindings(ctx context.Context) ([]IntegrityFinding, error) {
	var findings []IntegrityFinding

	rows, err := r.pool.Query(ctx, negativePositionsQuery)
	if err != nil {
		return nil, fmt.Errorf("scan negative positions: %w", err)
	}
	for rows.Next() {
		var (
			f              IntegrityFinding
			pieces         int64
			weight, volume string
		)
		if err := rows.Scan(&f.WarehouseID, &f.ProductID, &pieces, &weight, &volume); err != nil {
			rows.Close()
			return nil, err
		}
		f.Kind = FindingNegative
		f.Detail = fmt.Sprintf("pieces=%d weight_kg=%s volume_cbm=%s", pieces, weight, volume)
		findings = append(findings, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, driftedPositionsQuery)
	if err != nil {
		return nil, fmt.Errorf("scan drifted positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			f               IntegrityFinding
			current, logged int64
		)
		if err := rows.Scan(&f.WarehouseID, &f.ProductID, &current, &logged); err != nil {
			return nil, err
		}
		f.Kind = FindingDrift
		f.Detail = fmt.Sprintf("position pieces=%d, last change recorded %d", current, logged)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
