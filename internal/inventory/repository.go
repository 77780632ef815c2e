package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// LedgerFactory binds a LedgerPort to the movement's transaction.
type LedgerFactory func(tx pgx.Tx) LedgerPort

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger LedgerFactory
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, ledger LedgerFactory) *Repository {
	return &Repository{pool: pool, ledger: ledger}
}

type txRepository struct {
	tx     pgx.Tx
	ledger LedgerPort
}

const positionColumns = `id, warehouse_id, product_id, total_pieces, weight_kg, volume_cbm, updated_at`

const changeColumns = `id, warehouse_id, product_id, COALESCE(user_id, 0), change_type,
old_total_pieces, old_weight_kg, old_volume_cbm, new_total_pieces, new_weight_kg, new_volume_cbm,
COALESCE(reason, ''), created_at`

// WithTx executes the callback inside a read-committed transaction, replaying
// it when Postgres aborts the attempt as a deadlock victim.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		wrapper := &txRepository{tx: tx}
		if r.ledger != nil {
			wrapper.ledger = r.ledger(tx)
		}
		return fn(ctx, wrapper)
	})
}

func (r *Repository) ListPositions(ctx context.Context, filter PositionFilter) ([]PositionView, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("s.warehouse_id=$%d", len(args)))
	}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("s.product_id=$%d", len(args)))
	}
	if filter.InStockOnly {
		conds = append(conds, "s.total_pieces > 0")
	}
	query := `SELECT s.id, s.warehouse_id, s.product_id, s.total_pieces, s.weight_kg, s.volume_cbm, s.updated_at,
w.name, p.code, p.name, p.selling_price
FROM warehouse_stock s
JOIN warehouses w ON w.id = s.warehouse_id
JOIN products p ON p.id = s.product_id`
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	query += fmt.Sprintf("\nORDER BY w.name, p.code\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := []PositionView{}
	for rows.Next() {
		var v PositionView
		if err := rows.Scan(&v.ID, &v.WarehouseID, &v.ProductID, &v.Pieces, &v.WeightKg, &v.VolumeCbm, &v.UpdatedAt,
			&v.WarehouseName, &v.ProductCode, &v.ProductName, &v.SellingPrice); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *Repository) GetPosition(ctx context.Context, warehouseID, productID int64) (StockPosition, error) {
	pos, err := scanPosition(r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM warehouse_stock WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPosition{}, shared.NotFound("stock position", fmt.Sprintf("%d/%d", warehouseID, productID))
	}
	return pos, err
}

func (r *Repository) ListChanges(ctx context.Context, filter ChangeFilter) ([]StockChange, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("warehouse_id=$%d", len(args)))
	}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id=$%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("change_type=$%d", len(args)))
	}
	query := `SELECT ` + changeColumns + ` FROM stock_changes`
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	query += fmt.Sprintf("\nORDER BY id DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	changes := []StockChange{}
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func (r *Repository) GetChange(ctx context.Context, id int64) (StockChange, error) {
	change, err := scanChange(r.pool.QueryRow(ctx, `SELECT `+changeColumns+` FROM stock_changes WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockChange{}, shared.NotFound("stock change", id)
	}
	return change, err
}

func (r *Repository) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("warehouse_id=$%d", len(args)))
	}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		conds = append(conds, fmt.Sprintf("supplier_id=$%d", len(args)))
	}
	query := `SELECT id, warehouse_id, supplier_id, COALESCE(created_by, 0), total_amount, created_at FROM stock_receipts`
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	query += fmt.Sprintf("\nORDER BY id DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipts := []Receipt{}
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.WarehouseID, &rc.SupplierID, &rc.CreatedBy, &rc.TotalAmount, &rc.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, rows.Err()
}

func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rc Receipt
	err := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, supplier_id, COALESCE(created_by, 0), total_amount, created_at
FROM stock_receipts WHERE id=$1`, id).Scan(&rc.ID, &rc.WarehouseID, &rc.SupplierID, &rc.CreatedBy, &rc.TotalAmount, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, shared.NotFound("receipt", id)
		}
		return Receipt{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, product_id, boxes_qty, pieces_per_box, loose_pieces, total_pieces,
weight_kg, volume_cbm, amount, purchase_cost, selling_price
FROM stock_receipt_items WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.ProductID, &it.BoxesQty, &it.PiecesPerBox, &it.LoosePieces, &it.TotalPieces,
			&it.WeightKg, &it.VolumeCbm, &it.Amount, &it.PurchaseCost, &it.SellingPrice); err != nil {
			return Receipt{}, err
		}
		rc.Items = append(rc.Items, it)
	}
	return rc, rows.Err()
}

func (r *txRepository) Ledger() LedgerPort { return r.ledger }

func (r *txRepository) WarehouseName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT name FROM warehouses WHERE id=$1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.NotFound("warehouse", id)
	}
	return name, err
}

func (r *txRepository) SupplierActive(ctx context.Context, id int64) (bool, error) {
	var status int16
	err := r.tx.QueryRow(ctx, `SELECT status FROM suppliers WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, shared.NotFound("supplier", id)
	}
	return status == 1, err
}

func (r *txRepository) EnsureProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := r.tx.Query(ctx, `SELECT id FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		found[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return shared.NotFound("product", id)
		}
	}
	return nil
}

func (r *txRepository) Store(ctx context.Context, id int64) (StoreRef, error) {
	var ref StoreRef
	err := r.tx.QueryRow(ctx, `SELECT id, warehouse_id, is_active FROM stores WHERE id=$1`, id).Scan(&ref.ID, &ref.WarehouseID, &ref.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoreRef{}, shared.NotFound("store", id)
	}
	return ref, err
}

func (r *txRepository) LockPosition(ctx context.Context, warehouseID, productID int64) (StockPosition, bool, error) {
	pos, err := scanPosition(r.tx.QueryRow(ctx, `SELECT `+positionColumns+` FROM warehouse_stock WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockPosition{WarehouseID: warehouseID, ProductID: productID}, false, nil
		}
		return StockPosition{}, false, err
	}
	return pos, true, nil
}

func (r *txRepository) EnsurePosition(ctx context.Context, warehouseID, productID int64) (StockPosition, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO warehouse_stock (warehouse_id, product_id, total_pieces) VALUES ($1,$2,0)
ON CONFLICT (warehouse_id, product_id) DO NOTHING`, warehouseID, productID); err != nil {
		if db.IsForeignKeyViolation(err) {
			return StockPosition{}, shared.NotFound("warehouse or product", fmt.Sprintf("%d/%d", warehouseID, productID))
		}
		return StockPosition{}, err
	}
	pos, found, err := r.LockPosition(ctx, warehouseID, productID)
	if err != nil {
		return StockPosition{}, err
	}
	if !found {
		return StockPosition{}, fmt.Errorf("inventory: position %d/%d vanished after insert", warehouseID, productID)
	}
	return pos, nil
}

func (r *txRepository) LockPositionByID(ctx context.Context, id int64) (StockPosition, error) {
	pos, err := scanPosition(r.tx.QueryRow(ctx, `SELECT `+positionColumns+` FROM warehouse_stock WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockPosition{}, shared.NotFound("stock position", id)
	}
	return pos, err
}

func (r *txRepository) SavePosition(ctx context.Context, pos StockPosition) (StockPosition, error) {
	out, err := scanPosition(r.tx.QueryRow(ctx, `UPDATE warehouse_stock
SET total_pieces=$2, weight_kg=$3, volume_cbm=$4, updated_at=NOW()
WHERE id=$1
RETURNING `+positionColumns, pos.ID, pos.Pieces, pos.WeightKg, pos.VolumeCbm))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockPosition{}, shared.NotFound("stock position", pos.ID)
		}
		if db.IsCheckViolation(err) {
			return StockPosition{}, fmt.Errorf("%w: position %d would go negative", shared.ErrInsufficientStock, pos.ID)
		}
		return StockPosition{}, err
	}
	return out, nil
}

func (r *txRepository) InsertChange(ctx context.Context, change StockChange) (StockChange, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_changes (warehouse_id, product_id, user_id, change_type,
old_total_pieces, old_weight_kg, old_volume_cbm, new_total_pieces, new_weight_kg, new_volume_cbm, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, created_at`,
		change.WarehouseID, change.ProductID, nullInt(change.ActorID), string(change.Type),
		change.Old.Pieces, change.Old.WeightKg, change.Old.VolumeCbm,
		change.New.Pieces, change.New.WeightKg, change.New.VolumeCbm, nullString(change.Reason)).
		Scan(&change.ID, &change.CreatedAt)
	return change, err
}

func (r *txRepository) InsertReceipt(ctx context.Context, receipt Receipt) (Receipt, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_receipts (warehouse_id, supplier_id, created_by, total_amount)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		receipt.WarehouseID, receipt.SupplierID, nullInt(receipt.CreatedBy), receipt.TotalAmount).
		Scan(&receipt.ID, &receipt.CreatedAt)
	if err != nil {
		return Receipt{}, err
	}
	for i := range receipt.Items {
		it := &receipt.Items[i]
		it.ReceiptID = receipt.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO stock_receipt_items (receipt_id, product_id, boxes_qty, pieces_per_box, loose_pieces,
total_pieces, weight_kg, volume_cbm, amount, purchase_cost, selling_price)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
			receipt.ID, it.ProductID, it.BoxesQty, it.PiecesPerBox, it.LoosePieces, it.TotalPieces,
			it.WeightKg, it.VolumeCbm, it.Amount, it.PurchaseCost, it.SellingPrice).Scan(&it.ID); err != nil {
			return Receipt{}, err
		}
	}
	return receipt, nil
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (store_id, warehouse_id, customer_id, debtor_id, payment_type, total_amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		sale.StoreID, sale.WarehouseID, nullInt(sale.CustomerID), nullInt(sale.DebtorID), string(sale.PaymentType),
		sale.TotalAmount, nullInt(sale.CreatedBy)).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Sale{}, shared.NotFound("customer", sale.CustomerID)
		}
		return Sale{}, err
	}
	if err := r.insertLines(ctx, "sale_items", "sale_id", sale.ID, sale.Items); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (r *txRepository) LockSale(ctx context.Context, id int64) (SaleRef, error) {
	var ref SaleRef
	var payment string
	err := r.tx.QueryRow(ctx, `SELECT id, store_id, warehouse_id, COALESCE(customer_id, 0), COALESCE(debtor_id, 0), payment_type
FROM sales WHERE id=$1 FOR UPDATE`, id).Scan(&ref.ID, &ref.StoreID, &ref.WarehouseID, &ref.CustomerID, &ref.DebtorID, &payment)
	if errors.Is(err, pgx.ErrNoRows) {
		return SaleRef{}, shared.NotFound("sale", id)
	}
	ref.PaymentType = PaymentType(payment)
	return ref, err
}

func (r *txRepository) SoldQuantities(ctx context.Context, saleID int64) (map[int64]int64, error) {
	return r.quantities(ctx, `SELECT product_id, SUM(quantity) FROM sale_items WHERE sale_id=$1 GROUP BY product_id`, saleID)
}

func (r *txRepository) ReturnedQuantities(ctx context.Context, saleID int64) (map[int64]int64, error) {
	return r.quantities(ctx, `SELECT ri.product_id, SUM(ri.quantity)
FROM return_items ri JOIN returns rt ON rt.id = ri.return_id
WHERE rt.sale_id=$1 GROUP BY ri.product_id`, saleID)
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (Return, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO returns (sale_id, store_id, warehouse_id, customer_id, debtor_id, total_amount, reason, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		nullInt(ret.SaleID), nullInt(ret.StoreID), ret.WarehouseID, nullInt(ret.CustomerID), nullInt(ret.DebtorID),
		ret.TotalAmount, nullString(ret.Reason), nullInt(ret.CreatedBy)).Scan(&ret.ID, &ret.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Return{}, shared.NotFound("customer", ret.CustomerID)
		}
		return Return{}, err
	}
	if err := r.insertLines(ctx, "return_items", "return_id", ret.ID, ret.Items); err != nil {
		return Return{}, err
	}
	return ret, nil
}

func (r *txRepository) insertLines(ctx context.Context, table, parent string, parentID int64, items []LineItem) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, product_id, quantity, unit_price, total_price) VALUES ($1,$2,$3,$4,$5) RETURNING id`, table, parent)
	for i := range items {
		it := &items[i]
		if err := r.tx.QueryRow(ctx, query, parentID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) quantities(ctx context.Context, query string, saleID int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (StockPosition, error) {
	var pos StockPosition
	err := row.Scan(&pos.ID, &pos.WarehouseID, &pos.ProductID, &pos.Pieces, &pos.WeightKg, &pos.VolumeCbm, &pos.UpdatedAt)
	return pos, err
}

func scanChange(row pgx.Row) (StockChange, error) {
	var c StockChange
	var typ string
	err := row.Scan(&c.ID, &c.WarehouseID, &c.ProductID, &c.ActorID, &typ,
		&c.Old.Pieces, &c.Old.WeightKg, &c.Old.VolumeCbm, &c.New.Pieces, &c.New.WeightKg, &c.New.VolumeCbm,
		&c.Reason, &c.CreatedAt)
	c.Type = ChangeType(typ)
	return c, err
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
