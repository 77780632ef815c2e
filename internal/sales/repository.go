package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed reads over posted sales and returns.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const saleSelect = `SELECT s.id, s.store_id, st.name, s.warehouse_id,
	COALESCE(s.customer_id, 0), COALESCE(c.full_name, ''),
	COALESCE(s.debtor_id, 0), COALESCE(d.full_name, ''),
	s.payment_type, s.total_amount, COALESCE(s.created_by, 0), s.created_at
	FROM sales s
	JOIN stores st ON st.id = s.store_id
	LEFT JOIN customers c ON c.id = s.customer_id
	LEFT JOIN debtors d ON d.id = s.debtor_id`

const returnSelect = `SELECT r.id, COALESCE(r.sale_id, 0), COALESCE(r.store_id, 0), r.warehouse_id,
	COALESCE(r.customer_id, 0), COALESCE(r.debtor_id, 0), r.total_amount,
	COALESCE(r.reason, ''), COALESCE(r.created_by, 0), r.created_at
	FROM returns r`

// conditions accumulates positional WHERE clauses.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) period(column string, p Period) {
	if !p.From.IsZero() {
		c.add(column+" >= $%d", p.From)
	}
	if !p.To.IsZero() {
		c.add(column+" < $%d", p.To)
	}
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (c *conditions) page(limit, offset int) (string, []any) {
	if limit <= 0 {
		limit = 100
	}
	n := len(c.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), append(append([]any{}, c.args...), limit, offset)
}

func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, int, error) {
	var cond conditions
	if filter.StoreID > 0 {
		cond.add("s.store_id = $%d", filter.StoreID)
	}
	if filter.CustomerID > 0 {
		cond.add("s.customer_id = $%d", filter.CustomerID)
	}
	if filter.PaymentType != "" {
		cond.add("s.payment_type = $%d", filter.PaymentType)
	}
	cond.period("s.created_at", filter.Period)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales s"+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	page, args := cond.page(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, saleSelect+cond.where()+" ORDER BY s.created_at DESC, s.id DESC"+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
	}
	return out, total, rows.Err()
}

func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, saleSelect+" WHERE s.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sale", id)
	}
	return sale, err
}

// SaleLines groups the sale by product and joins what has been returned so far.
func (r *Repository) SaleLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT si.product_id, p.code, p.name, SUM(si.quantity)::BIGINT,
		       COALESCE(rt.qty, 0)::BIGINT, MIN(si.unit_price), SUM(si.total_price)
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		LEFT JOIN (
			SELECT ri.product_id, SUM(ri.quantity) AS qty
			FROM return_items ri
			JOIN returns r ON r.id = ri.return_id
			WHERE r.sale_id = $1
			GROUP BY ri.product_id
		) rt ON rt.product_id = si.product_id
		WHERE si.sale_id = $1
		GROUP BY si.product_id, p.code, p.name, rt.qty
		ORDER BY si.product_id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale lines: %w", err)
	}
	defer rows.Close()
	var out []SaleLine
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ProductID, &l.ProductCode, &l.ProductName, &l.Quantity, &l.ReturnedQty, &l.UnitPrice, &l.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) ListReturns(ctx context.Context, filter ReturnFilter) ([]Return, int, error) {
	var cond conditions
	if filter.SaleID > 0 {
		cond.add("r.sale_id = $%d", filter.SaleID)
	}
	if filter.StoreID > 0 {
		cond.add("r.store_id = $%d", filter.StoreID)
	}
	cond.period("r.created_at", filter.Period)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM returns r"+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count returns: %w", err)
	}

	page, args := cond.page(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, returnSelect+cond.where()+" ORDER BY r.created_at DESC, r.id DESC"+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	ret, err := scanReturn(r.pool.QueryRow(ctx, returnSelect+" WHERE r.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, shared.NotFound("return", id)
	}
	return ret, err
}

func (r *Repository) ReturnLines(ctx context.Context, returnID int64) ([]ReturnLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ri.product_id, p.code, p.name, ri.quantity, ri.unit_price, ri.total_price
		FROM return_items ri
		JOIN products p ON p.id = ri.product_id
		WHERE ri.return_id = $1
		ORDER BY ri.id`, returnID)
	if err != nil {
		return nil, fmt.Errorf("return lines: %w", err)
	}
	defer rows.Close()
	var out []ReturnLine
	for rows.Next() {
		var l ReturnLine
		if err := rows.Scan(&l.ProductID, &l.ProductCode, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) StoreExists(ctx context.Context, storeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID).Scan(&exists)
	return exists, err
}

func (r *Repository) PaymentTotals(ctx context.Context, storeID int64, period Period) ([]PaymentTotal, error) {
	var cond conditions
	cond.add("store_id = $%d", storeID)
	cond.period("created_at", period)
	rows, err := r.pool.Query(ctx, `SELECT payment_type, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM sales`+cond.where()+` GROUP BY payment_type ORDER BY payment_type`, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("payment totals: %w", err)
	}
	defer rows.Close()
	var out []PaymentTotal
	for rows.Next() {
		var t PaymentTotal
		if err := rows.Scan(&t.PaymentType, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) ReturnTotals(ctx context.Context, storeID int64, period Period) (int, decimal.Decimal, error) {
	var cond conditions
	cond.add("store_id = $%d", storeID)
	cond.period("created_at", period)
	var count int
	var amount decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM returns`+cond.where(), cond.args...).
		Scan(&count, &amount)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("return totals: %w", err)
	}
	return count, amount, nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.StoreID, &s.StoreName, &s.WarehouseID, &s.CustomerID, &s.CustomerName,
		&s.DebtorID, &s.DebtorName, &s.PaymentType, &s.TotalAmount, &s.CreatedBy, &s.CreatedAt)
	return s, err
}

func scanReturn(row pgx.Row) (Return, error) {
	var r Return
	err := row.Scan(&r.ID, &r.SaleID, &r.StoreID, &r.WarehouseID, &r.CustomerID, &r.DebtorID,
		&r.TotalAmount, &r.Reason, &r.CreatedBy, &r.CreatedAt)
	return r, err
}
