package catalog

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

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new catalog repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

// Warehouse operations
func (r *repo) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	where, args := searchClause(filters.Search, "name")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, name, created_at FROM warehouses` + where +
		` ORDER BY ` + sortOrder(filters, map[string]string{"name": "name", "created": "created_at"}, "name") +
		pageClause(len(args))
	rows, err := r.db.Query(ctx, query, append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	warehouses := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.Name, &w.CreatedAt)
	return w, notFound(err, "warehouse", id)
}

func (r *repo) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (name) VALUES ($1) RETURNING id, created_at`, warehouse.Name).
		Scan(&warehouse.ID, &warehouse.CreatedAt)
	return warehouse, err
}

func (r *repo) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) (Warehouse, error) {
	err := r.db.QueryRow(ctx, `UPDATE warehouses SET name = $1 WHERE id = $2 RETURNING id, name, created_at`, warehouse.Name, id).
		Scan(&warehouse.ID, &warehouse.Name, &warehouse.CreatedAt)
	return warehouse, notFound(err, "warehouse", id)
}

func (r *repo) DeleteWarehouse(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("warehouse", "still referenced by stores or sales")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("warehouse", id)
	}
	return nil
}

// Store operations
func (r *repo) ListStores(ctx context.Context, filters ListFilters) ([]Store, int, error) {
	where, args := searchClause(filters.Search, "s.name")
	if filters.WarehouseID > 0 {
		args = append(args, filters.WarehouseID)
		where = appendCond(where, fmt.Sprintf("s.warehouse_id = $%d", len(args)))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where = appendCond(where, fmt.Sprintf("s.is_active = $%d", len(args)))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stores s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT s.id, s.name, COALESCE(s.city, ''), s.warehouse_id, w.name, s.is_active, s.created_at
FROM stores s JOIN warehouses w ON w.id = s.warehouse_id` + where +
		` ORDER BY ` + sortOrder(filters, map[string]string{"name": "s.name", "city": "s.city"}, "s.name") +
		pageClause(len(args))
	rows, err := r.db.Query(ctx, query, append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	stores := []Store{}
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, 0, err
		}
		stores = append(stores, s)
	}
	return stores, total, rows.Err()
}

func (r *repo) GetStore(ctx context.Context, id int64) (Store, error) {
	s, err := scanStore(r.db.QueryRow(ctx, `SELECT s.id, s.name, COALESCE(s.city, ''), s.warehouse_id, w.name, s.is_active, s.created_at
FROM stores s JOIN warehouses w ON w.id = s.warehouse_id WHERE s.id = $1`, id))
	return s, notFound(err, "store", id)
}

func (r *repo) CreateStore(ctx context.Context, store Store) (Store, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO stores (name, city, warehouse_id, is_active) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		store.Name, nullString(store.City), store.WarehouseID, store.Active()).Scan(&store.ID, &store.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return Store{}, shared.NotFound("warehouse", store.WarehouseID)
	}
	return store, err
}

func (r *repo) UpdateStore(ctx context.Context, id int64, store Store) (Store, error) {
	tag, err := r.db.Exec(ctx, `UPDATE stores SET name = $1, city = $2, warehouse_id = $3, is_active = $4 WHERE id = $5`,
		store.Name, nullString(store.City), store.WarehouseID, store.Active(), id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Store{}, shared.NotFound("warehouse", store.WarehouseID)
		}
		return Store{}, err
	}
	if tag.RowsAffected() == 0 {
		return Store{}, shared.NotFound("store", id)
	}
	return r.GetStore(ctx, id)
}

func (r *repo) DeleteStore(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("store", "has recorded sales")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("store", id)
	}
	return nil
}

func (r *repo) StoreWarehouseID(ctx context.Context, storeID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT warehouse_id FROM stores WHERE id = $1`, storeID).Scan(&id)
	return id, notFound(err, "store", storeID)
}

// Product operations
func (r *repo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where, args := searchClause(filters.Search, "code", "name", "manufacturer")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, code, name, COALESCE(manufacturer, ''), COALESCE(image, ''), purchase_cost, selling_price, created_at
FROM products` + where +
		` ORDER BY ` + sortOrder(filters, map[string]string{"code": "code", "name": "name", "price": "selling_price"}, "name") +
		pageClause(len(args))
	rows, err := r.db.Query(ctx, query, append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT id, code, name, COALESCE(manufacturer, ''), COALESCE(image, ''), purchase_cost, selling_price, created_at
FROM products WHERE id = $1`, id))
	return p, notFound(err, "product", id)
}

func (r *repo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO products (code, name, manufacturer, image, purchase_cost, selling_price)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		product.Code, product.Name, nullString(product.Manufacturer), nullString(product.Image), product.PurchaseCost, product.SellingPrice).
		Scan(&product.ID, &product.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Product{}, shared.Conflict("product", fmt.Sprintf("code %s already exists", product.Code))
	}
	return product, err
}

func (r *repo) UpdateProduct(ctx context.Context, id int64, product Product) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `UPDATE products
SET code = $1, name = $2, manufacturer = $3, image = $4, purchase_cost = $5, selling_price = $6
WHERE id = $7
RETURNING id, code, name, COALESCE(manufacturer, ''), COALESCE(image, ''), purchase_cost, selling_price, created_at`,
		product.Code, product.Name, nullString(product.Manufacturer), nullString(product.Image), product.PurchaseCost, product.SellingPrice, id))
	if db.IsUniqueViolation(err) {
		return Product{}, shared.Conflict("product", fmt.Sprintf("code %s already exists", product.Code))
	}
	return p, notFound(err, "product", id)
}

func (r *repo) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("product", "referenced by stock, receipts, sales or returns")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("product", id)
	}
	return nil
}

// Supplier operations
func (r *repo) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	where, args := searchClause(filters.Search, "name", "phone")
	if filters.Status != nil {
		args = append(args, *filters.Status)
		where = appendCond(where, fmt.Sprintf("status = $%d", len(args)))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, name, COALESCE(phone, ''), balance, status, created_at, updated_at FROM suppliers` + where +
		` ORDER BY ` + sortOrder(filters, map[string]string{"name": "name", "balance": "balance"}, "name") +
		pageClause(len(args))
	rows, err := r.db.Query(ctx, query, append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `SELECT id, name, COALESCE(phone, ''), balance, status, created_at, updated_at FROM suppliers WHERE id = $1`, id))
	return s, notFound(err, "supplier", id)
}

func (r *repo) SupplierLedger(ctx context.Context, id int64, limit int) ([]SupplierEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, COALESCE(receipt_id, 0), amount, balance_after, COALESCE(note, ''), created_at
FROM supplier_ledger WHERE supplier_id = $1 ORDER BY id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []SupplierEntry{}
	for rows.Next() {
		var e SupplierEntry
		if err := rows.Scan(&e.ID, &e.ReceiptID, &e.Amount, &e.BalanceAfter, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `INSERT INTO suppliers (name, phone, status) VALUES ($1, $2, $3)
RETURNING id, name, COALESCE(phone, ''), balance, status, created_at, updated_at`,
		supplier.Name, nullString(supplier.Phone), supplier.Status))
	return s, err
}

func (r *repo) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `UPDATE suppliers SET name = $1, phone = $2, status = $3, updated_at = NOW() WHERE id = $4
RETURNING id, name, COALESCE(phone, ''), balance, status, created_at, updated_at`,
		supplier.Name, nullString(supplier.Phone), supplier.Status, id))
	return s, notFound(err, "supplier", id)
}

func (r *repo) SetSupplierStatus(ctx context.Context, id int64, status int16) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("supplier", id)
	}
	return nil
}

func scanStore(row pgx.Row) (Store, error) {
	var s Store
	var active bool
	err := row.Scan(&s.ID, &s.Name, &s.City, &s.WarehouseID, &s.WarehouseName, &active, &s.CreatedAt)
	s.IsActive = &active
	return s, err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Manufacturer, &p.Image, &p.PurchaseCost, &p.SellingPrice, &p.CreatedAt)
	return p, err
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Balance, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, id)
	}
	return err
}

func searchClause(search string, columns ...string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	conds := make([]string, 0, len(columns))
	for _, col := range columns {
		conds = append(conds, col+" ILIKE $1")
	}
	return " WHERE (" + strings.Join(conds, " OR ") + ")", []any{"%" + search + "%"}
}

func appendCond(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}

func pageClause(argCount int) string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount+1, argCount+2)
}

func sortOrder(filters ListFilters, columns map[string]string, fallback string) string {
	dir := "ASC"
	if filters.SortDir == "desc" {
		dir = "DESC"
	}
	col, ok := columns[filters.SortBy]
	if !ok {
		col = fallback
	}
	return col + " " + dir
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
