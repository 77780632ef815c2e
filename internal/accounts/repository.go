package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListCustomers(ctx context.Context, req ListRequest) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, id int64, customer Customer) (Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	CustomerSales(ctx context.Context, id int64) ([]Transaction, error)
	CustomerReturns(ctx context.Context, id int64) ([]Transaction, error)
	CustomerLedger(ctx context.Context, id int64, limit int) ([]LedgerEntry, error)
	PostCustomer(ctx context.Context, id int64, entry LedgerEntry) (LedgerEntry, error)

	ListDebtors(ctx context.Context, req ListRequest) ([]Debtor, int, error)
	GetDebtor(ctx context.Context, id int64) (Debtor, error)
	LockDebtor(ctx context.Context, id int64) (Debtor, error)
	DebtorLedger(ctx context.Context, id int64, limit int) ([]LedgerEntry, error)
	PostDebtor(ctx context.Context, id int64, entry LedgerEntry) (LedgerEntry, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const customerColumns = `id, full_name, COALESCE(phone, ''), COALESCE(city, ''), balance, created_at, updated_at`

func (r *repository) ListCustomers(ctx context.Context, req ListRequest) ([]Customer, int, error) {
	where, args := listConditions(req, "balance < 0", "full_name", "phone", "city")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM customers%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limitOrDefault(req.Limit), req.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	return c, notFound(err, "customer", id)
}

func (r *repository) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`INSERT INTO customers (full_name, phone, city) VALUES ($1, $2, $3) RETURNING `+customerColumns,
		customer.FullName, nullString(customer.Phone), nullString(customer.City)))
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (r *repository) UpdateCustomer(ctx context.Context, id int64, customer Customer) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`UPDATE customers SET full_name = $2, phone = $3, city = $4, updated_at = NOW()
		 WHERE id = $1 RETURNING `+customerColumns,
		id, customer.FullName, nullString(customer.Phone), nullString(customer.City)))
	return c, notFound(err, "customer", id)
}

func (r *repository) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("customer", id)
	}
	return nil
}

func (r *repository) CustomerSales(ctx context.Context, id int64) ([]Transaction, error) {
	return r.transactions(ctx, `SELECT id, 'sale', total_amount, created_at FROM sales
		WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, id)
}

func (r *repository) CustomerReturns(ctx context.Context, id int64) ([]Transaction, error) {
	return r.transactions(ctx, `SELECT id, 'return', total_amount, created_at FROM returns
		WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, id)
}

func (r *repository) transactions(ctx context.Context, query string, id int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("customer transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Date); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) CustomerLedger(ctx context.Context, id int64, limit int) ([]LedgerEntry, error) {
	return r.ledger(ctx, "customer_ledger", "customer_id", id, limit)
}

func (r *repository) PostCustomer(ctx context.Context, id int64, entry LedgerEntry) (LedgerEntry, error) {
	return r.post(ctx, "customers", "customer_ledger", "customer_id", "customer", id, entry)
}

const debtorColumns = `id, full_name, COALESCE(phone, ''), balance, created_at, updated_at`

func (r *repository) ListDebtors(ctx context.Context, req ListRequest) ([]Debtor, int, error) {
	where, args := listConditions(req, "balance > 0", "full_name", "phone")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM debtors"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count debtors: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM debtors%s ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		debtorColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limitOrDefault(req.Limit), req.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list debtors: %w", err)
	}
	defer rows.Close()

	var debtors []Debtor
	for rows.Next() {
		d, err := scanDebtor(rows)
		if err != nil {
			return nil, 0, err
		}
		debtors = append(debtors, d)
	}
	return debtors, total, rows.Err()
}

func (r *repository) GetDebtor(ctx context.Context, id int64) (Debtor, error) {
	d, err := scanDebtor(r.db.QueryRow(ctx, `SELECT `+debtorColumns+` FROM debtors WHERE id = $1`, id))
	return d, notFound(err, "debtor", id)
}

func (r *repository) LockDebtor(ctx context.Context, id int64) (Debtor, error) {
	d, err := scanDebtor(r.db.QueryRow(ctx, `SELECT `+debtorColumns+` FROM debtors WHERE id = $1 FOR UPDATE`, id))
	return d, notFound(err, "debtor", id)
}

func (r *repository) DebtorLedger(ctx context.Context, id int64, limit int) ([]LedgerEntry, error) {
	return r.ledger(ctx, "debtor_ledger", "debtor_id", id, limit)
}

func (r *repository) PostDebtor(ctx context.Context, id int64, entry LedgerEntry) (LedgerEntry, error) {
	return r.post(ctx, "debtors", "debtor_ledger", "debtor_id", "debtor", id, entry)
}

// post moves an account balance by entry.Amount and appends the ledger line
// carrying the resulting balance.
func (r *repository) post(ctx context.Context, table, ledger, fk, entity string, id int64, entry LedgerEntry) (LedgerEntry, error) {
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`, table),
		id, entry.Amount).Scan(&entry.BalanceAfter)
	if err != nil {
		return LedgerEntry{}, notFound(err, entity, id)
	}
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, amount, balance_after, ref_type, ref_id, note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`, ledger, fk),
		id, entry.Amount, entry.BalanceAfter, entry.RefType, nullInt(entry.RefID), nullString(entry.Note), nullInt(entry.CreatedBy)).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("insert %s: %w", ledger, err)
	}
	return entry, nil
}

func (r *repository) ledger(ctx context.Context, table, fk string, id int64, limit int) ([]LedgerEntry, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, amount, balance_after, ref_type, COALESCE(ref_id, 0),
		COALESCE(note, ''), COALESCE(created_by, 0), created_at
		FROM %s WHERE %s = $1 ORDER BY id DESC LIMIT $2`, table, fk), id, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Amount, &e.BalanceAfter, &e.RefType, &e.RefID, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.City, &c.Balance, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanDebtor(row pgx.Row) (Debtor, error) {
	var d Debtor
	err := row.Scan(&d.ID, &d.FullName, &d.Phone, &d.Balance, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// listConditions builds the WHERE clause for a list request. debtCondition
// selects accounts that owe money, which differs between customers and debtors.
func listConditions(req ListRequest, debtCondition string, columns ...string) (string, []any) {
	var conditions []string
	var args []any
	if search := strings.TrimSpace(req.Search); search != "" {
		args = append(args, "%"+search+"%")
		parts := make([]string, len(columns))
		for i, col := range columns {
			parts[i] = fmt.Sprintf("%s ILIKE $1", col)
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}
	if req.Debt {
		conditions = append(conditions, debtCondition)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, id)
	}
	return err
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
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
