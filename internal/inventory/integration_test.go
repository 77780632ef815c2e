package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/accounts"
	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/testing/pgtest"
)

func newPostgresService(t *testing.T) (*inventory.Service, *pgxpool.Pool) {
	t.Helper()
	pool := pgtest.Start(t)
	pgtest.Exec(t, pool,
		`INSERT INTO warehouses (id, name) VALUES (1, 'Central'), (2, 'North')`,
		`INSERT INTO products (id, code, name, selling_price) VALUES (1, 'P-1', 'Widget', 12.50)`,
		`INSERT INTO suppliers (id, name) VALUES (1, 'Acme')`,
		`INSERT INTO stores (id, name, warehouse_id) VALUES (1, 'Main street', 1)`,
		`INSERT INTO customers (id, full_name) VALUES (1, 'Jane Roe')`,
	)
	repo := inventory.NewRepository(pool, func(tx pgx.Tx) inventory.LedgerPort {
		return accounts.NewTxLedger(tx)
	})
	svc := inventory.NewService(repo, shared.NewIdempotencyStore(pool), inventory.ServiceConfig{})
	return svc, pool
}

func receive(t *testing.T, svc *inventory.Service, pieces int64) {
	t.Helper()
	_, err := svc.PostReceipt(context.Background(), inventory.ReceiptInput{
		WarehouseID: 1,
		SupplierID:  1,
		Items: []inventory.ReceiptItemInput{
			{ProductID: 1, LoosePieces: pieces, Amount: decimal.NewFromInt(pieces * 10)},
		},
	})
	require.NoError(t, err)
}

func TestPostgresReceiptAndTransfer(t *testing.T) {
	svc, pool := newPostgresService(t)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, inventory.ReceiptInput{
		WarehouseID: 1,
		SupplierID:  1,
		Items: []inventory.ReceiptItemInput{
			{ProductID: 1, BoxesQty: 5, PiecesPerBox: 10, LoosePieces: 5, Amount: decimal.NewFromInt(550)},
		},
	})
	require.NoError(t, err)

	var balance decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT balance FROM suppliers WHERE id = 1`).Scan(&balance))
	require.True(t, balance.Equal(decimal.NewFromInt(550)))

	result, err := svc.PostTransfer(ctx, inventory.TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Pieces: 20})
	require.NoError(t, err)
	require.EqualValues(t, 35, result.Source.Pieces)
	require.EqualValues(t, 20, result.Destination.Pieces)
	require.EqualValues(t, 55, result.Out.Old.Pieces)
	require.EqualValues(t, 0, result.In.Old.Pieces)

	changes, err := svc.ListChanges(ctx, inventory.ChangeFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, changes, 3)

	_, err = svc.PostTransfer(ctx, inventory.TransferInput{FromWarehouseID: 2, ToWarehouseID: 1, ProductID: 1, Pieces: 21})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	pos, err := svc.GetPosition(ctx, 2, 1)
	require.NoError(t, err)
	require.EqualValues(t, 20, pos.Pieces)
}

func TestPostgresConcurrentSalesNeverOversell(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()
	receive(t, svc, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PostSale(ctx, inventory.SaleInput{
				StoreID:     1,
				PaymentType: inventory.PaymentPaid,
				Items:       []inventory.LineInput{{ProductID: 1, Quantity: 6, UnitPrice: decimal.NewFromInt(12)}},
			})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, short)

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, pos.Pieces)
}

func TestPostgresDebtSaleAndReturnBooksCustomer(t *testing.T) {
	svc, pool := newPostgresService(t)
	ctx := context.Background()
	receive(t, svc, 10)

	sale, err := svc.PostSale(ctx, inventory.SaleInput{
		StoreID:    1,
		CustomerID: 1,
		Items:      []inventory.LineInput{{ProductID: 1, Quantity: 5, UnitPrice: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)
	require.Equal(t, inventory.PaymentDebt, sale.PaymentType)

	_, err = svc.PostReturn(ctx, inventory.ReturnInput{
		SaleID: sale.ID,
		Items:  []inventory.LineInput{{ProductID: 1, Quantity: 6, UnitPrice: decimal.NewFromInt(20)}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostReturn(ctx, inventory.ReturnInput{
		SaleID: sale.ID,
		Items:  []inventory.LineInput{{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)

	var balance decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT balance FROM customers WHERE id = 1`).Scan(&balance))
	require.True(t, balance.Equal(decimal.NewFromInt(-40)), balance.String())

	rows, err := pool.Query(ctx, `SELECT amount FROM customer_ledger WHERE customer_id = 1 ORDER BY id`)
	require.NoError(t, err)
	amounts, err := pgx.CollectRows(rows, pgx.RowTo[decimal.Decimal])
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	require.True(t, amounts[0].Equal(decimal.NewFromInt(-100)), "debt sale is booked as a negative amount")
	require.True(t, amounts[1].Equal(decimal.NewFromInt(60)), "return credits the customer")

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 8, pos.Pieces)
}

func TestPostgresRetailDebtOpensDebtor(t *testing.T) {
	svc, pool := newPostgresService(t)
	ctx := context.Background()
	receive(t, svc, 10)

	for i := 0; i < 2; i++ {
		_, err := svc.PostSale(ctx, inventory.SaleInput{
			StoreID:     1,
			PaymentType: inventory.PaymentRetailDebt,
			DebtorName:  "Walk-in Bob",
			DebtorPhone: "+998901112233",
			Items:       []inventory.LineInput{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(15)}},
		})
		require.NoError(t, err)
	}

	var debtors int
	var balance decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM debtors`).Scan(&debtors, &balance))
	require.Equal(t, 1, debtors)
	require.True(t, balance.Equal(decimal.NewFromInt(30)))
}

func TestPostgresIntegrityFindings(t *testing.T) {
	pool := pgtest.Start(t)
	pgtest.Exec(t, pool,
		`INSERT INTO warehouses (id, name) VALUES (1, 'Central')`,
		`INSERT INTO products (id, code, name) VALUES (1, 'P-1', 'Widget'), (2, 'P-2', 'Gadget')`,
		`INSERT INTO suppliers (id, name) VALUES (1, 'Acme')`,
	)
	repo := inventory.NewRepository(pool, func(tx pgx.Tx) inventory.LedgerPort {
		return accounts.NewTxLedger(tx)
	})
	svc := inventory.NewService(repo, nil, inventory.ServiceConfig{})
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, inventory.ReceiptInput{
		WarehouseID: 1,
		SupplierID:  1,
		Items: []inventory.ReceiptItemInput{
			{ProductID: 1, LoosePieces: 10, Amount: decimal.NewFromInt(100)},
			{ProductID: 2, LoosePieces: 4, Amount: decimal.NewFromInt(40)},
		},
	})
	require.NoError(t, err)

	findings, err := repo.IntegrityFindings(ctx)
	require.NoError(t, err)
	require.Empty(t, findings)

	pgtest.Exec(t, pool, `UPDATE warehouse_stock SET total_pieces = 7 WHERE product_id = 2`)

	findings, err = repo.IntegrityFindings(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, inventory.FindingDrift, findings[0].Kind)
	require.EqualValues(t, 2, findings[0].ProductID)
}
