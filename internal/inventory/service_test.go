package inventory

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	mainWarehouse   int64 = 1
	branchWarehouse int64 = 2
	widget          int64 = 10
	gadget          int64 = 11
	supplier        int64 = 20
	store           int64 = 30
	customer        int64 = 40
)

func newFixture() *memoryRepo {
	return newMemoryRepo().
		withWarehouse(mainWarehouse, "Main").
		withWarehouse(branchWarehouse, "Branch").
		withProducts(widget, gadget).
		withSupplier(supplier, true).
		withStore(store, mainWarehouse, true).
		withCustomer(customer)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireShortage(t *testing.T, err error, dim Dimension) *InsufficientStockError {
	t.Helper()
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var shortage *InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, dim, shortage.Dimension)
	return shortage
}

func TestPostReceiptCreatesPosition(t *testing.T) {
	repo := newFixture()
	obs := newCountingObserver()
	svc := NewService(repo, nil, ServiceConfig{Observer: obs})

	receipt, err := svc.PostReceipt(context.Background(), ReceiptInput{
		WarehouseID: mainWarehouse,
		SupplierID:  supplier,
		ActorID:     7,
		Items: []ReceiptItemInput{{
			ProductID:    widget,
			BoxesQty:     5,
			PiecesPerBox: 10,
			LoosePieces:  5,
			WeightKg:     nd("12.5"),
			Amount:       dec("550"),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(55), receipt.Items[0].TotalPieces)
	require.True(t, receipt.TotalAmount.Equal(dec("550")))

	pos, ok := repo.position(mainWarehouse, widget)
	require.True(t, ok)
	require.Equal(t, int64(55), pos.Pieces)
	require.True(t, pos.WeightKg.Valid)
	require.Equal(t, "12.5", pos.WeightKg.Decimal.String())
	require.True(t, pos.VolumeCbm.Valid, "receipts start tracking every measure")
	require.True(t, pos.VolumeCbm.Decimal.IsZero())

	require.Len(t, receipt.Changes, 1)
	change := receipt.Changes[0]
	require.Equal(t, ChangeIn, change.Type)
	require.Equal(t, int64(0), change.Old.Pieces)
	require.Equal(t, int64(55), change.New.Pieces)
	require.Equal(t, int64(7), change.ActorID)
	require.Equal(t, "Receipt #"+itoa(receipt.ID), change.Reason)

	state := repo.snapshot()
	require.True(t, state.supplierBalance[supplier].Equal(dec("550")))
	require.Equal(t, 1, obs.posted["receipt"])
}

func TestPostReceiptAccumulatesRepeatedProduct(t *testing.T) {
	repo := newFixture().withStock(mainWarehouse, widget, 5, nd("1"), decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	receipt, err := svc.PostReceipt(context.Background(), ReceiptInput{
		WarehouseID: mainWarehouse,
		SupplierID:  supplier,
		Items: []ReceiptItemInput{
			{ProductID: widget, LoosePieces: 3, WeightKg: nd("2"), Amount: dec("30")},
			{ProductID: widget, LoosePieces: 4, Amount: dec("40")},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Changes, 2)
	require.Equal(t, int64(5), receipt.Changes[0].Old.Pieces)
	require.Equal(t, int64(8), receipt.Changes[0].New.Pieces)
	require.Equal(t, int64(8), receipt.Changes[1].Old.Pieces)
	require.Equal(t, int64(12), receipt.Changes[1].New.Pieces)

	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(12), pos.Pieces)
	require.Equal(t, "3", pos.WeightKg.Decimal.String())
}

func TestPostReceiptRejections(t *testing.T) {
	ctx := context.Background()
	item := []ReceiptItemInput{{ProductID: widget, LoosePieces: 1, Amount: dec("1")}}

	repo := newFixture().withSupplier(21, false)
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: 21, Items: item})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 99, SupplierID: supplier, Items: item})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier,
		Items: []ReceiptItemInput{{ProductID: 999, LoosePieces: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier,
		Items: []ReceiptItemInput{{ProductID: widget, BoxesQty: -1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier,
		Items: []ReceiptItemInput{{ProductID: widget, BoxesQty: math.MaxInt64, PiecesPerBox: 2}}})
	require.ErrorIs(t, err, shared.ErrValidation, "box counts beyond the column width")

	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier,
		Items: []ReceiptItemInput{{ProductID: widget, BoxesQty: math.MaxInt32, PiecesPerBox: math.MaxInt32, LoosePieces: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation, "derived pieces above MaxQuantity")

	require.Empty(t, repo.snapshot().changes)
	require.Empty(t, repo.snapshot().receipts)
}

func TestPostReceiptRollsBackOnItemFailure(t *testing.T) {
	repo := newFixture()
	repo.failOnChange = 2
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostReceipt(context.Background(), ReceiptInput{
		WarehouseID: mainWarehouse,
		SupplierID:  supplier,
		Items: []ReceiptItemInput{
			{ProductID: widget, LoosePieces: 3, Amount: dec("3")},
			{ProductID: gadget, LoosePieces: 4, Amount: dec("4")},
		},
	})
	require.ErrorIs(t, err, errInjected)

	state := repo.snapshot()
	require.Empty(t, state.positions)
	require.Empty(t, state.receipts)
	require.Empty(t, state.changes)
	require.True(t, state.supplierBalance[supplier].IsZero())
}

func TestPostTransferMovesStock(t *testing.T) {
	repo := newFixture().withStock(mainWarehouse, widget, 55, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	result, err := svc.PostTransfer(context.Background(), TransferInput{
		FromWarehouseID: mainWarehouse,
		ToWarehouseID:   branchWarehouse,
		ProductID:       widget,
		Pieces:          20,
	})
	require.NoError(t, err)
	require.Equal(t, int64(35), result.Source.Pieces)
	require.Equal(t, int64(20), result.Destination.Pieces)

	require.Equal(t, ChangeOut, result.Out.Type)
	require.Equal(t, mainWarehouse, result.Out.WarehouseID)
	require.Equal(t, int64(55), result.Out.Old.Pieces)
	require.Equal(t, int64(35), result.Out.New.Pieces)
	require.Equal(t, "Transfer to warehouse Branch", result.Out.Reason)

	require.Equal(t, ChangeIn, result.In.Type)
	require.Equal(t, branchWarehouse, result.In.WarehouseID)
	require.Equal(t, int64(0), result.In.Old.Pieces)
	require.Equal(t, int64(20), result.In.New.Pieces)
	require.Equal(t, "Transfer from warehouse Main", result.In.Reason)

	require.Len(t, repo.snapshot().changes, 2)
	src, _ := repo.position(mainWarehouse, widget)
	dst, _ := repo.position(branchWarehouse, widget)
	require.Equal(t, int64(35), src.Pieces)
	require.Equal(t, int64(20), dst.Pieces)
}

func TestPostTransferMeasures(t *testing.T) {
	repo := newFixture().
		withStock(mainWarehouse, widget, 10, nd("5.000"), decimal.NullDecimal{}).
		withStock(branchWarehouse, widget, 0, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	result, err := svc.PostTransfer(context.Background(), TransferInput{
		FromWarehouseID: mainWarehouse,
		ToWarehouseID:   branchWarehouse,
		ProductID:       widget,
		Pieces:          4,
		WeightKg:        nd("2"),
		VolumeCbm:       nd("1"),
		Reason:          "rebalance",
	})
	require.NoError(t, err)
	require.Equal(t, "3", result.Source.WeightKg.Decimal.String())
	require.False(t, result.Source.VolumeCbm.Valid, "untracked source measure stays untracked")
	require.Equal(t, "2", result.Destination.WeightKg.Decimal.String())
	require.Equal(t, "1", result.Destination.VolumeCbm.Decimal.String())
	require.Equal(t, "rebalance", result.Out.Reason)
	require.Equal(t, "rebalance", result.In.Reason)
}

func TestPostTransferInsufficient(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 10, nd("3"), decimal.NullDecimal{})
	obs := newCountingObserver()
	svc := NewService(repo, nil, ServiceConfig{Observer: obs})

	_, err := svc.PostTransfer(ctx, TransferInput{FromWarehouseID: mainWarehouse, ToWarehouseID: branchWarehouse, ProductID: widget, Pieces: 11})
	shortage := requireShortage(t, err, DimensionPieces)
	require.Equal(t, "10", shortage.Available.String())
	require.Equal(t, "11", shortage.Requested.String())

	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: mainWarehouse, ToWarehouseID: branchWarehouse, ProductID: widget, Pieces: 1, WeightKg: nd("3.5")})
	requireShortage(t, err, DimensionWeight)

	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: branchWarehouse, ToWarehouseID: mainWarehouse, ProductID: widget, Pieces: 1})
	shortage = requireShortage(t, err, DimensionPieces)
	require.True(t, shortage.Available.IsZero())

	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(10), pos.Pieces)
	_, ok := repo.position(branchWarehouse, widget)
	require.False(t, ok)
	require.Empty(t, repo.snapshot().changes)
	require.Equal(t, 2, obs.shortages["pieces"])
	require.Equal(t, 1, obs.shortages["weight_kg"])
}

func TestPostTransferValidation(t *testing.T) {
	svc := NewService(newFixture(), nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.PostTransfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 1, ProductID: widget, Pieces: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: widget, Pieces: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: widget, Pieces: MaxQuantity + 1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 77, ProductID: widget, Pieces: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostTransferIsAtomic(t *testing.T) {
	repo := newFixture().withStock(mainWarehouse, widget, 55, decimal.NullDecimal{}, decimal.NullDecimal{})
	repo.failOnChange = 2
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostTransfer(context.Background(), TransferInput{
		FromWarehouseID: mainWarehouse,
		ToWarehouseID:   branchWarehouse,
		ProductID:       widget,
		Pieces:          20,
	})
	require.ErrorIs(t, err, errInjected)

	src, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(55), src.Pieces)
	_, ok := repo.position(branchWarehouse, widget)
	require.False(t, ok)
	require.Empty(t, repo.snapshot().changes)
}

func TestPostSaleDeductsAndAudits(t *testing.T) {
	repo := newFixture().
		withStock(mainWarehouse, widget, 10, nd("4"), decimal.NullDecimal{}).
		withStock(mainWarehouse, gadget, 3, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	sale, err := svc.PostSale(context.Background(), SaleInput{
		StoreID:    store,
		CustomerID: customer,
		Items: []LineInput{
			{ProductID: gadget, Quantity: 1, UnitPrice: dec("5")},
			{ProductID: widget, Quantity: 2, UnitPrice: dec("2.5")},
			{ProductID: widget, Quantity: 3, UnitPrice: dec("2.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, PaymentDebt, sale.PaymentType)
	require.Equal(t, mainWarehouse, sale.WarehouseID)
	require.True(t, sale.TotalAmount.Equal(dec("17.5")))

	require.Len(t, sale.Changes, 2, "one OUT record per product")
	require.Equal(t, widget, sale.Changes[0].ProductID)
	require.Equal(t, int64(10), sale.Changes[0].Old.Pieces)
	require.Equal(t, int64(5), sale.Changes[0].New.Pieces)
	require.Equal(t, "Sale #"+itoa(sale.ID), sale.Changes[0].Reason)
	require.Equal(t, ChangeOut, sale.Changes[1].Type)

	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(5), pos.Pieces)
	require.Equal(t, "4", pos.WeightKg.Decimal.String(), "sales only move pieces")

	state := repo.snapshot()
	require.True(t, state.customerBalance[customer].Equal(dec("-17.5")))
	require.Empty(t, state.cash)
}

func TestPostSalePaymentTypes(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 100, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})
	line := []LineInput{{ProductID: widget, Quantity: 1, UnitPrice: dec("9")}}

	paid, err := svc.PostSale(ctx, SaleInput{StoreID: store, Items: line})
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, paid.PaymentType)

	retail, err := svc.PostSale(ctx, SaleInput{StoreID: store, PaymentType: PaymentRetailDebt, DebtorName: "Walk-in", DebtorPhone: "555", Items: line})
	require.NoError(t, err)
	require.NotZero(t, retail.DebtorID)

	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, PaymentType: PaymentRetailDebt, DebtorName: "Walk-in", DebtorPhone: "555", Items: line})
	require.NoError(t, err)

	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, PaymentType: PaymentDebt, Items: line})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, PaymentType: PaymentRetailDebt, Items: line})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, CustomerID: 999, Items: line})
	require.ErrorIs(t, err, shared.ErrNotFound)

	state := repo.snapshot()
	require.Len(t, state.cash, 1)
	require.Equal(t, "sale", state.cash[0].Kind)
	require.Len(t, state.debtors, 1)
	require.True(t, state.debtors[retail.DebtorID].Balance.Equal(dec("18")))
	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(97), pos.Pieces)
}

func TestPostSaleRejections(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().
		withStock(mainWarehouse, widget, 10, decimal.NullDecimal{}, decimal.NullDecimal{}).
		withStore(31, mainWarehouse, false)
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{
		{ProductID: widget, Quantity: 6},
		{ProductID: widget, Quantity: 6},
	}})
	shortage := requireShortage(t, err, DimensionPieces)
	require.Equal(t, "12", shortage.Requested.String(), "lines for one product are checked together")

	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{{ProductID: gadget, Quantity: 1}}})
	shortage = requireShortage(t, err, DimensionPieces)
	require.Equal(t, gadget, shortage.ProductID)

	_, err = svc.PostSale(ctx, SaleInput{StoreID: 31, Items: []LineInput{{ProductID: widget, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.PostSale(ctx, SaleInput{StoreID: 99, Items: []LineInput{{ProductID: widget, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{
		{ProductID: widget, Quantity: math.MaxInt64},
		{ProductID: widget, Quantity: 2},
	}})
	require.ErrorIs(t, err, shared.ErrValidation, "summed quantities must not wrap")
	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{
		{ProductID: widget, Quantity: MaxQuantity},
		{ProductID: widget, Quantity: 1},
	}})
	require.ErrorIs(t, err, shared.ErrValidation)

	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(10), pos.Pieces)
	require.Empty(t, repo.snapshot().sales)
	require.Empty(t, repo.snapshot().changes)
}

func TestConcurrentSalesNeverOverdraw(t *testing.T) {
	repo := newFixture().withStock(mainWarehouse, widget, 10, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PostSale(context.Background(), SaleInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 6}}})
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
	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(4), pos.Pieces)
}

func TestPostReturnBoundedBySale(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 5, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})

	sale, err := svc.PostSale(ctx, SaleInput{StoreID: store, CustomerID: customer, Items: []LineInput{{ProductID: widget, Quantity: 5, UnitPrice: dec("2")}}})
	require.NoError(t, err)
	require.True(t, repo.snapshot().customerBalance[customer].Equal(dec("-10")), "debt is a negative balance")

	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{{ProductID: widget, Quantity: 6, UnitPrice: dec("2")}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(0), pos.Pieces, "rejected return leaves stock untouched")

	first, err := svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{{ProductID: widget, Quantity: 3, UnitPrice: dec("2")}}})
	require.NoError(t, err)
	require.Equal(t, mainWarehouse, first.WarehouseID)
	require.Equal(t, customer, first.CustomerID)
	require.Len(t, first.Changes, 1)
	require.Equal(t, int64(0), first.Changes[0].Old.Pieces)
	require.Equal(t, int64(3), first.Changes[0].New.Pieces)
	require.Equal(t, "Return #"+itoa(first.ID)+" (sale #"+itoa(sale.ID)+")", first.Changes[0].Reason)

	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{{ProductID: widget, Quantity: 3}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{{ProductID: gadget, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation, "product not on the sale")

	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{
		{ProductID: widget, Quantity: math.MaxInt64},
		{ProductID: widget, Quantity: math.MaxInt64},
	}})
	require.ErrorIs(t, err, shared.ErrValidation, "summed quantities must not wrap")
	pos, _ = repo.position(mainWarehouse, widget)
	require.Equal(t, int64(3), pos.Pieces)

	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: sale.ID, Items: []LineInput{{ProductID: widget, Quantity: 2, UnitPrice: dec("2")}}})
	require.NoError(t, err)

	pos, _ = repo.position(mainWarehouse, widget)
	require.Equal(t, int64(5), pos.Pieces)
	state := repo.snapshot()
	require.True(t, state.customerBalance[customer].IsZero(), "debt sale fully returned")
}

func TestPostReturnCreditsOrigin(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 10, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})
	line := []LineInput{{ProductID: widget, Quantity: 2, UnitPrice: dec("4")}}

	retail, err := svc.PostSale(ctx, SaleInput{StoreID: store, PaymentType: PaymentRetailDebt, DebtorName: "Walk-in", Items: line})
	require.NoError(t, err)
	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: retail.ID, Items: []LineInput{{ProductID: widget, Quantity: 1, UnitPrice: dec("4")}}})
	require.NoError(t, err)

	paid, err := svc.PostSale(ctx, SaleInput{StoreID: store, Items: line})
	require.NoError(t, err)
	_, err = svc.PostReturn(ctx, ReturnInput{SaleID: paid.ID, Items: line})
	require.NoError(t, err)

	state := repo.snapshot()
	require.True(t, state.debtors[retail.DebtorID].Balance.Equal(dec("4")))
	require.Len(t, state.cash, 2)
	require.Equal(t, "refund", state.cash[1].Kind)
	require.True(t, state.cash[1].Amount.Equal(dec("8")))
}

func TestPostReturnWarehouseResolution(t *testing.T) {
	ctx := context.Background()
	repo := newFixture()
	line := []LineInput{{ProductID: widget, Quantity: 1, UnitPrice: dec("1")}}

	svc := NewService(repo, nil, ServiceConfig{})
	_, err := svc.PostReturn(ctx, ReturnInput{Items: line})
	require.ErrorIs(t, err, shared.ErrValidation)

	ret, err := svc.PostReturn(ctx, ReturnInput{WarehouseID: branchWarehouse, CustomerID: customer, Items: line})
	require.NoError(t, err)
	require.Equal(t, branchWarehouse, ret.WarehouseID)
	require.Equal(t, "Return #"+itoa(ret.ID), ret.Changes[0].Reason)
	require.True(t, repo.snapshot().customerBalance[customer].Equal(dec("1")))

	ret, err = svc.PostReturn(ctx, ReturnInput{StoreID: store, Items: line})
	require.NoError(t, err)
	require.Equal(t, mainWarehouse, ret.WarehouseID)

	withDefault := NewService(repo, nil, ServiceConfig{DefaultWarehouseID: branchWarehouse})
	ret, err = withDefault.PostReturn(ctx, ReturnInput{Items: line})
	require.NoError(t, err)
	require.Equal(t, branchWarehouse, ret.WarehouseID)

	pos, _ := repo.position(branchWarehouse, widget)
	require.Equal(t, int64(2), pos.Pieces)
	require.False(t, pos.WeightKg.Valid, "returns never touch weight")

	_, err = svc.PostReturn(ctx, ReturnInput{WarehouseID: 77, Items: line})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

type stubStores map[int64]int64

func (s stubStores) StoreWarehouse(_ context.Context, id int64) (int64, error) {
	wh, ok := s[id]
	if !ok {
		return 0, shared.NotFound("store", id)
	}
	return wh, nil
}

func TestPostReturnUsesStoreDirectory(t *testing.T) {
	repo := newFixture()
	svc := NewService(repo, nil, ServiceConfig{Stores: stubStores{store: branchWarehouse}})

	ret, err := svc.PostReturn(context.Background(), ReturnInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, branchWarehouse, ret.WarehouseID)
}

func TestAdjustPosition(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 10, nd("2"), decimal.NullDecimal{})
	svc := NewService(repo, nil, ServiceConfig{})
	pos, _ := repo.position(mainWarehouse, widget)

	pieces := int64(3)
	change, err := svc.AdjustPosition(ctx, AdjustInput{PositionID: pos.ID, TotalPieces: &pieces, VolumeCbm: nd("0.5"), Reason: "stocktake", ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, ChangeAdjustment, change.Type)
	require.Equal(t, int64(10), change.Old.Pieces)
	require.Equal(t, int64(3), change.New.Pieces)
	require.Equal(t, "2", change.Old.WeightKg.Decimal.String())
	require.False(t, change.New.WeightKg.Valid)
	require.Equal(t, "0.5", change.New.VolumeCbm.Decimal.String())
	require.Equal(t, "stocktake", change.Reason)

	raised := int64(500)
	_, err = svc.AdjustPosition(ctx, AdjustInput{PositionID: pos.ID, TotalPieces: &raised})
	require.NoError(t, err)

	negative := int64(-1)
	_, err = svc.AdjustPosition(ctx, AdjustInput{PositionID: pos.ID, TotalPieces: &negative})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.AdjustPosition(ctx, AdjustInput{PositionID: pos.ID, TotalPieces: &pieces, WeightKg: nd("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.AdjustPosition(ctx, AdjustInput{PositionID: 999, TotalPieces: &pieces})
	require.ErrorIs(t, err, shared.ErrNotFound)

	current, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(500), current.Pieces)
}

func TestIdempotencyKeyClaimedOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFixture().withStock(mainWarehouse, widget, 10, decimal.NullDecimal{}, decimal.NullDecimal{})
	idem := &memoryIdempotency{}
	svc := NewService(repo, idem, ServiceConfig{})
	in := SaleInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 1}}, IdempotencyKey: "abc"}

	_, err := svc.PostSale(ctx, in)
	require.NoError(t, err)
	_, err = svc.PostSale(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)

	failing := in
	failing.IdempotencyKey = "def"
	failing.Items = []LineInput{{ProductID: widget, Quantity: 100}}
	_, err = svc.PostSale(ctx, failing)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	failing.Items = []LineInput{{ProductID: widget, Quantity: 1}}
	_, err = svc.PostSale(ctx, failing)
	require.NoError(t, err, "failed attempts release their key")

	pos, _ := repo.position(mainWarehouse, widget)
	require.Equal(t, int64(8), pos.Pieces)
}

func TestChangeRecordsMatchPositionDeltas(t *testing.T) {
	ctx := context.Background()
	repo := newFixture()
	svc := NewService(repo, nil, ServiceConfig{})

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: mainWarehouse, SupplierID: supplier,
		Items: []ReceiptItemInput{{ProductID: widget, BoxesQty: 2, PiecesPerBox: 12}}})
	require.NoError(t, err)
	_, err = svc.PostTransfer(ctx, TransferInput{FromWarehouseID: mainWarehouse, ToWarehouseID: branchWarehouse, ProductID: widget, Pieces: 9})
	require.NoError(t, err)
	_, err = svc.PostSale(ctx, SaleInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 4}}})
	require.NoError(t, err)
	_, err = svc.PostReturn(ctx, ReturnInput{StoreID: store, Items: []LineInput{{ProductID: widget, Quantity: 1}}})
	require.NoError(t, err)

	history, err := svc.ListChanges(ctx, ChangeFilter{})
	require.NoError(t, err)
	require.Len(t, history, 5)

	net := map[posKey]int64{}
	for _, c := range history {
		switch c.Type {
		case ChangeIn:
			require.Greater(t, c.New.Pieces, c.Old.Pieces)
		case ChangeOut:
			require.Less(t, c.New.Pieces, c.Old.Pieces)
		}
		net[posKey{c.WarehouseID, c.ProductID}] += c.New.Pieces - c.Old.Pieces
	}
	for k, delta := range net {
		pos, _ := repo.position(k.warehouse, k.product)
		require.Equal(t, delta, pos.Pieces)
		require.GreaterOrEqual(t, pos.Pieces, int64(0))
	}

	_, err = svc.ListChanges(ctx, ChangeFilter{Type: "BOGUS"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetPositionAbsentIsZero(t *testing.T) {
	svc := NewService(newFixture(), nil, ServiceConfig{})
	pos, err := svc.GetPosition(context.Background(), mainWarehouse, widget)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos.Pieces)
	require.Equal(t, widget, pos.ProductID)
}

func TestValidateLinesBoundsProductTotals(t *testing.T) {
	require.NoError(t, validateLines([]LineInput{
		{ProductID: widget, Quantity: MaxQuantity - 1},
		{ProductID: widget, Quantity: 1},
		{ProductID: gadget, Quantity: MaxQuantity},
	}))

	err := validateLines([]LineInput{
		{ProductID: widget, Quantity: math.MaxInt64},
		{ProductID: widget, Quantity: 2},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))

	wanted, ids := aggregate([]LineInput{{ProductID: gadget, Quantity: 4}, {ProductID: widget, Quantity: 2}, {ProductID: gadget, Quantity: 1}})
	require.Equal(t, []int64{widget, gadget}, ids)
	require.Equal(t, int64(5), wanted[gadget])
}
