package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type posKey struct{ warehouse, product int64 }

type cashOp struct {
	StoreID int64
	Kind    string
	Amount  decimal.Decimal
	RefID   int64
}

type debtor struct {
	Name    string
	Phone   string
	Balance decimal.Decimal
}

// memoryState is everything a transaction can touch.
type memoryState struct {
	warehouses map[int64]string
	suppliers  map[int64]bool
	products   map[int64]bool
	stores     map[int64]StoreRef
	positions  map[posKey]StockPosition
	changes    []StockChange
	receipts   []Receipt
	sales      map[int64]Sale
	returns    []Return

	supplierBalance map[int64]decimal.Decimal
	customerBalance map[int64]decimal.Decimal
	debtors         map[int64]debtor
	cash            []cashOp

	nextID int64
}

func (s *memoryState) clone() *memoryState {
	out := *s
	out.warehouses = cloneMap(s.warehouses)
	out.suppliers = cloneMap(s.suppliers)
	out.products = cloneMap(s.products)
	out.stores = cloneMap(s.stores)
	out.positions = cloneMap(s.positions)
	out.sales = cloneMap(s.sales)
	out.supplierBalance = cloneMap(s.supplierBalance)
	out.customerBalance = cloneMap(s.customerBalance)
	out.debtors = cloneMap(s.debtors)
	out.changes = append([]StockChange(nil), s.changes...)
	out.receipts = append([]Receipt(nil), s.receipts...)
	out.returns = append([]Return(nil), s.returns...)
	out.cash = append([]cashOp(nil), s.cash...)
	return &out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

// memoryRepo serialises transactions behind one mutex and restores the
// snapshot taken at begin when the callback fails.
type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState

	// failOnChange makes the n-th InsertChange of a transaction fail.
	failOnChange int
}

var errInjected = errors.New("injected failure")

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		warehouses:      map[int64]string{},
		suppliers:       map[int64]bool{},
		products:        map[int64]bool{},
		stores:          map[int64]StoreRef{},
		positions:       map[posKey]StockPosition{},
		sales:           map[int64]Sale{},
		supplierBalance: map[int64]decimal.Decimal{},
		customerBalance: map[int64]decimal.Decimal{},
		debtors:         map[int64]debtor{},
		nextID:          1000,
	}}
}

func (r *memoryRepo) withWarehouse(id int64, name string) *memoryRepo {
	r.state.warehouses[id] = name
	return r
}

func (r *memoryRepo) withProducts(ids ...int64) *memoryRepo {
	for _, id := range ids {
		r.state.products[id] = true
	}
	return r
}

func (r *memoryRepo) withSupplier(id int64, active bool) *memoryRepo {
	r.state.suppliers[id] = active
	r.state.supplierBalance[id] = decimal.Zero
	return r
}

func (r *memoryRepo) withStore(id, warehouseID int64, active bool) *memoryRepo {
	r.state.stores[id] = StoreRef{ID: id, WarehouseID: warehouseID, Active: active}
	return r
}

func (r *memoryRepo) withCustomer(id int64) *memoryRepo {
	r.state.customerBalance[id] = decimal.Zero
	return r
}

func (r *memoryRepo) withStock(warehouseID, productID, pieces int64, weight, volume decimal.NullDecimal) *memoryRepo {
	r.state.positions[posKey{warehouseID, productID}] = StockPosition{
		ID:          r.state.id(),
		WarehouseID: warehouseID,
		ProductID:   productID,
		Measures:    Measures{Pieces: pieces, WeightKg: weight, VolumeCbm: volume},
	}
	return r
}

func (r *memoryRepo) position(warehouseID, productID int64) (StockPosition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.state.positions[posKey{warehouseID, productID}]
	return pos, ok
}

func (r *memoryRepo) snapshot() *memoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := r.state.clone()
	tx := &memoryTx{repo: r, state: r.state}
	if err := fn(ctx, tx); err != nil {
		r.state = saved
		return err
	}
	return nil
}

func (r *memoryRepo) ListPositions(_ context.Context, filter PositionFilter) ([]PositionView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := []PositionView{}
	for _, pos := range r.state.positions {
		if filter.WarehouseID > 0 && pos.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ProductID > 0 && pos.ProductID != filter.ProductID {
			continue
		}
		if filter.InStockOnly && pos.Pieces == 0 {
			continue
		}
		views = append(views, PositionView{StockPosition: pos, WarehouseName: r.state.warehouses[pos.WarehouseID]})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

func (r *memoryRepo) GetPosition(_ context.Context, warehouseID, productID int64) (StockPosition, error) {
	pos, ok := r.position(warehouseID, productID)
	if !ok {
		return StockPosition{}, shared.NotFound("stock position", warehouseID)
	}
	return pos, nil
}

func (r *memoryRepo) ListChanges(_ context.Context, filter ChangeFilter) ([]StockChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []StockChange{}
	for i := len(r.state.changes) - 1; i >= 0; i-- {
		c := r.state.changes[i]
		if filter.WarehouseID > 0 && c.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ProductID > 0 && c.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) GetChange(_ context.Context, id int64) (StockChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.state.changes {
		if c.ID == id {
			return c, nil
		}
	}
	return StockChange{}, shared.NotFound("stock change", id)
}

func (r *memoryRepo) ListReceipts(context.Context, ReceiptFilter) ([]Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Receipt(nil), r.state.receipts...), nil
}

func (r *memoryRepo) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rc := range r.state.receipts {
		if rc.ID == id {
			return rc, nil
		}
	}
	return Receipt{}, shared.NotFound("receipt", id)
}

type memoryTx struct {
	repo    *memoryRepo
	state   *memoryState
	changes int
}

func (tx *memoryTx) Ledger() LedgerPort { return memoryLedger{state: tx.state} }

func (tx *memoryTx) WarehouseName(_ context.Context, id int64) (string, error) {
	name, ok := tx.state.warehouses[id]
	if !ok {
		return "", shared.NotFound("warehouse", id)
	}
	return name, nil
}

func (tx *memoryTx) SupplierActive(_ context.Context, id int64) (bool, error) {
	active, ok := tx.state.suppliers[id]
	if !ok {
		return false, shared.NotFound("supplier", id)
	}
	return active, nil
}

func (tx *memoryTx) EnsureProducts(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if !tx.state.products[id] {
			return shared.NotFound("product", id)
		}
	}
	return nil
}

func (tx *memoryTx) Store(_ context.Context, id int64) (StoreRef, error) {
	ref, ok := tx.state.stores[id]
	if !ok {
		return StoreRef{}, shared.NotFound("store", id)
	}
	return ref, nil
}

func (tx *memoryTx) LockPosition(_ context.Context, warehouseID, productID int64) (StockPosition, bool, error) {
	pos, ok := tx.state.positions[posKey{warehouseID, productID}]
	if !ok {
		return StockPosition{WarehouseID: warehouseID, ProductID: productID}, false, nil
	}
	return pos, true, nil
}

func (tx *memoryTx) EnsurePosition(_ context.Context, warehouseID, productID int64) (StockPosition, error) {
	if _, ok := tx.state.warehouses[warehouseID]; !ok {
		return StockPosition{}, shared.NotFound("warehouse", warehouseID)
	}
	k := posKey{warehouseID, productID}
	if pos, ok := tx.state.positions[k]; ok {
		return pos, nil
	}
	pos := StockPosition{ID: tx.state.id(), WarehouseID: warehouseID, ProductID: productID}
	tx.state.positions[k] = pos
	return pos, nil
}

func (tx *memoryTx) LockPositionByID(_ context.Context, id int64) (StockPosition, error) {
	for _, pos := range tx.state.positions {
		if pos.ID == id {
			return pos, nil
		}
	}
	return StockPosition{}, shared.NotFound("stock position", id)
}

func (tx *memoryTx) SavePosition(_ context.Context, pos StockPosition) (StockPosition, error) {
	if pos.Pieces < 0 {
		return StockPosition{}, shared.ErrInsufficientStock
	}
	pos.UpdatedAt = time.Now()
	tx.state.positions[posKey{pos.WarehouseID, pos.ProductID}] = pos
	return pos, nil
}

func (tx *memoryTx) InsertChange(_ context.Context, change StockChange) (StockChange, error) {
	tx.changes++
	if tx.repo.failOnChange > 0 && tx.changes == tx.repo.failOnChange {
		return StockChange{}, errInjected
	}
	change.ID = tx.state.id()
	change.CreatedAt = time.Now()
	tx.state.changes = append(tx.state.changes, change)
	return change, nil
}

func (tx *memoryTx) InsertReceipt(_ context.Context, receipt Receipt) (Receipt, error) {
	receipt.ID = tx.state.id()
	receipt.CreatedAt = time.Now()
	tx.state.receipts = append(tx.state.receipts, receipt)
	return receipt, nil
}

func (tx *memoryTx) InsertSale(_ context.Context, sale Sale) (Sale, error) {
	sale.ID = tx.state.id()
	sale.CreatedAt = time.Now()
	tx.state.sales[sale.ID] = sale
	return sale, nil
}

func (tx *memoryTx) LockSale(_ context.Context, id int64) (SaleRef, error) {
	sale, ok := tx.state.sales[id]
	if !ok {
		return SaleRef{}, shared.NotFound("sale", id)
	}
	return SaleRef{
		ID:          sale.ID,
		StoreID:     sale.StoreID,
		WarehouseID: sale.WarehouseID,
		CustomerID:  sale.CustomerID,
		DebtorID:    sale.DebtorID,
		PaymentType: sale.PaymentType,
	}, nil
}

func (tx *memoryTx) SoldQuantities(_ context.Context, saleID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, it := range tx.state.sales[saleID].Items {
		out[it.ProductID] += it.Quantity
	}
	return out, nil
}

func (tx *memoryTx) ReturnedQuantities(_ context.Context, saleID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, ret := range tx.state.returns {
		if ret.SaleID != saleID {
			continue
		}
		for _, it := range ret.Items {
			out[it.ProductID] += it.Quantity
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertReturn(_ context.Context, ret Return) (Return, error) {
	ret.ID = tx.state.id()
	ret.CreatedAt = time.Now()
	tx.state.returns = append(tx.state.returns, ret)
	return ret, nil
}

// memoryLedger follows accounts.TxLedger signs: customer debt is negative,
// a debtor's outstanding amount is positive.
type memoryLedger struct {
	state *memoryState
}

func (l memoryLedger) ChargeSupplier(_ context.Context, supplierID int64, amount decimal.Decimal, _, _ int64) error {
	l.state.supplierBalance[supplierID] = l.state.supplierBalance[supplierID].Add(amount)
	return nil
}

func (l memoryLedger) ChargeCustomer(_ context.Context, customerID int64, amount decimal.Decimal, _, _ int64) error {
	bal, ok := l.state.customerBalance[customerID]
	if !ok {
		return shared.NotFound("customer", customerID)
	}
	l.state.customerBalance[customerID] = bal.Sub(amount)
	return nil
}

func (l memoryLedger) CreditCustomer(_ context.Context, customerID int64, amount decimal.Decimal, _, _ int64) error {
	bal, ok := l.state.customerBalance[customerID]
	if !ok {
		return shared.NotFound("customer", customerID)
	}
	l.state.customerBalance[customerID] = bal.Add(amount)
	return nil
}

func (l memoryLedger) OpenDebtor(_ context.Context, name, phone string) (int64, error) {
	for id, d := range l.state.debtors {
		if phone != "" && d.Phone == phone {
			return id, nil
		}
	}
	id := l.state.id()
	l.state.debtors[id] = debtor{Name: name, Phone: phone, Balance: decimal.Zero}
	return id, nil
}

func (l memoryLedger) ChargeDebtor(_ context.Context, debtorID int64, amount decimal.Decimal, _, _ int64) error {
	d, ok := l.state.debtors[debtorID]
	if !ok {
		return shared.NotFound("debtor", debtorID)
	}
	d.Balance = d.Balance.Add(amount)
	l.state.debtors[debtorID] = d
	return nil
}

func (l memoryLedger) CreditDebtor(_ context.Context, debtorID int64, amount decimal.Decimal, _, _ int64) error {
	d, ok := l.state.debtors[debtorID]
	if !ok {
		return shared.NotFound("debtor", debtorID)
	}
	d.Balance = d.Balance.Sub(amount)
	l.state.debtors[debtorID] = d
	return nil
}

func (l memoryLedger) RecordCash(_ context.Context, storeID int64, kind string, amount decimal.Decimal, refID, _ int64) error {
	l.state.cash = append(l.state.cash, cashOp{StoreID: storeID, Kind: kind, Amount: amount, RefID: refID})
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+":"+key)
	return nil
}

type countingObserver struct {
	mu        sync.Mutex
	posted    map[string]int
	shortages map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{posted: map[string]int{}, shortages: map[string]int{}}
}

func (o *countingObserver) MovementPosted(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.posted[op]++
}

func (o *countingObserver) StockShortage(dim string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shortages[dim]++
}
