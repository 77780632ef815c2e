package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const idempotencyModule = "inventory"

var tracer = otel.Tracer("github.com/odyssey-erp/backoffice/internal/inventory")

// Service coordinates stock movements. Each movement is one unit of work:
// positions are locked, checked, written and audited together or not at all.
type Service struct {
	repo             RepositoryPort
	idempotency      IdempotencyPort
	observer         Observer
	stores           StoreDirectory
	logger           *slog.Logger
	defaultWarehouse int64
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DefaultWarehouseID receives returns that name neither a sale, a warehouse nor a store.
	DefaultWarehouseID int64
	Observer           Observer
	// Stores resolves a store's warehouse for returns without a sale; nil reads it in the transaction.
	Stores StoreDirectory
	Logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	svc := &Service{repo: repo, idempotency: idem, observer: cfg.Observer, stores: cfg.Stores, logger: cfg.Logger, defaultWarehouse: cfg.DefaultWarehouseID}
	if svc.observer == nil {
		svc.observer = noopObserver{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// PostReceipt books goods received from a supplier into a warehouse.
func (s *Service) PostReceipt(ctx context.Context, in ReceiptInput) (Receipt, error) {
	if err := validateReceipt(in); err != nil {
		return Receipt{}, err
	}
	total := decimal.Zero
	items := make([]ReceiptItem, 0, len(in.Items))
	ids := make([]int64, 0, len(in.Items))
	for _, item := range in.Items {
		total = total.Add(item.Amount)
		ids = append(ids, item.ProductID)
		items = append(items, ReceiptItem{
			ProductID:    item.ProductID,
			BoxesQty:     item.BoxesQty,
			PiecesPerBox: item.PiecesPerBox,
			LoosePieces:  item.LoosePieces,
			TotalPieces:  item.TotalPieces(),
			WeightKg:     item.WeightKg,
			VolumeCbm:    item.VolumeCbm,
			Amount:       item.Amount,
			PurchaseCost: item.PurchaseCost,
			SellingPrice: item.SellingPrice,
		})
	}

	var out Receipt
	err := s.run(ctx, "receipt", in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.WarehouseName(ctx, in.WarehouseID); err != nil {
			return err
		}
		active, err := tx.SupplierActive(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		if !active {
			return shared.Invalid("supplier_id", "supplier is inactive")
		}
		if err := tx.EnsureProducts(ctx, ids); err != nil {
			return err
		}
		positions, err := ensureAll(ctx, tx, in.WarehouseID, ids)
		if err != nil {
			return err
		}
		receipt, err := tx.InsertReceipt(ctx, Receipt{
			WarehouseID: in.WarehouseID,
			SupplierID:  in.SupplierID,
			CreatedBy:   in.ActorID,
			TotalAmount: total,
			Items:       items,
		})
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("Receipt #%d", receipt.ID)
		for _, item := range in.Items {
			before := positions[item.ProductID]
			after := before
			after.Pieces += item.TotalPieces()
			after.WeightKg = accumulate(before.WeightKg, item.WeightKg)
			after.VolumeCbm = accumulate(before.VolumeCbm, item.VolumeCbm)
			saved, change, err := apply(ctx, tx, before, after, ChangeIn, in.ActorID, reason)
			if err != nil {
				return err
			}
			positions[item.ProductID] = saved
			receipt.Changes = append(receipt.Changes, change)
		}
		if err := tx.Ledger().ChargeSupplier(ctx, in.SupplierID, total, receipt.ID, in.ActorID); err != nil {
			return err
		}
		out = receipt
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return out, nil
}

// PostTransfer moves stock between two warehouses as a paired OUT and IN.
func (s *Service) PostTransfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := validateTransfer(in); err != nil {
		return TransferResult{}, err
	}
	var out TransferResult
	err := s.run(ctx, "transfer", in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		fromName, err := tx.WarehouseName(ctx, in.FromWarehouseID)
		if err != nil {
			return err
		}
		toName, err := tx.WarehouseName(ctx, in.ToWarehouseID)
		if err != nil {
			return err
		}
		if err := tx.EnsureProducts(ctx, []int64{in.ProductID}); err != nil {
			return err
		}

		var src, dst StockPosition
		lockSource := func() error {
			pos, found, err := tx.LockPosition(ctx, in.FromWarehouseID, in.ProductID)
			if err != nil {
				return err
			}
			if !found {
				pos = StockPosition{WarehouseID: in.FromWarehouseID, ProductID: in.ProductID}
			}
			src = pos
			return nil
		}
		lockDestination := func() error {
			pos, err := tx.EnsurePosition(ctx, in.ToWarehouseID, in.ProductID)
			dst = pos
			return err
		}
		steps := []func() error{lockSource, lockDestination}
		if in.ToWarehouseID < in.FromWarehouseID {
			steps[0], steps[1] = steps[1], steps[0]
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}

		take := Measures{Pieces: in.Pieces, WeightKg: in.WeightKg, VolumeCbm: in.VolumeCbm}
		if err := checkTake(src, take); err != nil {
			return err
		}

		nextSrc := src
		nextSrc.Pieces -= in.Pieces
		nextSrc.WeightKg = subtractClamped(src.WeightKg, in.WeightKg)
		nextSrc.VolumeCbm = subtractClamped(src.VolumeCbm, in.VolumeCbm)

		nextDst := dst
		nextDst.Pieces += in.Pieces
		nextDst.WeightKg = addMeasure(dst.WeightKg, in.WeightKg)
		nextDst.VolumeCbm = addMeasure(dst.VolumeCbm, in.VolumeCbm)

		outReason, inReason := in.Reason, in.Reason
		if outReason == "" {
			outReason = fmt.Sprintf("Transfer to warehouse %s", toName)
			inReason = fmt.Sprintf("Transfer from warehouse %s", fromName)
		}
		savedSrc, outChange, err := apply(ctx, tx, src, nextSrc, ChangeOut, in.ActorID, outReason)
		if err != nil {
			return err
		}
		savedDst, inChange, err := apply(ctx, tx, dst, nextDst, ChangeIn, in.ActorID, inReason)
		if err != nil {
			return err
		}
		out = TransferResult{Source: savedSrc, Destination: savedDst, Out: outChange, In: inChange}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// PostSale deducts sold pieces from the store's warehouse and books payment.
func (s *Service) PostSale(ctx context.Context, in SaleInput) (Sale, error) {
	payment, err := validateSale(in)
	if err != nil {
		return Sale{}, err
	}
	wanted, ids := aggregate(in.Items)
	items, total := lineItems(in.Items)

	var out Sale
	err = s.run(ctx, "sale", in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		store, err := tx.Store(ctx, in.StoreID)
		if err != nil {
			return err
		}
		if !store.Active {
			return shared.Invalid("store_id", "store is inactive")
		}
		if err := tx.EnsureProducts(ctx, ids); err != nil {
			return err
		}

		positions := make(map[int64]StockPosition, len(ids))
		for _, id := range ids {
			pos, found, err := tx.LockPosition(ctx, store.WarehouseID, id)
			if err != nil {
				return err
			}
			if !found {
				pos = StockPosition{WarehouseID: store.WarehouseID, ProductID: id}
			}
			if err := checkPieces(pos, wanted[id]); err != nil {
				return err
			}
			positions[id] = pos
		}

		sale := Sale{
			StoreID:     store.ID,
			WarehouseID: store.WarehouseID,
			CustomerID:  in.CustomerID,
			PaymentType: payment,
			TotalAmount: total,
			CreatedBy:   in.ActorID,
			Items:       items,
		}
		ledger := tx.Ledger()
		if payment == PaymentRetailDebt {
			debtorID, err := ledger.OpenDebtor(ctx, in.DebtorName, in.DebtorPhone)
			if err != nil {
				return err
			}
			sale.DebtorID = debtorID
		}
		sale, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("Sale #%d", sale.ID)
		for _, id := range ids {
			before := positions[id]
			after := before
			after.Pieces -= wanted[id]
			_, change, err := apply(ctx, tx, before, after, ChangeOut, in.ActorID, reason)
			if err != nil {
				return err
			}
			sale.Changes = append(sale.Changes, change)
		}

		switch payment {
		case PaymentDebt:
			err = ledger.ChargeCustomer(ctx, sale.CustomerID, total, sale.ID, in.ActorID)
		case PaymentRetailDebt:
			err = ledger.ChargeDebtor(ctx, sale.DebtorID, total, sale.ID, in.ActorID)
		default:
			err = ledger.RecordCash(ctx, sale.StoreID, "sale", total, sale.ID, in.ActorID)
		}
		if err != nil {
			return err
		}
		out = sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	return out, nil
}

// PostReturn credits returned pieces back to a warehouse and refunds the buyer.
func (s *Service) PostReturn(ctx context.Context, in ReturnInput) (Return, error) {
	if err := validateLines(in.Items); err != nil {
		return Return{}, err
	}
	wanted, ids := aggregate(in.Items)
	items, total := lineItems(in.Items)

	var out Return
	err := s.run(ctx, "return", in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		ret := Return{
			StoreID:     in.StoreID,
			CustomerID:  in.CustomerID,
			TotalAmount: total,
			Reason:      in.Reason,
			CreatedBy:   in.ActorID,
			Items:       items,
		}
		refund := refundCash
		if in.SaleID > 0 {
			ref, err := tx.LockSale(ctx, in.SaleID)
			if err != nil {
				return err
			}
			if err := checkReturnBound(ctx, tx, ref.ID, wanted, ids); err != nil {
				return err
			}
			ret.SaleID = ref.ID
			ret.StoreID = ref.StoreID
			ret.WarehouseID = ref.WarehouseID
			ret.CustomerID = ref.CustomerID
			ret.DebtorID = ref.DebtorID
			switch ref.PaymentType {
			case PaymentDebt:
				refund = refundCustomer
			case PaymentRetailDebt:
				refund = refundDebtor
			}
		} else {
			warehouseID, err := s.resolveReturnWarehouse(ctx, tx, in)
			if err != nil {
				return err
			}
			ret.WarehouseID = warehouseID
			if in.CustomerID > 0 {
				refund = refundCustomer
			}
		}

		if err := tx.EnsureProducts(ctx, ids); err != nil {
			return err
		}
		positions, err := ensureAll(ctx, tx, ret.WarehouseID, ids)
		if err != nil {
			return err
		}
		ret, err = tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("Return #%d", ret.ID)
		if ret.SaleID > 0 {
			reason = fmt.Sprintf("Return #%d (sale #%d)", ret.ID, ret.SaleID)
		}
		for _, id := range ids {
			before := positions[id]
			after := before
			after.Pieces += wanted[id]
			_, change, err := apply(ctx, tx, before, after, ChangeIn, in.ActorID, reason)
			if err != nil {
				return err
			}
			ret.Changes = append(ret.Changes, change)
		}

		ledger := tx.Ledger()
		switch refund {
		case refundCustomer:
			err = ledger.CreditCustomer(ctx, ret.CustomerID, total, ret.ID, in.ActorID)
		case refundDebtor:
			err = ledger.CreditDebtor(ctx, ret.DebtorID, total, ret.ID, in.ActorID)
		default:
			err = ledger.RecordCash(ctx, ret.StoreID, "refund", total, ret.ID, in.ActorID)
		}
		if err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	return out, nil
}

// AdjustPosition overwrites a position after a stocktake.
func (s *Service) AdjustPosition(ctx context.Context, in AdjustInput) (StockChange, error) {
	if in.PositionID <= 0 {
		return StockChange{}, shared.Invalid("id", "stock position id required")
	}
	if in.TotalPieces == nil {
		return StockChange{}, shared.Invalid("total_pieces", "is required")
	}
	if *in.TotalPieces < 0 {
		return StockChange{}, shared.Invalid("total_pieces", "must be >= 0")
	}
	if err := nonNegative("weight_kg", in.WeightKg); err != nil {
		return StockChange{}, err
	}
	if err := nonNegative("volume_cbm", in.VolumeCbm); err != nil {
		return StockChange{}, err
	}
	var out StockChange
	err := s.run(ctx, "adjustment", in.IdempotencyKey, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.LockPositionByID(ctx, in.PositionID)
		if err != nil {
			return err
		}
		after := before
		after.Measures = Measures{Pieces: *in.TotalPieces, WeightKg: in.WeightKg, VolumeCbm: in.VolumeCbm}
		_, change, err := apply(ctx, tx, before, after, ChangeAdjustment, in.ActorID, in.Reason)
		if err != nil {
			return err
		}
		out = change
		return nil
	})
	if err != nil {
		return StockChange{}, err
	}
	return out, nil
}

// ListPositions lists stock positions.
func (s *Service) ListPositions(ctx context.Context, filter PositionFilter) ([]PositionView, error) {
	return s.repo.ListPositions(ctx, filter)
}

// GetPosition returns the position for a pair; an absent row reads as zero stock.
func (s *Service) GetPosition(ctx context.Context, warehouseID, productID int64) (StockPosition, error) {
	if warehouseID <= 0 || productID <= 0 {
		return StockPosition{}, shared.Invalid("", "warehouse and product required")
	}
	pos, err := s.repo.GetPosition(ctx, warehouseID, productID)
	if errors.Is(err, shared.ErrNotFound) {
		return StockPosition{WarehouseID: warehouseID, ProductID: productID}, nil
	}
	return pos, err
}

// WarehouseProducts lists the products held in one warehouse.
func (s *Service) WarehouseProducts(ctx context.Context, warehouseID int64, limit, offset int) ([]PositionView, error) {
	if warehouseID <= 0 {
		return nil, shared.Invalid("id", "warehouse id required")
	}
	return s.repo.ListPositions(ctx, PositionFilter{WarehouseID: warehouseID, Limit: limit, Offset: offset})
}

// ListChanges lists audit trail entries, newest first.
func (s *Service) ListChanges(ctx context.Context, filter ChangeFilter) ([]StockChange, error) {
	switch filter.Type {
	case "", ChangeIn, ChangeOut, ChangeAdjustment:
	default:
		return nil, shared.Invalid("change_type", "must be IN, OUT or ADJUSTMENT")
	}
	return s.repo.ListChanges(ctx, filter)
}

// GetChange returns one audit trail entry.
func (s *Service) GetChange(ctx context.Context, id int64) (StockChange, error) {
	return s.repo.GetChange(ctx, id)
}

// ListReceipts lists receipt headers, newest first.
func (s *Service) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, filter)
}

// GetReceipt returns a receipt with its items.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

func (s *Service) run(ctx context.Context, op, key string, fn func(context.Context, TxRepository) error) (err error) {
	ctx, span := tracer.Start(ctx, "inventory."+op, trace.WithAttributes(attribute.String("inventory.operation", op)))
	defer func() { endSpan(span, err) }()

	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, op+":"+key, idempotencyModule); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = s.idempotency.Delete(context.WithoutCancel(ctx), op+":"+key, idempotencyModule)
			}
		}()
	}

	err = s.repo.WithTx(ctx, fn)
	if err != nil {
		var shortage *InsufficientStockError
		if errors.As(err, &shortage) {
			s.observer.StockShortage(string(shortage.Dimension))
		}
		return err
	}
	s.observer.MovementPosted(op)
	s.logger.DebugContext(ctx, "stock movement posted", slog.String("operation", op))
	return nil
}

func (s *Service) resolveReturnWarehouse(ctx context.Context, tx TxRepository, in ReturnInput) (int64, error) {
	switch {
	case in.WarehouseID > 0:
		if _, err := tx.WarehouseName(ctx, in.WarehouseID); err != nil {
			return 0, err
		}
		return in.WarehouseID, nil
	case in.StoreID > 0 && s.stores != nil:
		warehouseID, err := s.stores.StoreWarehouse(ctx, in.StoreID)
		if err != nil {
			return 0, err
		}
		if _, err := tx.WarehouseName(ctx, warehouseID); err != nil {
			return 0, err
		}
		return warehouseID, nil
	case in.StoreID > 0:
		store, err := tx.Store(ctx, in.StoreID)
		if err != nil {
			return 0, err
		}
		return store.WarehouseID, nil
	case s.defaultWarehouse > 0:
		if _, err := tx.WarehouseName(ctx, s.defaultWarehouse); err != nil {
			return 0, err
		}
		return s.defaultWarehouse, nil
	}
	return 0, shared.Invalid("warehouse_id", "return needs a sale, warehouse or store")
}

type refundMode int

const (
	refundCash refundMode = iota
	refundCustomer
	refundDebtor
)

// checkReturnBound enforces that cumulative returns per product never exceed
// what the sale sold. The caller holds the sale row lock.
func checkReturnBound(ctx context.Context, tx TxRepository, saleID int64, wanted map[int64]int64, ids []int64) error {
	sold, err := tx.SoldQuantities(ctx, saleID)
	if err != nil {
		return err
	}
	returned, err := tx.ReturnedQuantities(ctx, saleID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if wanted[id] > sold[id]-returned[id] {
			return shared.Invalid("items", fmt.Sprintf("product %d: sold %d, already returned %d, requested %d",
				id, sold[id], returned[id], wanted[id]))
		}
	}
	return nil
}

// apply writes the new position state and its audit record.
func apply(ctx context.Context, tx TxRepository, before, after StockPosition, typ ChangeType, actorID int64, reason string) (StockPosition, StockChange, error) {
	saved, err := tx.SavePosition(ctx, after)
	if err != nil {
		return StockPosition{}, StockChange{}, err
	}
	change, err := tx.InsertChange(ctx, StockChange{
		WarehouseID: before.WarehouseID,
		ProductID:   before.ProductID,
		ActorID:     actorID,
		Type:        typ,
		Old:         before.Measures,
		New:         saved.Measures,
		Reason:      reason,
	})
	if err != nil {
		return StockPosition{}, StockChange{}, err
	}
	return saved, change, nil
}

// ensureAll materialises and locks positions in ascending product order.
func ensureAll(ctx context.Context, tx TxRepository, warehouseID int64, productIDs []int64) (map[int64]StockPosition, error) {
	ids := uniqueSorted(productIDs)
	positions := make(map[int64]StockPosition, len(ids))
	for _, id := range ids {
		pos, err := tx.EnsurePosition(ctx, warehouseID, id)
		if err != nil {
			return nil, err
		}
		positions[id] = pos
	}
	return positions, nil
}

// aggregate sums quantities per product. Lines must have passed validateLines,
// which bounds every sum by MaxQuantity.
func aggregate(lines []LineInput) (map[int64]int64, []int64) {
	wanted := make(map[int64]int64, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		wanted[line.ProductID] += line.Quantity
		ids = append(ids, line.ProductID)
	}
	return wanted, uniqueSorted(ids)
}

func lineItems(lines []LineInput) ([]LineItem, decimal.Decimal) {
	items := make([]LineItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		total = total.Add(lineTotal)
		items = append(items, LineItem{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, TotalPrice: lineTotal})
	}
	return items, total
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
