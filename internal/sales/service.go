package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// DefaultSummaryWindow is used when a summary request names no start date.
const DefaultSummaryWindow = 30 * 24 * time.Hour

// Service exposes read-only sales reporting.
type Service struct {
	reader Reader
	now    func() time.Time
}

// NewService constructs the reporting service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader, now: time.Now}
}

func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, int, error) {
	if err := validatePeriod(filter.Period); err != nil {
		return nil, 0, err
	}
	switch filter.PaymentType {
	case "", PaymentDebt, PaymentPaid, PaymentRetailDebt:
	default:
		return nil, 0, shared.Invalid("payment_type", "must be one of debt, paid, retail_debt")
	}
	return s.reader.ListSales(ctx, filter)
}

// GetSale returns the sale with per-product returned quantities and its returns.
func (s *Service) GetSale(ctx context.Context, id int64) (SaleDetail, error) {
	sale, err := s.reader.GetSale(ctx, id)
	if err != nil {
		return SaleDetail{}, err
	}
	lines, err := s.reader.SaleLines(ctx, id)
	if err != nil {
		return SaleDetail{}, err
	}
	returns, _, err := s.reader.ListReturns(ctx, ReturnFilter{SaleID: id})
	if err != nil {
		return SaleDetail{}, err
	}
	if returns == nil {
		returns = []Return{}
	}
	return SaleDetail{Sale: sale, Items: lines, Returns: returns}, nil
}

func (s *Service) ListReturns(ctx context.Context, filter ReturnFilter) ([]Return, int, error) {
	if err := validatePeriod(filter.Period); err != nil {
		return nil, 0, err
	}
	return s.reader.ListReturns(ctx, filter)
}

func (s *Service) GetReturn(ctx context.Context, id int64) (ReturnDetail, error) {
	ret, err := s.reader.GetReturn(ctx, id)
	if err != nil {
		return ReturnDetail{}, err
	}
	lines, err := s.reader.ReturnLines(ctx, id)
	if err != nil {
		return ReturnDetail{}, err
	}
	return ReturnDetail{Return: ret, Items: lines}, nil
}

// StoreSummary totals a store's sales and returns over a period. A missing
// end defaults to now and a missing start to DefaultSummaryWindow before it.
func (s *Service) StoreSummary(ctx context.Context, storeID int64, period Period) (StoreSummary, error) {
	if storeID <= 0 {
		return StoreSummary{}, shared.Invalid("store_id", "is required")
	}
	if period.To.IsZero() {
		period.To = s.now()
	}
	if period.From.IsZero() {
		period.From = period.To.Add(-DefaultSummaryWindow)
	}
	if err := validatePeriod(period); err != nil {
		return StoreSummary{}, err
	}
	exists, err := s.reader.StoreExists(ctx, storeID)
	if err != nil {
		return StoreSummary{}, err
	}
	if !exists {
		return StoreSummary{}, shared.NotFound("store", storeID)
	}

	totals, err := s.reader.PaymentTotals(ctx, storeID, period)
	if err != nil {
		return StoreSummary{}, err
	}
	summary := StoreSummary{
		StoreID:         storeID,
		Period:          period,
		SalesTotal:      decimal.Zero,
		PaidTotal:       decimal.Zero,
		DebtTotal:       decimal.Zero,
		RetailDebtTotal: decimal.Zero,
	}
	for _, t := range totals {
		summary.SaleCount += t.Count
		summary.SalesTotal = summary.SalesTotal.Add(t.Amount)
		switch t.PaymentType {
		case PaymentPaid:
			summary.PaidTotal = summary.PaidTotal.Add(t.Amount)
		case PaymentDebt:
			summary.DebtTotal = summary.DebtTotal.Add(t.Amount)
		case PaymentRetailDebt:
			summary.RetailDebtTotal = summary.RetailDebtTotal.Add(t.Amount)
		}
	}

	summary.ReturnCount, summary.ReturnsTotal, err = s.reader.ReturnTotals(ctx, storeID, period)
	if err != nil {
		return StoreSummary{}, err
	}
	summary.Net = summary.SalesTotal.Sub(summary.ReturnsTotal)
	return summary, nil
}

func validatePeriod(p Period) error {
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return shared.Invalid("from", "must be before to")
	}
	return nil
}
