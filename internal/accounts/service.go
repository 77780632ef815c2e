package accounts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const detailLedgerLimit = 100

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListCustomers(ctx context.Context, req ListRequest) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, req)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error) {
	customer, err := customerFromRequest(req)
	if err != nil {
		return Customer{}, err
	}
	return s.repo.CreateCustomer(ctx, customer)
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req CustomerRequest) (Customer, error) {
	customer, err := customerFromRequest(req)
	if err != nil {
		return Customer{}, err
	}
	return s.repo.UpdateCustomer(ctx, id, customer)
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	return s.repo.DeleteCustomer(ctx, id)
}

// UpdateBalance applies a manual correction to a customer's balance.
func (s *Service) UpdateBalance(ctx context.Context, id int64, req UpdateBalanceRequest, actorID int64) (LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return LedgerEntry{}, shared.Invalid("amount", "must be greater than zero")
	}
	amount := req.Amount
	switch req.Operation {
	case OpAdd:
	case OpSubtract:
		amount = amount.Neg()
	default:
		return LedgerEntry{}, shared.Invalid("operation", `must be "add" or "subtract"`)
	}

	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		entry, err = repo.PostCustomer(ctx, id, LedgerEntry{
			Amount:    amount,
			RefType:   RefManual,
			Note:      strings.TrimSpace(req.Reason),
			CreatedBy: actorID,
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("update customer balance: %w", err)
	}
	return entry, nil
}

// Details returns the customer with its sales and returns merged newest first.
func (s *Service) Details(ctx context.Context, id int64) (CustomerDetails, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return CustomerDetails{}, err
	}
	sales, err := s.repo.CustomerSales(ctx, id)
	if err != nil {
		return CustomerDetails{}, err
	}
	returns, err := s.repo.CustomerReturns(ctx, id)
	if err != nil {
		return CustomerDetails{}, err
	}
	ledger, err := s.repo.CustomerLedger(ctx, id, detailLedgerLimit)
	if err != nil {
		return CustomerDetails{}, err
	}

	transactions := make([]Transaction, 0, len(sales)+len(returns))
	transactions = append(transactions, sales...)
	transactions = append(transactions, returns...)
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.After(transactions[j].Date)
	})
	return CustomerDetails{Customer: customer, Transactions: transactions, Ledger: ledger}, nil
}

func (s *Service) ListDebtors(ctx context.Context, req ListRequest) ([]Debtor, int, error) {
	return s.repo.ListDebtors(ctx, req)
}

func (s *Service) GetDebtor(ctx context.Context, id int64) (DebtorDetails, error) {
	debtor, err := s.repo.GetDebtor(ctx, id)
	if err != nil {
		return DebtorDetails{}, err
	}
	ledger, err := s.repo.DebtorLedger(ctx, id, detailLedgerLimit)
	if err != nil {
		return DebtorDetails{}, err
	}
	return DebtorDetails{Debtor: debtor, Ledger: ledger}, nil
}

// RecordPayment reduces a debtor's outstanding amount. Paying more than is
// owed is rejected.
func (s *Service) RecordPayment(ctx context.Context, id int64, req PaymentRequest, actorID int64) (LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return LedgerEntry{}, shared.Invalid("amount", "must be greater than zero")
	}
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		debtor, err := repo.LockDebtor(ctx, id)
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(debtor.Balance) {
			return shared.Invalid("amount", fmt.Sprintf("exceeds outstanding balance %s", debtor.Balance.StringFixed(2)))
		}
		entry, err = repo.PostDebtor(ctx, id, LedgerEntry{
			Amount:    req.Amount.Neg(),
			RefType:   RefPayment,
			Note:      strings.TrimSpace(req.Note),
			CreatedBy: actorID,
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("record debtor payment: %w", err)
	}
	return entry, nil
}

func customerFromRequest(req CustomerRequest) (Customer, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return Customer{}, shared.Invalid("full_name", "is required")
	}
	return Customer{
		FullName: name,
		Phone:    strings.TrimSpace(req.Phone),
		City:     strings.TrimSpace(req.City),
	}, nil
}
