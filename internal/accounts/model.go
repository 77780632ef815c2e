package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger reference kinds.
const (
	RefSale    = "sale"
	RefReturn  = "return"
	RefManual  = "manual"
	RefPayment = "payment"
)

// Customer is a named account that buys on credit. Balance is what the
// customer owes.
type Customer struct {
	ID        int64           `json:"id"`
	FullName  string          `json:"full_name"`
	Phone     string          `json:"phone,omitempty"`
	City      string          `json:"city,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Debtor is a walk-in retail buyer carrying an outstanding amount.
type Debtor struct {
	ID        int64           `json:"id"`
	FullName  string          `json:"full_name"`
	Phone     string          `json:"phone,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntry is one balance movement of a customer or debtor.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RefType      string          `json:"ref_type"`
	RefID        int64           `json:"ref_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedBy    int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Transaction is a sale or return in a customer's history.
type Transaction struct {
	ID     int64           `json:"id"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

// CustomerDetails is a customer with its history, newest first.
type CustomerDetails struct {
	Customer
	Transactions []Transaction `json:"transactions"`
	Ledger       []LedgerEntry `json:"ledger"`
}

// DebtorDetails is a debtor with its ledger.
type DebtorDetails struct {
	Debtor
	Ledger []LedgerEntry `json:"ledger"`
}
