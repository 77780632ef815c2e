package accounts

import "github.com/shopspring/decimal"

// Balance operations for manual corrections.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
)

type CustomerRequest struct {
	FullName string `json:"full_name" validate:"required,max=255"`
	Phone    string `json:"phone" validate:"max=50"`
	City     string `json:"city" validate:"max=255"`
}

type UpdateBalanceRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Operation string          `json:"operation" validate:"required,oneof=add subtract"`
	Reason    string          `json:"reason" validate:"max=500"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

type ListRequest struct {
	Search string
	Debt   bool
	Limit  int
	Offset int
}
