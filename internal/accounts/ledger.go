package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Cash operation kinds.
const (
	CashSale   = "sale"
	CashRefund = "refund"
)

// TxLedger books balance side effects of stock movements inside the
// caller's transaction, so a failed movement leaves no balance behind.
type TxLedger struct {
	repo *repository
}

// NewTxLedger binds a ledger to an open transaction.
func NewTxLedger(tx pgx.Tx) *TxLedger {
	return &TxLedger{repo: &repository{db: tx}}
}

// ChargeSupplier raises what the business owes a supplier for a receipt.
func (l *TxLedger) ChargeSupplier(ctx context.Context, supplierID int64, amount decimal.Decimal, receiptID, actorID int64) error {
	var balance decimal.Decimal
	err := l.repo.db.QueryRow(ctx,
		`UPDATE suppliers SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`,
		supplierID, amount).Scan(&balance)
	if err != nil {
		return notFound(err, "supplier", supplierID)
	}
	_, err = l.repo.db.Exec(ctx,
		`INSERT INTO supplier_ledger (supplier_id, receipt_id, amount, balance_after, note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		supplierID, nullInt(receiptID), amount, balance, fmt.Sprintf("Receipt #%d", receiptID), nullInt(actorID))
	if err != nil {
		return fmt.Errorf("insert supplier_ledger: %w", err)
	}
	return nil
}

// ChargeCustomer books a debt sale. Customer debt is a negative balance.
func (l *TxLedger) ChargeCustomer(ctx context.Context, customerID int64, amount decimal.Decimal, saleID, actorID int64) error {
	_, err := l.repo.PostCustomer(ctx, customerID, LedgerEntry{
		Amount: amount.Neg(), RefType: RefSale, RefID: saleID, CreatedBy: actorID,
	})
	return err
}

func (l *TxLedger) CreditCustomer(ctx context.Context, customerID int64, amount decimal.Decimal, returnID, actorID int64) error {
	_, err := l.repo.PostCustomer(ctx, customerID, LedgerEntry{
		Amount: amount, RefType: RefReturn, RefID: returnID, CreatedBy: actorID,
	})
	return err
}

// OpenDebtor returns the debtor registered under phone, creating one when
// the phone is unknown or empty.
func (l *TxLedger) OpenDebtor(ctx context.Context, name, phone string) (int64, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return 0, shared.Invalid("customer_name", "is required for retail debt")
	}
	var id int64
	var err error
	if phone == "" {
		err = l.repo.db.QueryRow(ctx,
			`INSERT INTO debtors (full_name) VALUES ($1) RETURNING id`, name).Scan(&id)
	} else {
		err = l.repo.db.QueryRow(ctx,
			`INSERT INTO debtors (full_name, phone) VALUES ($1, $2)
			 ON CONFLICT (phone) WHERE phone IS NOT NULL
			 DO UPDATE SET full_name = EXCLUDED.full_name, updated_at = NOW()
			 RETURNING id`, name, phone).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("open debtor: %w", err)
	}
	return id, nil
}

// ChargeDebtor raises a retail debtor's outstanding amount, kept positive.
func (l *TxLedger) ChargeDebtor(ctx context.Context, debtorID int64, amount decimal.Decimal, saleID, actorID int64) error {
	_, err := l.repo.PostDebtor(ctx, debtorID, LedgerEntry{
		Amount: amount, RefType: RefSale, RefID: saleID, CreatedBy: actorID,
	})
	return err
}

func (l *TxLedger) CreditDebtor(ctx context.Context, debtorID int64, amount decimal.Decimal, returnID, actorID int64) error {
	_, err := l.repo.PostDebtor(ctx, debtorID, LedgerEntry{
		Amount: amount.Neg(), RefType: RefReturn, RefID: returnID, CreatedBy: actorID,
	})
	return err
}

// RecordCash logs money taken or paid out at a store till.
func (l *TxLedger) RecordCash(ctx context.Context, storeID int64, kind string, amount decimal.Decimal, refID, actorID int64) error {
	if kind != CashSale && kind != CashRefund {
		return shared.Invalid("kind", fmt.Sprintf("unknown cash operation %q", kind))
	}
	_, err := l.repo.db.Exec(ctx,
		`INSERT INTO cash_operations (store_id, kind, amount, ref_id, created_by) VALUES ($1, $2, $3, $4, $5)`,
		nullInt(storeID), kind, amount, nullInt(refID), nullInt(actorID))
	if err != nil {
		return fmt.Errorf("insert cash operation: %w", err)
	}
	return nil
}
