package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the settlement state of a transaction.
//
// Pending -> Affirm -> Completed is the happy dual-leg path; single-leg
// settlements jump straight to Completed. Failed and Completed are terminal.
// Canceled may be set externally while the transaction is still queued and
// makes settlement a no-op.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusAffirm    TransactionStatus = "AFFIRM"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCanceled  TransactionStatus = "CANCELED"
)

// IsTerminal reports whether no further settlement work may touch a
// transaction in this status.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCanceled
}

// TransactionCode selects the transfer topology a request prepares into.
// The numeric codes follow the bank's payment-code catalogue.
type TransactionCode struct {
	ID   uuid.UUID
	Code string
	Name string
}

const (
	CodeLoanDisbursement = "263"
	CodeDeposit          = "265"
	CodeWithdraw         = "266"
	CodeAgentPayout      = "270"
	CodeAgentFee         = "271"
	CodeLoanInstallment  = "276"
	CodeInterestPayment  = "277"
	CodeSecurityTrade    = "280"
	CodeSecuritySettle   = "286"
	CodeInternalTransfer = "289"
)

// Transaction is the persisted record of one logical transfer. Either side
// may be absent: a deposit has no from-account, a withdrawal no to-account.
// Once enqueued for settlement the row is owned exclusively by the settler.
type Transaction struct {
	ID              uuid.UUID
	FromAccountID   *uuid.UUID
	FromCurrencyID  *uuid.UUID
	FromAmount      decimal.Decimal
	ToAccountID     *uuid.UUID
	ToCurrencyID    *uuid.UUID
	ToAmount        decimal.Decimal
	CodeID          uuid.UUID
	ReferenceNumber string
	Purpose         string
	TaxAmount       decimal.Decimal
	Status          TransactionStatus
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// Settleable reports whether the settler may still act on the transaction.
// Statuses are monotonic: once a terminal state is reached the row is
// read-only and any queued settlement job becomes a no-op.
func (t *Transaction) Settleable() bool {
	return !t.Status.IsTerminal()
}
