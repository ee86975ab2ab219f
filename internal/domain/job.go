package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementKind tags a settlement job with the exact balance mutation it
// performs. The kind is fixed at preparation time, so the settler never has
// to infer the transfer shape from which fields happen to be populated.
type SettlementKind string

const (
	// SettleToAccount credits the payee's dual ledger (available + total).
	SettleToAccount SettlementKind = "TO_ACCOUNT"
	// SettleFromAccount debits the payer's dual ledger.
	SettleFromAccount SettlementKind = "FROM_ACCOUNT"
	// SettleDirectToAccount credits a single balance field, no dual ledger.
	SettleDirectToAccount SettlementKind = "DIRECT_TO_ACCOUNT"
	// SettleDirectFromAccount debits a single balance field.
	SettleDirectFromAccount SettlementKind = "DIRECT_FROM_ACCOUNT"
	// SettleDualLeg debits the payer then credits the payee, both local.
	SettleDualLeg SettlementKind = "DUAL_LEG"
	// SettleExternal is a dual-leg transfer across banks; which legs apply
	// locally depends on which side's bank is external.
	SettleExternal SettlementKind = "EXTERNAL"
	// SettleSecurityCredit credits sale proceeds net of tax withholding.
	SettleSecurityCredit SettlementKind = "SECURITY_CREDIT"
	// SettleSecurityDebit debits the cost of a security purchase.
	SettleSecurityDebit SettlementKind = "SECURITY_DEBIT"
)

// SettlementJob describes exactly which accounts, currencies and amounts one
// settlement step must mutate. Jobs are produced by the preparer, buffered
// in a queue, consumed exactly once by the settler and then discarded.
type SettlementJob struct {
	TransactionID  uuid.UUID
	Kind           SettlementKind
	FromAccountID  uuid.UUID
	FromCurrencyID uuid.UUID
	FromAmount     decimal.Decimal
	ToAccountID    uuid.UUID
	ToCurrencyID   uuid.UUID
	ToAmount       decimal.Decimal
	// BankAmount is the debit leg expressed in the bank's own reference
	// currency, used for interbank netting.
	BankAmount decimal.Decimal
	// Profit is the taxable gain carried by a security sale.
	Profit decimal.Decimal
	// ExternalID correlates the job with the counterparty bank's transaction.
	ExternalID uuid.UUID
}
