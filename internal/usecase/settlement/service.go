package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mvukovic/bankcore/internal/domain"
)

// RateCalculator resolves conversion rates at settlement time; the security
// credit leg needs them fresh, not the ones observed at preparation.
type RateCalculator interface {
	Details(ctx context.Context, fromID, toID uuid.UUID) (*domain.ExchangeDetails, error)
}

// Service applies queued settlement jobs to the ledger.
//
// Settle is driven by the queue workers and dispatches purely on the job's
// kind. A transaction already in a terminal status (Completed, Failed,
// Canceled) makes the job an idempotent no-op: replaying a drained job can
// never double-apply a balance mutation.
//
// Dual-leg settlements are not transactional across legs: a credit failure
// after a successful debit leaves the transaction Failed with the debit
// applied. Recovery of such rows is an operational concern.
type Service struct {
	transactions domain.TransactionRepository
	accounts     domain.AccountRepository
	rates        RateCalculator
	gateway      domain.ExternalBankGateway
	// settlementCurrencyID is the currency the bank nets tax and its own
	// position in.
	settlementCurrencyID uuid.UUID
	log                  *logrus.Logger
}

// NewService creates a new transaction settler
func NewService(
	transactions domain.TransactionRepository,
	accounts domain.AccountRepository,
	rates RateCalculator,
	gateway domain.ExternalBankGateway,
	settlementCurrencyID uuid.UUID,
	log *logrus.Logger,
) *Service {
	return &Service{
		transactions:         transactions,
		accounts:             accounts,
		rates:                rates,
		gateway:              gateway,
		settlementCurrencyID: settlementCurrencyID,
		log:                  log,
	}
}

// Settle applies one settlement job. The returned error reports
// infrastructure trouble only; a business refusal ends in the transaction
// marked Failed and a nil error.
func (s *Service) Settle(ctx context.Context, job domain.SettlementJob) error {
	transaction, err := s.transactions.GetByID(ctx, job.TransactionID)
	if err != nil {
		return err
	}

	if !transaction.Settleable() {
		s.log.WithFields(logrus.Fields{
			"transaction": transaction.ID,
			"status":      transaction.Status,
		}).Debug("Skipping settlement of terminal transaction")
		return nil
	}

	switch job.Kind {
	case domain.SettleToAccount:
		return s.settleToAccount(ctx, job)
	case domain.SettleFromAccount:
		return s.settleFromAccount(ctx, job)
	case domain.SettleDirectToAccount:
		return s.settleDirectToAccount(ctx, job)
	case domain.SettleDirectFromAccount:
		return s.settleDirectFromAccount(ctx, job)
	case domain.SettleDualLeg:
		return s.settleDualLeg(ctx, job)
	case domain.SettleExternal:
		return s.settleExternal(ctx, job, transaction)
	case domain.SettleSecurityCredit:
		return s.settleSecurityCredit(ctx, job)
	case domain.SettleSecurityDebit:
		return s.settleSecurityDebit(ctx, job)
	}

	s.log.WithFields(logrus.Fields{
		"transaction": job.TransactionID,
		"kind":        job.Kind,
	}).Error("Unknown settlement kind")
	return s.transactions.UpdateStatus(ctx, job.TransactionID, domain.TransactionStatusFailed)
}

func (s *Service) settleToAccount(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.ToAccountID, job.ToCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	applied, err := s.accounts.IncreaseBalances(ctx, accountCurrencyID, job.ToCurrencyID, job.ToAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

func (s *Service) settleFromAccount(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.FromAccountID, job.FromCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	applied, err := s.accounts.DecreaseBalance(ctx, accountCurrencyID, job.FromCurrencyID, job.FromAmount, job.BankAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

func (s *Service) settleDirectToAccount(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.ToAccountID, job.ToCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	applied, err := s.accounts.IncreaseDirectBalance(ctx, accountCurrencyID, job.ToAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

func (s *Service) settleDirectFromAccount(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.FromAccountID, job.FromCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	applied, err := s.accounts.DecreaseDirectBalance(ctx, accountCurrencyID, job.FromAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

// settleDualLeg books both sides of a transfer between two local accounts:
// debit to Affirm, then credit to Completed. A refused debit ends the
// transaction before any money moved; a refused credit after a booked debit
// ends it Failed with the debit in place.
func (s *Service) settleDualLeg(ctx context.Context, job domain.SettlementJob) error {
	fromAccountCurrencyID, err := s.resolveCurrency(ctx, job.FromAccountID, job.FromCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}
	toAccountCurrencyID, err := s.resolveCurrency(ctx, job.ToAccountID, job.ToCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	debited, err := s.accounts.DecreaseBalance(ctx, fromAccountCurrencyID, job.FromCurrencyID, job.FromAmount, job.BankAmount)
	if err != nil {
		return err
	}
	if !debited {
		return s.markFailed(ctx, job.TransactionID)
	}

	if err := s.transactions.UpdateStatus(ctx, job.TransactionID, domain.TransactionStatusAffirm); err != nil {
		return err
	}

	credited, err := s.accounts.IncreaseBalances(ctx, toAccountCurrencyID, job.ToCurrencyID, job.ToAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, credited)
}

// settleExternal books whichever legs of an interbank transfer live at this
// bank and reports the outcome to the counterparty. An incoming transfer
// credits the payee; an outgoing one debits the payer to Affirm, then asks
// the counterparty to create the mirrored transaction that will credit its
// side.
func (s *Service) settleExternal(ctx context.Context, job domain.SettlementJob, transaction *domain.Transaction) error {
	fromAccount, err := s.accounts.GetByID(ctx, job.FromAccountID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}
	toAccount, err := s.accounts.GetByID(ctx, job.ToAccountID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	fromExternal := fromAccount.Bank != nil && fromAccount.Bank.IsExternal
	toExternal := toAccount.Bank != nil && toAccount.Bank.IsExternal

	var succeeded bool

	if fromExternal {
		toAccountCurrencyID, ok := toAccount.FindCurrency(job.ToCurrencyID)
		if !ok {
			return s.markFailed(ctx, job.TransactionID)
		}

		succeeded, err = s.accounts.IncreaseBalances(ctx, toAccountCurrencyID, job.ToCurrencyID, job.ToAmount)
		if err != nil {
			return err
		}
		if err := s.finish(ctx, job.TransactionID, succeeded); err != nil {
			return err
		}
	}

	if toExternal {
		fromAccountCurrencyID, ok := fromAccount.FindCurrency(job.FromCurrencyID)
		if !ok {
			return s.markFailed(ctx, job.TransactionID)
		}

		succeeded, err = s.accounts.DecreaseBalance(ctx, fromAccountCurrencyID, job.FromCurrencyID, job.FromAmount, job.BankAmount)
		if err != nil {
			return err
		}

		status := domain.TransactionStatusAffirm
		if !succeeded {
			status = domain.TransactionStatusFailed
		}
		if err := s.transactions.UpdateStatus(ctx, job.TransactionID, status); err != nil {
			return err
		}
	}

	if fromExternal {
		if err := s.gateway.NotifyTransactionStatus(ctx, domain.NotifyStatusInput{
			TransactionID: job.ExternalID,
			Succeeded:     succeeded,
			AccountNumber: fromAccount.Number,
		}); err != nil {
			s.log.WithError(err).WithField("transaction", job.TransactionID).Error("Failed to notify counterparty bank")
		}
	}

	if toExternal && succeeded {
		if err := s.gateway.CreateTransaction(ctx, domain.MirrorTransactionInput{
			FromAccountNumber: fromAccount.Number,
			FromCurrencyID:    fromAccount.CurrencyID,
			ToAccountNumber:   toAccount.Number,
			ToCurrencyID:      toAccount.CurrencyID,
			Amount:            job.ToAmount,
			Code:              domain.CodeInternalTransfer,
			ReferenceNumber:   transaction.ReferenceNumber,
			Purpose:           transaction.Purpose,
			ExternalID:        transaction.ID,
		}); err != nil {
			s.log.WithError(err).WithField("transaction", job.TransactionID).Error("Failed to create mirror transaction at counterparty bank")
		}
	}

	return nil
}

// settleSecurityCredit books sale proceeds, netting out the 15% withholding
// on the profit with rates taken against the bank's settlement currency at
// settlement time.
func (s *Service) settleSecurityCredit(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.ToAccountID, job.ToCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	details, err := s.rates.Details(ctx, job.ToCurrencyID, s.settlementCurrencyID)
	if err != nil {
		return err
	}

	applied, err := s.accounts.IncreaseBalancesIncludingTax(ctx, accountCurrencyID, job.ToCurrencyID, job.ToAmount, job.Profit, details)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

func (s *Service) settleSecurityDebit(ctx context.Context, job domain.SettlementJob) error {
	accountCurrencyID, err := s.resolveCurrency(ctx, job.FromAccountID, job.FromCurrencyID)
	if err != nil {
		return s.markFailed(ctx, job.TransactionID)
	}

	applied, err := s.accounts.DecreaseBalance(ctx, accountCurrencyID, job.FromCurrencyID, job.FromAmount, job.BankAmount)
	if err != nil {
		return err
	}
	return s.finish(ctx, job.TransactionID, applied)
}

// resolveCurrency loads the account and finds the sub-ledger holding the
// given currency.
func (s *Service) resolveCurrency(ctx context.Context, accountID, currencyID uuid.UUID) (uuid.UUID, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return uuid.Nil, err
	}

	accountCurrencyID, ok := account.FindCurrency(currencyID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: account %s has no sub-ledger for currency %s", domain.ErrAccountCurrency, accountID, currencyID)
	}
	return accountCurrencyID, nil
}

func (s *Service) finish(ctx context.Context, transactionID uuid.UUID, applied bool) error {
	status := domain.TransactionStatusCompleted
	if !applied {
		status = domain.TransactionStatusFailed
	}
	return s.transactions.UpdateStatus(ctx, transactionID, status)
}

func (s *Service) markFailed(ctx context.Context, transactionID uuid.UUID) error {
	return s.transactions.UpdateStatus(ctx, transactionID, domain.TransactionStatusFailed)
}
