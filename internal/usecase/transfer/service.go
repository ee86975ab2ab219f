package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mvukovic/bankcore/internal/domain"
	"github.com/mvukovic/bankcore/internal/queue"
)

// Input is a transfer request as it arrives from the API surface or the
// order matcher. Account numbers are optional: which sides are present,
// together with the transaction code, selects the transfer topology.
type Input struct {
	FromAccountNumber string
	FromCurrencyID    uuid.UUID
	ToAccountNumber   string
	ToCurrencyID      uuid.UUID
	Amount            decimal.Decimal
	Code              string
	Profit            decimal.Decimal
	ReferenceNumber   string
	Purpose           string
	// ExternalID is set when a counterparty bank asks us to mirror one of
	// its transactions.
	ExternalID uuid.UUID
}

// RateCalculator resolves the conversion rates for one transfer
type RateCalculator interface {
	Details(ctx context.Context, fromID, toID uuid.UUID) (*domain.ExchangeDetails, error)
}

// Service prepares transfer requests into persisted transactions plus
// queued settlement jobs.
//
// Every topology follows the same shape: validate, persist the transaction
// in Pending, apply the eager first mutation where the topology debits,
// then enqueue the settlement job carrying its kind. The debit leg is eager
// so a double spend is refused before money is in flight; the credit leg is
// deferred to the settler.
type Service struct {
	transactions domain.TransactionRepository
	accounts     domain.AccountRepository
	currencies   domain.CurrencyRepository
	codes        domain.TransactionCodeRepository
	users        domain.UserRepository
	gateway      domain.ExternalBankGateway
	rates        RateCalculator
	queues       *queue.Queues
	bankCode     string
	log          *logrus.Logger
}

// NewService creates a new transaction preparer. The queue pair is the same
// object the settlement workers drain.
func NewService(
	transactions domain.TransactionRepository,
	accounts domain.AccountRepository,
	currencies domain.CurrencyRepository,
	codes domain.TransactionCodeRepository,
	users domain.UserRepository,
	gateway domain.ExternalBankGateway,
	rates RateCalculator,
	queues *queue.Queues,
	bankCode string,
	log *logrus.Logger,
) *Service {
	return &Service{
		transactions: transactions,
		accounts:     accounts,
		currencies:   currencies,
		codes:        codes,
		users:        users,
		gateway:      gateway,
		rates:        rates,
		queues:       queues,
		bankCode:     bankCode,
		log:          log,
	}
}

// Create prepares one transfer request. The returned transaction is in
// Pending status (Affirm for an incoming external mirror) with its
// settlement job queued, or an error describing why nothing was queued.
func (s *Service) Create(ctx context.Context, in Input) (*domain.Transaction, error) {
	if in.FromAccountNumber == "" && in.ToAccountNumber == "" {
		return nil, fmt.Errorf("%w: no account provided", domain.ErrInvalidData)
	}

	code, err := s.codes.GetByCode(ctx, in.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown transaction code %q", domain.ErrInvalidData, in.Code)
	}

	fromAccount, err := s.lookupAccount(ctx, in.FromAccountNumber)
	if err != nil {
		return nil, err
	}
	toAccount, err := s.lookupAccount(ctx, in.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	switch code.Code {
	case domain.CodeWithdraw:
		return s.prepareFromAccount(ctx, in, code, fromAccount)
	case domain.CodeLoanInstallment, domain.CodeInterestPayment:
		return s.prepareDirectFromAccount(ctx, in, code, fromAccount)
	case domain.CodeDeposit:
		return s.prepareToAccount(ctx, in, code, toAccount)
	case domain.CodeLoanDisbursement, domain.CodeAgentPayout, domain.CodeAgentFee:
		return s.prepareDirectToAccount(ctx, in, code, toAccount)
	case domain.CodeSecurityTrade, domain.CodeSecuritySettle:
		if in.FromAccountNumber == "" {
			return s.prepareSecurity(ctx, in, code, toAccount, false)
		}
		if in.ToAccountNumber == "" {
			return s.prepareSecurity(ctx, in, code, fromAccount, true)
		}
	}

	if in.FromAccountNumber == "" || in.ToAccountNumber == "" {
		return nil, fmt.Errorf("%w: dual-leg transfer needs both accounts", domain.ErrInvalidData)
	}

	if bankCodeOf(in.FromAccountNumber) == s.bankCode && bankCodeOf(in.ToAccountNumber) == s.bankCode &&
		code.Code == domain.CodeInternalTransfer {
		return s.prepareInternal(ctx, in, code, fromAccount, toAccount)
	}

	return s.prepareExternal(ctx, in, code, fromAccount, toAccount)
}

// prepareFromAccount handles a withdrawal: the from side only, settled
// through the internal queue.
func (s *Service) prepareFromAccount(ctx context.Context, in Input, code *domain.TransactionCode, account *domain.Account) (*domain.Transaction, error) {
	if err := s.validateSingleLeg(ctx, account, in.FromCurrencyID, in.Amount); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:             uuid.New(),
		FromAccountID:  &account.ID,
		FromCurrencyID: &in.FromCurrencyID,
		FromAmount:     in.Amount,
		CodeID:         code.ID,
		Purpose:        in.Purpose,
		Status:         domain.TransactionStatusPending,
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	accountCurrencyID, ok := account.FindCurrency(in.FromCurrencyID)
	if !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	applied, err := s.accounts.DecreaseAvailableBalance(ctx, accountCurrencyID, in.FromCurrencyID, in.Amount, in.Amount)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.fail(ctx, tx.ID, domain.ErrTransferFailed)
	}

	s.queues.Internal.Enqueue(domain.SettlementJob{
		TransactionID:  tx.ID,
		Kind:           domain.SettleFromAccount,
		FromAccountID:  account.ID,
		FromCurrencyID: in.FromCurrencyID,
		FromAmount:     in.Amount,
		BankAmount:     in.Amount,
	})

	return tx, nil
}

// prepareDirectFromAccount handles installment and interest collection:
// a single-field debit with no dual ledger.
func (s *Service) prepareDirectFromAccount(ctx context.Context, in Input, code *domain.TransactionCode, account *domain.Account) (*domain.Transaction, error) {
	if err := s.validateSingleLeg(ctx, account, in.FromCurrencyID, in.Amount); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:             uuid.New(),
		FromAccountID:  &account.ID,
		FromCurrencyID: &in.FromCurrencyID,
		FromAmount:     in.Amount,
		CodeID:         code.ID,
		Purpose:        in.Purpose,
		Status:         domain.TransactionStatusPending,
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	accountCurrencyID, ok := account.FindCurrency(in.FromCurrencyID)
	if !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	applied, err := s.accounts.DecreaseDirectAvailableBalance(ctx, accountCurrencyID, in.Amount)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.fail(ctx, tx.ID, domain.ErrTransferFailed)
	}

	s.queues.Internal.Enqueue(domain.SettlementJob{
		TransactionID:  tx.ID,
		Kind:           domain.SettleDirectFromAccount,
		FromAccountID:  account.ID,
		FromCurrencyID: in.FromCurrencyID,
		FromAmount:     in.Amount,
		BankAmount:     in.Amount,
	})

	return tx, nil
}

// prepareToAccount handles a deposit: the to side only, nothing is debited
// eagerly, the credit waits for the internal drain.
func (s *Service) prepareToAccount(ctx context.Context, in Input, code *domain.TransactionCode, account *domain.Account) (*domain.Transaction, error) {
	if err := s.validateSingleLeg(ctx, account, in.ToCurrencyID, in.Amount); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:           uuid.New(),
		ToAccountID:  &account.ID,
		ToCurrencyID: &in.ToCurrencyID,
		ToAmount:     in.Amount,
		TaxAmount:    taxOn(in.Profit),
		CodeID:       code.ID,
		Purpose:      in.Purpose,
		Status:       domain.TransactionStatusPending,
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	if _, ok := account.FindCurrency(in.ToCurrencyID); !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	s.queues.Internal.Enqueue(domain.SettlementJob{
		TransactionID: tx.ID,
		Kind:          domain.SettleToAccount,
		ToAccountID:   account.ID,
		ToCurrencyID:  in.ToCurrencyID,
		ToAmount:      in.Amount,
		Profit:        in.Profit,
	})

	return tx, nil
}

// prepareDirectToAccount handles loan disbursement and agent payouts:
// a single-field credit.
func (s *Service) prepareDirectToAccount(ctx context.Context, in Input, code *domain.TransactionCode, account *domain.Account) (*domain.Transaction, error) {
	if err := s.validateSingleLeg(ctx, account, in.ToCurrencyID, in.Amount); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:           uuid.New(),
		ToAccountID:  &account.ID,
		ToCurrencyID: &in.ToCurrencyID,
		ToAmount:     in.Amount,
		CodeID:       code.ID,
		Purpose:      in.Purpose,
		Status:       domain.TransactionStatusPending,
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	if _, ok := account.FindCurrency(in.ToCurrencyID); !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	s.queues.Internal.Enqueue(domain.SettlementJob{
		TransactionID: tx.ID,
		Kind:          domain.SettleDirectToAccount,
		ToAccountID:   account.ID,
		ToCurrencyID:  in.ToCurrencyID,
		ToAmount:      in.Amount,
	})

	return tx, nil
}

// prepareSecurity handles both legs of a security trade. fromLeg marks a
// purchase (the account pays); otherwise sale proceeds are credited, with
// the taxable profit converted into the credited currency.
func (s *Service) prepareSecurity(ctx context.Context, in Input, code *domain.TransactionCode, account *domain.Account, fromLeg bool) (*domain.Transaction, error) {
	if account == nil || in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: security transfer needs an account and a positive amount", domain.ErrInvalidData)
	}

	details, err := s.rates.Details(ctx, in.FromCurrencyID, in.ToCurrencyID)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:             uuid.New(),
		FromCurrencyID: &in.FromCurrencyID,
		ToCurrencyID:   &in.ToCurrencyID,
		CodeID:         code.ID,
		Purpose:        in.Purpose,
		Status:         domain.TransactionStatusPending,
	}

	job := domain.SettlementJob{
		TransactionID:  tx.ID,
		FromCurrencyID: in.FromCurrencyID,
		ToCurrencyID:   in.ToCurrencyID,
	}

	if fromLeg {
		// Purchase: Amount arrives in the security's currency (the to side),
		// the cost is reserved in the account's currency.
		tx.FromAccountID = &account.ID
		tx.FromAmount = in.Amount.Mul(details.InverseAverageRate)

		job.Kind = domain.SettleSecurityDebit
		job.FromAccountID = account.ID
		job.FromAmount = tx.FromAmount
		job.BankAmount = tx.FromAmount
	} else {
		// Sale: Amount and Profit arrive in the security's currency (the from
		// side), proceeds and tax land in the account's currency.
		tx.ToAccountID = &account.ID
		tx.ToAmount = in.Amount.Mul(details.AverageRate)
		tx.TaxAmount = taxOn(in.Profit.Mul(details.AverageRate))

		job.Kind = domain.SettleSecurityCredit
		job.ToAccountID = account.ID
		job.ToAmount = tx.ToAmount
		job.Profit = in.Profit.Mul(details.AverageRate)
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	if fromLeg {
		accountCurrencyID, ok := account.FindCurrency(in.FromCurrencyID)
		if !ok {
			return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
		}

		applied, err := s.accounts.DecreaseAvailableBalance(ctx, accountCurrencyID, in.FromCurrencyID, tx.FromAmount, tx.FromAmount)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, s.fail(ctx, tx.ID, domain.ErrTransferFailed)
		}
	} else if _, ok := account.FindCurrency(in.ToCurrencyID); !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	s.queues.External.Enqueue(job)

	return tx, nil
}

// prepareInternal handles a dual-leg transfer between two accounts of this
// bank, possibly across currencies.
func (s *Service) prepareInternal(ctx context.Context, in Input, code *domain.TransactionCode, fromAccount, toAccount *domain.Account) (*domain.Transaction, error) {
	if fromAccount == nil || toAccount == nil || in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: internal transfer needs both accounts and a positive amount", domain.ErrInvalidData)
	}

	details, err := s.rates.Details(ctx, in.FromCurrencyID, in.ToCurrencyID)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:              uuid.New(),
		FromAccountID:   &fromAccount.ID,
		FromCurrencyID:  &in.FromCurrencyID,
		FromAmount:      in.Amount,
		ToAccountID:     &toAccount.ID,
		ToCurrencyID:    &in.ToCurrencyID,
		ToAmount:        in.Amount.Mul(details.ExchangeRate),
		CodeID:          code.ID,
		Purpose:         in.Purpose,
		ReferenceNumber: in.ReferenceNumber,
		Status:          domain.TransactionStatusPending,
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	accountCurrencyID, ok := fromAccount.FindCurrency(in.FromCurrencyID)
	if !ok {
		return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
	}

	bankAmount := details.ExchangeRate.Mul(details.AverageRate).Mul(in.Amount)

	applied, err := s.accounts.DecreaseAvailableBalance(ctx, accountCurrencyID, in.FromCurrencyID, in.Amount, bankAmount)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, s.fail(ctx, tx.ID, domain.ErrTransferFailed)
	}

	s.queues.Internal.Enqueue(domain.SettlementJob{
		TransactionID:  tx.ID,
		Kind:           domain.SettleDualLeg,
		FromAccountID:  fromAccount.ID,
		FromCurrencyID: in.FromCurrencyID,
		FromAmount:     in.Amount,
		ToAccountID:    toAccount.ID,
		ToCurrencyID:   in.ToCurrencyID,
		ToAmount:       tx.ToAmount,
		BankAmount:     bankAmount,
	})

	return tx, nil
}

// prepareExternal handles a transfer where at least one side lives at
// another bank. An unknown counterparty is materialized as a local shadow
// user+account before anything is persisted; if the lookup fails no
// transaction row is written.
func (s *Service) prepareExternal(ctx context.Context, in Input, code *domain.TransactionCode, fromAccount, toAccount *domain.Account) (*domain.Transaction, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidData)
	}

	fromAccount, err := s.ensureAccount(ctx, fromAccount, in.FromAccountNumber)
	if err != nil {
		return nil, err
	}
	toAccount, err = s.ensureAccount(ctx, toAccount, in.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	details, err := s.rates.Details(ctx, in.FromCurrencyID, in.ToCurrencyID)
	if err != nil {
		return nil, err
	}

	// An incoming transfer is the mirror of a debit already settled at the
	// counterparty bank: it starts in Affirm with the amount preconverted.
	incoming := toAccount.BankCode() == s.bankCode && fromAccount.BankCode() != s.bankCode

	tx := &domain.Transaction{
		ID:              uuid.New(),
		FromAccountID:   &fromAccount.ID,
		FromCurrencyID:  &in.FromCurrencyID,
		FromAmount:      in.Amount,
		ToAccountID:     &toAccount.ID,
		ToCurrencyID:    &in.ToCurrencyID,
		ToAmount:        in.Amount,
		CodeID:          code.ID,
		Purpose:         in.Purpose,
		ReferenceNumber: in.ReferenceNumber,
		Status:          domain.TransactionStatusPending,
	}
	if incoming {
		tx.Status = domain.TransactionStatusAffirm
	} else {
		tx.ToAmount = in.Amount.Mul(details.ExchangeRate)
	}

	if err := s.persist(ctx, tx, in.ReferenceNumber); err != nil {
		return nil, err
	}

	if fromAccount.BankCode() == s.bankCode {
		accountCurrencyID, ok := fromAccount.FindCurrency(in.FromCurrencyID)
		if !ok {
			return nil, s.fail(ctx, tx.ID, domain.ErrAccountCurrency)
		}

		bankAmount := details.ExchangeRate.Mul(details.AverageRate).Mul(in.Amount)

		applied, err := s.accounts.DecreaseAvailableBalance(ctx, accountCurrencyID, in.FromCurrencyID, in.Amount, bankAmount)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, s.fail(ctx, tx.ID, domain.ErrTransferFailed)
		}
	}

	s.queues.External.Enqueue(domain.SettlementJob{
		TransactionID:  tx.ID,
		Kind:           domain.SettleExternal,
		FromAccountID:  fromAccount.ID,
		FromCurrencyID: in.FromCurrencyID,
		FromAmount:     in.Amount,
		ToAccountID:    toAccount.ID,
		ToCurrencyID:   in.ToCurrencyID,
		ToAmount:       in.Amount.Mul(details.ExchangeRate),
		BankAmount:     details.ExchangeRate.Mul(details.AverageRate).Mul(in.Amount),
		ExternalID:     in.ExternalID,
	})

	return tx, nil
}

// ensureAccount materializes a shadow account for a counterparty this bank
// has never seen before.
func (s *Service) ensureAccount(ctx context.Context, account *domain.Account, number string) (*domain.Account, error) {
	if account != nil {
		return account, nil
	}
	if number == "" {
		return nil, fmt.Errorf("%w: no account provided", domain.ErrInvalidData)
	}

	info, err := s.gateway.GetAccount(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExternalAccount, number)
	}

	user, err := s.users.Create(ctx, &domain.User{
		ID:        uuid.New(),
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Email:     info.Email,
	})
	if err != nil {
		return nil, err
	}

	created, err := s.accounts.Create(ctx, &domain.Account{
		ID:         uuid.New(),
		Number:     info.Number,
		ClientID:   user.ID,
		CurrencyID: info.CurrencyID,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"account": info.Number}).Info("Materialized shadow account for external counterparty")

	return created, nil
}

// validateSingleLeg fails fast, before anything is persisted, when a
// single-sided topology is missing its account, currency or a positive
// amount.
func (s *Service) validateSingleLeg(ctx context.Context, account *domain.Account, currencyID uuid.UUID, amount decimal.Decimal) error {
	if account == nil || currencyID == uuid.Nil || amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: account, currency and a positive amount are required", domain.ErrInvalidData)
	}

	if _, err := s.currencies.GetByID(ctx, currencyID); err != nil {
		return fmt.Errorf("%w: unknown currency", domain.ErrInvalidData)
	}

	return nil
}

// persist writes the transaction row, retrying reference-number collisions
// with bounded attempts and a jittered backoff.
func (s *Service) persist(ctx context.Context, tx *domain.Transaction, referenceNumber string) error {
	const maxAttempts = 3

	tx.ReferenceNumber = referenceNumber
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.ModifiedAt = now

	for attempt := 1; ; attempt++ {
		if tx.ReferenceNumber == "" {
			tx.ReferenceNumber = newReferenceNumber()
		}

		err := s.transactions.Create(ctx, tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicate) || attempt == maxAttempts {
			return err
		}

		s.log.WithError(err).WithField("attempt", attempt).Warn("Reference number collision, retrying")
		tx.ReferenceNumber = ""
		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
	}
}

// fail marks the transaction Failed and returns the business error; the
// settlement job is never queued on this path.
func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) error {
	if err := s.transactions.UpdateStatus(ctx, id, domain.TransactionStatusFailed); err != nil {
		s.log.WithError(err).WithField("transaction", id).Error("Failed to mark transaction failed")
	}
	return cause
}

// lookupAccount resolves a local account by number. Absence is a valid
// outcome for topology selection (the number may belong to another bank);
// anything other than ErrNotFound is an infrastructure failure and must
// not be mistaken for an external counterparty.
func (s *Service) lookupAccount(ctx context.Context, number string) (*domain.Account, error) {
	if number == "" {
		return nil, nil
	}
	account, err := s.accounts.GetByNumber(ctx, number)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func bankCodeOf(accountNumber string) string {
	if len(accountNumber) < 3 {
		return ""
	}
	return accountNumber[:3]
}

// taxOn is the 15% withholding on a positive profit; losses owe nothing.
func taxOn(profit decimal.Decimal) decimal.Decimal {
	tax := profit.Mul(decimal.NewFromFloat(0.15))
	if tax.IsNegative() {
		return decimal.Zero
	}
	return tax
}

func newReferenceNumber() string {
	return fmt.Sprintf("%d%04d", time.Now().UTC().UnixNano()/1e6, rand.Intn(10000))
}
