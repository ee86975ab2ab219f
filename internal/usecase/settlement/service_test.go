package settlement

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mvukovic/bankcore/internal/domain"
)

// MockTransactionRepository is a mock implementation of domain.TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) error {
	args := m.Called(ctx, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// MockAccountRepository is a mock implementation of domain.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) DecreaseAvailableBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, currencyID, amount, settlementAmount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) DecreaseBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, currencyID, amount, settlementAmount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) IncreaseBalances(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, currencyID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) IncreaseBalancesIncludingTax(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, profit decimal.Decimal, details *domain.ExchangeDetails) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, currencyID, amount, profit, details)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) DecreaseDirectAvailableBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) IncreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) DecreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, accountCurrencyID, amount)
	return args.Bool(0), args.Error(1)
}

// MockRateCalculator is a mock implementation of RateCalculator
type MockRateCalculator struct {
	mock.Mock
}

func (m *MockRateCalculator) Details(ctx context.Context, fromID, toID uuid.UUID) (*domain.ExchangeDetails, error) {
	args := m.Called(ctx, fromID, toID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeDetails), args.Error(1)
}

// MockExternalBankGateway is a mock implementation of domain.ExternalBankGateway
type MockExternalBankGateway struct {
	mock.Mock
}

func (m *MockExternalBankGateway) GetAccount(ctx context.Context, accountNumber string) (*domain.ExternalAccountInfo, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExternalAccountInfo), args.Error(1)
}

func (m *MockExternalBankGateway) NotifyTransactionStatus(ctx context.Context, input domain.NotifyStatusInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func (m *MockExternalBankGateway) CreateTransaction(ctx context.Context, input domain.MirrorTransactionInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

type settlerFixture struct {
	transactions         *MockTransactionRepository
	accounts             *MockAccountRepository
	rates                *MockRateCalculator
	gateway              *MockExternalBankGateway
	settlementCurrencyID uuid.UUID
	service              *Service
}

func newSettlerFixture() *settlerFixture {
	f := &settlerFixture{
		transactions:         new(MockTransactionRepository),
		accounts:             new(MockAccountRepository),
		rates:                new(MockRateCalculator),
		gateway:              new(MockExternalBankGateway),
		settlementCurrencyID: uuid.New(),
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	f.service = NewService(f.transactions, f.accounts, f.rates, f.gateway, f.settlementCurrencyID, log)
	return f
}

func accountWithCurrency(number string, currencyID uuid.UUID, bank *domain.Bank) *domain.Account {
	return &domain.Account{
		ID:         uuid.New(),
		Number:     number,
		CurrencyID: currencyID,
		Bank:       bank,
		Currencies: []domain.AccountCurrency{{ID: uuid.New(), CurrencyID: currencyID}},
	}
}

func TestSettle_TerminalTransactionIsNoOp(t *testing.T) {
	for _, status := range []domain.TransactionStatus{
		domain.TransactionStatusCompleted,
		domain.TransactionStatusFailed,
		domain.TransactionStatusCanceled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newSettlerFixture()
			ctx := context.Background()

			id := uuid.New()
			f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: status}, nil)

			err := f.service.Settle(ctx, domain.SettlementJob{
				TransactionID: id,
				Kind:          domain.SettleToAccount,
				ToAccountID:   uuid.New(),
			})

			assert.NoError(t, err)
			f.accounts.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
			f.transactions.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSettle_ToAccountCompletes(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	account := accountWithCurrency("1110000002", currencyID, nil)
	id := uuid.New()
	amount := decimal.NewFromInt(300)

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.accounts.On("IncreaseBalances", ctx, account.Currencies[0].ID, currencyID, amount).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusCompleted).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID: id,
		Kind:          domain.SettleToAccount,
		ToAccountID:   account.ID,
		ToCurrencyID:  currencyID,
		ToAmount:      amount,
	})

	assert.NoError(t, err)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusCompleted)
}

func TestSettle_FromAccountRefusedMarksFailed(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	account := accountWithCurrency("1110000001", currencyID, nil)
	id := uuid.New()
	amount := decimal.NewFromInt(100)

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.accounts.On("DecreaseBalance", ctx, account.Currencies[0].ID, currencyID, amount, amount).Return(false, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusFailed).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleFromAccount,
		FromAccountID:  account.ID,
		FromCurrencyID: currencyID,
		FromAmount:     amount,
		BankAmount:     amount,
	})

	assert.NoError(t, err)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusFailed)
}

func TestSettle_DualLegHappyPath(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	eurID := uuid.New()
	rsdID := uuid.New()
	from := accountWithCurrency("1110000001", eurID, nil)
	to := accountWithCurrency("1110000002", rsdID, nil)
	id := uuid.New()

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, from.ID).Return(from, nil)
	f.accounts.On("GetByID", ctx, to.ID).Return(to, nil)
	f.accounts.On("DecreaseBalance", ctx, from.Currencies[0].ID, eurID, mock.Anything, mock.Anything).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusAffirm).Return(nil)
	f.accounts.On("IncreaseBalances", ctx, to.Currencies[0].ID, rsdID, mock.Anything).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusCompleted).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleDualLeg,
		FromAccountID:  from.ID,
		FromCurrencyID: eurID,
		FromAmount:     decimal.NewFromInt(10),
		ToAccountID:    to.ID,
		ToCurrencyID:   rsdID,
		ToAmount:       decimal.RequireFromString("1146.6"),
		BankAmount:     decimal.RequireFromString("134152.2"),
	})

	assert.NoError(t, err)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusAffirm)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusCompleted)
}

func TestSettle_DualLegCreditFailureLeavesDebitApplied(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	from := accountWithCurrency("1110000001", currencyID, nil)
	to := accountWithCurrency("1110000002", currencyID, nil)
	id := uuid.New()

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, from.ID).Return(from, nil)
	f.accounts.On("GetByID", ctx, to.ID).Return(to, nil)
	f.accounts.On("DecreaseBalance", ctx, from.Currencies[0].ID, currencyID, mock.Anything, mock.Anything).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusAffirm).Return(nil)
	f.accounts.On("IncreaseBalances", ctx, to.Currencies[0].ID, currencyID, mock.Anything).Return(false, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusFailed).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleDualLeg,
		FromAccountID:  from.ID,
		FromCurrencyID: currencyID,
		FromAmount:     decimal.NewFromInt(10),
		ToAccountID:    to.ID,
		ToCurrencyID:   currencyID,
		ToAmount:       decimal.NewFromInt(10),
		BankAmount:     decimal.NewFromInt(10),
	})

	// The debit stays booked; the transaction ends Failed with no
	// compensating credit back to the payer.
	assert.NoError(t, err)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusFailed)
	f.accounts.AssertNumberOfCalls(t, "DecreaseBalance", 1)
	f.accounts.AssertNotCalled(t, "IncreaseBalances", ctx, from.Currencies[0].ID, currencyID, mock.Anything)
}

func TestSettle_DualLegDebitRefusedStopsBeforeCredit(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	from := accountWithCurrency("1110000001", currencyID, nil)
	to := accountWithCurrency("1110000002", currencyID, nil)
	id := uuid.New()

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, from.ID).Return(from, nil)
	f.accounts.On("GetByID", ctx, to.ID).Return(to, nil)
	f.accounts.On("DecreaseBalance", ctx, from.Currencies[0].ID, currencyID, mock.Anything, mock.Anything).Return(false, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusFailed).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleDualLeg,
		FromAccountID:  from.ID,
		FromCurrencyID: currencyID,
		FromAmount:     decimal.NewFromInt(10),
		ToAccountID:    to.ID,
		ToCurrencyID:   currencyID,
		ToAmount:       decimal.NewFromInt(10),
	})

	assert.NoError(t, err)
	f.accounts.AssertNotCalled(t, "IncreaseBalances", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.transactions.AssertNotCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusAffirm)
}

func TestSettle_ExternalIncomingCreditsAndNotifies(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	externalBank := &domain.Bank{ID: uuid.New(), Code: "222", IsExternal: true}
	localBank := &domain.Bank{ID: uuid.New(), Code: "111"}
	payer := accountWithCurrency("2220000009", currencyID, externalBank)
	payee := accountWithCurrency("1110000002", currencyID, localBank)
	id := uuid.New()
	externalID := uuid.New()

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusAffirm}, nil)
	f.accounts.On("GetByID", ctx, payer.ID).Return(payer, nil)
	f.accounts.On("GetByID", ctx, payee.ID).Return(payee, nil)
	f.accounts.On("IncreaseBalances", ctx, payee.Currencies[0].ID, currencyID, mock.Anything).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusCompleted).Return(nil)
	f.gateway.On("NotifyTransactionStatus", ctx, domain.NotifyStatusInput{
		TransactionID: externalID,
		Succeeded:     true,
		AccountNumber: payer.Number,
	}).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleExternal,
		FromAccountID:  payer.ID,
		FromCurrencyID: currencyID,
		ToAccountID:    payee.ID,
		ToCurrencyID:   currencyID,
		ToAmount:       decimal.NewFromInt(100),
		ExternalID:     externalID,
	})

	assert.NoError(t, err)
	f.gateway.AssertCalled(t, "NotifyTransactionStatus", ctx, mock.Anything)
	f.gateway.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestSettle_ExternalOutgoingDebitsAndMirrors(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	currencyID := uuid.New()
	localBank := &domain.Bank{ID: uuid.New(), Code: "111"}
	externalBank := &domain.Bank{ID: uuid.New(), Code: "222", IsExternal: true}
	payer := accountWithCurrency("1110000001", currencyID, localBank)
	payee := accountWithCurrency("2220000009", currencyID, externalBank)
	id := uuid.New()
	transaction := &domain.Transaction{
		ID:              id,
		Status:          domain.TransactionStatusPending,
		ReferenceNumber: "17567000000001",
		Purpose:         "Invoice 42",
	}

	f.transactions.On("GetByID", ctx, id).Return(transaction, nil)
	f.accounts.On("GetByID", ctx, payer.ID).Return(payer, nil)
	f.accounts.On("GetByID", ctx, payee.ID).Return(payee, nil)
	f.accounts.On("DecreaseBalance", ctx, payer.Currencies[0].ID, currencyID, mock.Anything, mock.Anything).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusAffirm).Return(nil)
	f.gateway.On("CreateTransaction", ctx, mock.MatchedBy(func(in domain.MirrorTransactionInput) bool {
		return in.ExternalID == id &&
			in.FromAccountNumber == payer.Number &&
			in.ToAccountNumber == payee.Number &&
			in.ReferenceNumber == transaction.ReferenceNumber
	})).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID:  id,
		Kind:           domain.SettleExternal,
		FromAccountID:  payer.ID,
		FromCurrencyID: currencyID,
		FromAmount:     decimal.NewFromInt(100),
		ToAccountID:    payee.ID,
		ToCurrencyID:   currencyID,
		ToAmount:       decimal.NewFromInt(100),
		BankAmount:     decimal.NewFromInt(100),
	})

	assert.NoError(t, err)
	f.gateway.AssertCalled(t, "CreateTransaction", ctx, mock.Anything)
	f.gateway.AssertNotCalled(t, "NotifyTransactionStatus", mock.Anything, mock.Anything)
}

func TestSettle_SecurityCreditUsesFreshSettlementRates(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	usdID := uuid.New()
	account := accountWithCurrency("1110000001", usdID, nil)
	id := uuid.New()
	details := domain.UnitExchangeDetails(usdID)

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.rates.On("Details", ctx, usdID, f.settlementCurrencyID).Return(details, nil)
	f.accounts.On("IncreaseBalancesIncludingTax", ctx, account.Currencies[0].ID, usdID,
		decimal.NewFromInt(1200), decimal.NewFromInt(200), details).Return(true, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusCompleted).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID: id,
		Kind:          domain.SettleSecurityCredit,
		ToAccountID:   account.ID,
		ToCurrencyID:  usdID,
		ToAmount:      decimal.NewFromInt(1200),
		Profit:        decimal.NewFromInt(200),
	})

	assert.NoError(t, err)
	f.rates.AssertCalled(t, "Details", ctx, usdID, f.settlementCurrencyID)
}

func TestSettle_MissingSubLedgerMarksFailed(t *testing.T) {
	f := newSettlerFixture()
	ctx := context.Background()

	account := &domain.Account{ID: uuid.New(), Number: "1110000001"}
	id := uuid.New()

	f.transactions.On("GetByID", ctx, id).Return(&domain.Transaction{ID: id, Status: domain.TransactionStatusPending}, nil)
	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.transactions.On("UpdateStatus", ctx, id, domain.TransactionStatusFailed).Return(nil)

	err := f.service.Settle(ctx, domain.SettlementJob{
		TransactionID: id,
		Kind:          domain.SettleToAccount,
		ToAccountID:   account.ID,
		ToCurrencyID:  uuid.New(),
		ToAmount:      decimal.NewFromInt(10),
	})

	assert.NoError(t, err)
	f.transactions.AssertCalled(t, "UpdateStatus", ctx, id, domain.TransactionStatusFailed)
	f.accounts.AssertNotCalled(t, "IncreaseBalances", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
