package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository defines account lookup and the atomic ledger primitives.
//
// Every balance mutation returns (applied, error): applied is false when the
// business outcome refuses the mutation (insufficient funds, unknown
// sub-ledger) and the error is reserved for infrastructure failures. A
// refused decrease must fail atomically, it never partially applies, and an
// available balance never goes negative.
type AccountRepository interface {
	// GetByID retrieves an account with its bank and currency sub-ledgers
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetByNumber retrieves an account by its account number
	GetByNumber(ctx context.Context, number string) (*Account, error)

	// Create persists a new account (used for shadow counterparty accounts)
	Create(ctx context.Context, account *Account) (*Account, error)

	// DecreaseAvailableBalance eagerly reserves funds when a transfer is
	// prepared: available -= amount, with settlementAmount recorded against
	// the bank's reference currency.
	DecreaseAvailableBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error)

	// DecreaseBalance settles the booked total of a previously reserved
	// debit leg: balance -= amount.
	DecreaseBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error)

	// IncreaseBalances credits both the available and booked balances
	IncreaseBalances(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount decimal.Decimal) (bool, error)

	// IncreaseBalancesIncludingTax credits sale proceeds net of the 15%
	// withholding on profit, converted with the given rates.
	IncreaseBalancesIncludingTax(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, profit decimal.Decimal, details *ExchangeDetails) (bool, error)

	// DecreaseDirectAvailableBalance debits only the available field
	DecreaseDirectAvailableBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error)

	// IncreaseDirectBalance credits a single balance field, no dual ledger
	IncreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error)

	// DecreaseDirectBalance debits a single balance field
	DecreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error)
}

// TransactionRepository persists transfer records
type TransactionRepository interface {
	// Create persists a new transaction; a reference-number collision is
	// reported as ErrDuplicate so the caller can retry with a fresh one
	Create(ctx context.Context, transaction *Transaction) error

	// GetByID retrieves a transaction by its id
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// UpdateStatus advances the settlement status. Terminal states are
	// never overwritten; the update is silently dropped in that case.
	UpdateStatus(ctx context.Context, id uuid.UUID, status TransactionStatus) error
}

// OrderRepository holds the open-order working set the matcher consumes
type OrderRepository interface {
	// FindOpenByTickers retrieves all Open orders for the given tickers,
	// in arrival order
	FindOpenByTickers(ctx context.Context, tickers []string) ([]*Order, error)

	// Complete marks fully consumed orders Completed and removes them from
	// the open set
	Complete(ctx context.Context, ids []uuid.UUID) error
}

// AssetRepository persists security holdings per actuary
type AssetRepository interface {
	// GetBySecurityAndActuary retrieves the holding for one owner and
	// security, or ErrNotFound
	GetBySecurityAndActuary(ctx context.Context, securityID, actuaryID uuid.UUID) (*Asset, error)

	// Save inserts or updates a holding
	Save(ctx context.Context, asset *Asset) error

	// Delete removes a holding entirely (quantity reached zero)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SecurityRepository lists the instruments quotes are fetched for
type SecurityRepository interface {
	// FindAll retrieves all securities of one asset class
	FindAll(ctx context.Context, securityType SecurityType) ([]*Security, error)

	// GetByID retrieves a security by its id
	GetByID(ctx context.Context, id uuid.UUID) (*Security, error)
}

// CurrencyRepository resolves currencies by id or ISO code
type CurrencyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Currency, error)
	GetByCode(ctx context.Context, code string) (*Currency, error)
}

// ExchangeRepository reads and appends currency-pair rate records
type ExchangeRepository interface {
	// LatestByPair retrieves the most recent Exchange matching the pair in
	// either direction, or ErrNotFound
	LatestByPair(ctx context.Context, firstCurrencyID, secondCurrencyID uuid.UUID) (*Exchange, error)

	// Create appends a new rate observation
	Create(ctx context.Context, exchange *Exchange) error
}

// UserRepository persists account owners
type UserRepository interface {
	Create(ctx context.Context, user *User) (*User, error)
}

// TransactionCodeRepository resolves payment codes
type TransactionCodeRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TransactionCode, error)
	GetByCode(ctx context.Context, code string) (*TransactionCode, error)
}

// ExternalAccountInfo is the counterparty bank's view of one of its
// accounts, used to materialize a local shadow account
type ExternalAccountInfo struct {
	Number     string
	FirstName  string
	LastName   string
	Email      string
	CurrencyID uuid.UUID
}

// NotifyStatusInput reports a settlement outcome back to the bank that
// originated the transfer
type NotifyStatusInput struct {
	TransactionID uuid.UUID
	Succeeded     bool
	AccountNumber string
}

// MirrorTransactionInput asks the counterparty bank to create its side of a
// completed outgoing transfer
type MirrorTransactionInput struct {
	FromAccountNumber string
	FromCurrencyID    uuid.UUID
	ToAccountNumber   string
	ToCurrencyID      uuid.UUID
	Amount            decimal.Decimal
	Code              string
	ReferenceNumber   string
	Purpose           string
	ExternalID        uuid.UUID
}

// ExternalBankGateway is the logical interbank interface; the wire transport
// behind it is an adapter concern.
type ExternalBankGateway interface {
	// GetAccount looks an account up at the bank owning its number prefix;
	// ErrNotFound when the counterparty does not know it
	GetAccount(ctx context.Context, accountNumber string) (*ExternalAccountInfo, error)

	// NotifyTransactionStatus reports the local settlement outcome
	NotifyTransactionStatus(ctx context.Context, input NotifyStatusInput) error

	// CreateTransaction creates the mirrored transaction on the other side
	CreateTransaction(ctx context.Context, input MirrorTransactionInput) error
}

// QuoteFeed delivers market-data snapshots for a batch of securities
type QuoteFeed interface {
	FetchQuotes(ctx context.Context, securities []*Security) ([]Quote, error)
}
