package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvukovic/bankcore/internal/domain"
)

// accountRepository implements domain.AccountRepository
//
// The balance primitives are single guarded UPDATE statements: the guard
// (available_balance >= amount, balance >= amount) sits in the WHERE clause,
// so a refused mutation simply affects zero rows and never partially
// applies. RowsAffected is the (bool, error) business outcome.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

const accountSelect = `
	SELECT a.id, a.number, a.client_id, a.currency_id, a.created_at,
	       b.id, b.name, b.code, b.base_url, b.is_external
	FROM accounts a
	JOIN banks b ON b.id = a.bank_id
`

// GetByID retrieves an account with its bank and currency sub-ledgers
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE a.id = $1`, id)
	return r.scanAccount(ctx, row)
}

// GetByNumber retrieves an account by its account number
func (r *accountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE a.number = $1`, number)
	return r.scanAccount(ctx, row)
}

func (r *accountRepository) scanAccount(ctx context.Context, row *sql.Row) (*domain.Account, error) {
	var account domain.Account
	var bank domain.Bank

	err := row.Scan(
		&account.ID,
		&account.Number,
		&account.ClientID,
		&account.CurrencyID,
		&account.CreatedAt,
		&bank.ID,
		&bank.Name,
		&bank.Code,
		&bank.BaseURL,
		&bank.IsExternal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.Bank = &bank

	query := `
		SELECT id, account_id, currency_id, available_balance, balance
		FROM account_currencies
		WHERE account_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account sub-ledgers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var accountCurrency domain.AccountCurrency
		var availableStr, balanceStr string

		err := rows.Scan(
			&accountCurrency.ID,
			&accountCurrency.AccountID,
			&accountCurrency.CurrencyID,
			&availableStr,
			&balanceStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account sub-ledger: %w", err)
		}

		accountCurrency.AvailableBalance, err = decimal.NewFromString(availableStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse available_balance: %w", err)
		}
		accountCurrency.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance: %w", err)
		}

		account.Currencies = append(account.Currencies, accountCurrency)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read account sub-ledgers: %w", err)
	}

	return &account, nil
}

// Create persists a new account with an empty sub-ledger for its primary
// currency; the bank is resolved from the number prefix.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertAccountQuery := `
		INSERT INTO accounts (id, number, client_id, bank_id, currency_id, created_at)
		VALUES ($1, $2, $3, (SELECT id FROM banks WHERE code = $4), $5, NOW())
	`

	_, err = dbTx.ExecContext(ctx, insertAccountQuery,
		account.ID,
		account.Number,
		account.ClientID,
		account.BankCode(),
		account.CurrencyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	insertSubLedgerQuery := `
		INSERT INTO account_currencies (id, account_id, currency_id, available_balance, balance, reserved_settlement, created_at)
		VALUES ($1, $2, $3, 0, 0, 0, NOW())
	`

	subLedgerID := uuid.New()
	_, err = dbTx.ExecContext(ctx, insertSubLedgerQuery, subLedgerID, account.ID, account.CurrencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account sub-ledger: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit account creation: %w", err)
	}

	account.Currencies = []domain.AccountCurrency{{
		ID:         subLedgerID,
		AccountID:  account.ID,
		CurrencyID: account.CurrencyID,
	}}
	return account, nil
}

// DecreaseAvailableBalance reserves spendable funds and tracks the in-flight
// value in the bank's settlement currency on the same row.
func (r *accountRepository) DecreaseAvailableBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET available_balance = available_balance - $3,
		    reserved_settlement = reserved_settlement + $4
		WHERE id = $1 AND currency_id = $2 AND available_balance >= $3
	`
	return r.guardedExec(ctx, query, accountCurrencyID, currencyID, amount.String(), settlementAmount.String())
}

// DecreaseBalance books a previously reserved debit and releases the
// settlement reservation.
func (r *accountRepository) DecreaseBalance(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, settlementAmount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET balance = balance - $3,
		    reserved_settlement = reserved_settlement - $4
		WHERE id = $1 AND currency_id = $2 AND balance >= $3
	`
	return r.guardedExec(ctx, query, accountCurrencyID, currencyID, amount.String(), settlementAmount.String())
}

// IncreaseBalances credits both the available and booked balances
func (r *accountRepository) IncreaseBalances(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET available_balance = available_balance + $3,
		    balance = balance + $3
		WHERE id = $1 AND currency_id = $2
	`
	return r.guardedExec(ctx, query, accountCurrencyID, currencyID, amount.String())
}

// IncreaseBalancesIncludingTax credits sale proceeds net of the 15%
// withholding on a positive profit and records the withheld tax in the
// bank's settlement currency.
func (r *accountRepository) IncreaseBalancesIncludingTax(ctx context.Context, accountCurrencyID, currencyID uuid.UUID, amount, profit decimal.Decimal, details *domain.ExchangeDetails) (bool, error) {
	tax := profit.Mul(decimal.NewFromFloat(0.15))
	if tax.IsNegative() {
		tax = decimal.Zero
	}
	credited := amount.Sub(tax)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	creditQuery := `
		UPDATE account_currencies
		SET available_balance = available_balance + $3,
		    balance = balance + $3
		WHERE id = $1 AND currency_id = $2
	`

	result, err := dbTx.ExecContext(ctx, creditQuery, accountCurrencyID, currencyID, credited.String())
	if err != nil {
		return false, fmt.Errorf("failed to credit balances: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if tax.IsPositive() {
		taxQuery := `
			INSERT INTO tax_entries (id, account_currency_id, amount, settlement_amount, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`

		_, err = dbTx.ExecContext(ctx, taxQuery, uuid.New(), accountCurrencyID,
			tax.String(), tax.Mul(details.AverageRate).String())
		if err != nil {
			return false, fmt.Errorf("failed to record withheld tax: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit taxed credit: %w", err)
	}
	return true, nil
}

// DecreaseDirectAvailableBalance debits only the available field
func (r *accountRepository) DecreaseDirectAvailableBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET available_balance = available_balance - $2
		WHERE id = $1 AND available_balance >= $2
	`
	return r.guardedExec(ctx, query, accountCurrencyID, amount.String())
}

// IncreaseDirectBalance credits a single balance field
func (r *accountRepository) IncreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET balance = balance + $2
		WHERE id = $1
	`
	return r.guardedExec(ctx, query, accountCurrencyID, amount.String())
}

// DecreaseDirectBalance debits a single balance field
func (r *accountRepository) DecreaseDirectBalance(ctx context.Context, accountCurrencyID uuid.UUID, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE account_currencies
		SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
	`
	return r.guardedExec(ctx, query, accountCurrencyID, amount.String())
}

// guardedExec runs one UPDATE and maps RowsAffected to the business outcome
func (r *accountRepository) guardedExec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update balances: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}
