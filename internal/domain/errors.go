package domain

import "errors"

// Expected business outcomes are modeled as sentinel errors, never panics.
// Insufficient funds is not even an error: the balance primitives report it
// as a false result so callers are forced to handle it.
var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidData rejects a transfer request before anything is persisted.
	ErrInvalidData = errors.New("invalid transfer data")

	// ErrAccountCurrency means the account holds no sub-ledger in the
	// requested currency.
	ErrAccountCurrency = errors.New("account does not hold currency")

	// ErrTransferFailed marks a transfer whose eager debit leg was refused.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrExternalAccount means the counterparty bank does not know the
	// account a transfer references.
	ErrExternalAccount = errors.New("external bank account does not exist")

	// ErrDuplicate surfaces a unique-key violation; callers retry with a
	// fresh identifier.
	ErrDuplicate = errors.New("duplicate key")
)
