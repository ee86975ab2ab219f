package interbank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mvukovic/bankcore/internal/domain"
)

// Client is the HTTP implementation of domain.ExternalBankGateway. The
// counterparty bank is resolved from the three-character prefix of the
// account number it owns.
type Client struct {
	endpoints  map[string]string // bank code -> base URL
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient creates a gateway talking to the configured counterparty banks
func NewClient(endpoints map[string]string, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// GetAccount looks an account up at the bank owning its number prefix
func (c *Client) GetAccount(ctx context.Context, accountNumber string) (*domain.ExternalAccountInfo, error) {
	baseURL, err := c.resolve(accountNumber)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/accounts/"+accountNumber, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build account lookup request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "account lookup request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(domain.ErrNotFound, "account %s", accountNumber)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("account lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read account lookup response")
	}

	parsed := gjson.ParseBytes(body)
	currencyID, err := uuid.Parse(parsed.Get("currencyId").String())
	if err != nil {
		return nil, errors.Wrap(err, "account lookup response carries no valid currencyId")
	}

	return &domain.ExternalAccountInfo{
		Number:     parsed.Get("number").String(),
		FirstName:  parsed.Get("firstName").String(),
		LastName:   parsed.Get("lastName").String(),
		Email:      parsed.Get("email").String(),
		CurrencyID: currencyID,
	}, nil
}

// NotifyTransactionStatus reports the local settlement outcome to the bank
// owning the account.
func (c *Client) NotifyTransactionStatus(ctx context.Context, input domain.NotifyStatusInput) error {
	baseURL, err := c.resolve(input.AccountNumber)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"transactionId":     input.TransactionID,
		"transferSucceeded": input.Succeeded,
		"accountNumber":     input.AccountNumber,
	}

	return c.post(ctx, baseURL+"/api/transactions/notify-status", payload)
}

// CreateTransaction asks the bank owning the payee account to create the
// mirrored transaction crediting its side.
func (c *Client) CreateTransaction(ctx context.Context, input domain.MirrorTransactionInput) error {
	baseURL, err := c.resolve(input.ToAccountNumber)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"fromAccountNumber":     input.FromAccountNumber,
		"fromCurrencyId":        input.FromCurrencyID,
		"toAccountNumber":       input.ToAccountNumber,
		"toCurrencyId":          input.ToCurrencyID,
		"amount":                input.Amount,
		"code":                  input.Code,
		"referenceNumber":       input.ReferenceNumber,
		"purpose":               input.Purpose,
		"externalTransactionId": input.ExternalID,
	}

	return c.post(ctx, baseURL+"/api/transactions", payload)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// resolve maps an account number to the base URL of the bank owning it
func (c *Client) resolve(accountNumber string) (string, error) {
	if len(accountNumber) < 3 {
		return "", errors.Wrapf(domain.ErrInvalidData, "malformed account number %q", accountNumber)
	}

	baseURL, ok := c.endpoints[accountNumber[:3]]
	if !ok {
		return "", errors.Wrapf(domain.ErrNotFound, "no bank configured for prefix %s", accountNumber[:3])
	}
	return baseURL, nil
}
