package marketdata

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/mvukovic/bankcore/internal/domain"
)

// Client is the HTTP implementation of domain.QuoteFeed. Snapshots are
// cached for a short TTL so the per-asset-class workers polling close
// together do not hammer the provider with identical requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	snapshots  *cache.Cache
	log        *logrus.Logger
}

// NewClient creates a quote feed client against the given provider
func NewClient(baseURL string, timeout, cacheTTL time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		snapshots: cache.New(cacheTTL, 2*cacheTTL),
		log:       log,
	}
}

// FetchQuotes retrieves one snapshot per security. A missing symbol in the
// provider response is skipped, not an error; a transport or decode failure
// fails the whole batch.
func (c *Client) FetchQuotes(ctx context.Context, securities []*domain.Security) ([]domain.Quote, error) {
	if len(securities) == 0 {
		return nil, nil
	}

	tickers := make([]string, len(securities))
	securityByTicker := make(map[string]*domain.Security, len(securities))
	for i, security := range securities {
		tickers[i] = security.Ticker
		securityByTicker[security.Ticker] = security
	}

	key := strings.Join(tickers, ",")
	if cached, ok := c.snapshots.Get(key); ok {
		return cached.([]domain.Quote), nil
	}

	requestURL := c.baseURL + "/api/quotes?symbols=" + url.QueryEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build quote request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("quote request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read quote response")
	}

	items := gjson.GetBytes(body, "quotes")
	if !items.IsArray() {
		return nil, errors.New("quote response carries no quotes array")
	}

	now := time.Now().UTC()
	var quotes []domain.Quote
	items.ForEach(func(_, item gjson.Result) bool {
		ticker := item.Get("symbol").String()
		security, ok := securityByTicker[ticker]
		if !ok {
			c.log.WithField("symbol", ticker).Debug("Skipping quote for unknown symbol")
			return true
		}

		quotes = append(quotes, domain.Quote{
			SecurityID: security.ID,
			Ticker:     ticker,
			BidPrice:   decimal.NewFromFloat(item.Get("bidPrice").Float()),
			BidSize:    decimal.NewFromFloat(item.Get("bidSize").Float()),
			AskPrice:   decimal.NewFromFloat(item.Get("askPrice").Float()),
			AskSize:    decimal.NewFromFloat(item.Get("askSize").Float()),
			HighPrice:  decimal.NewFromFloat(item.Get("high").Float()),
			LowPrice:   decimal.NewFromFloat(item.Get("low").Float()),
			OpenPrice:  decimal.NewFromFloat(item.Get("open").Float()),
			ClosePrice: decimal.NewFromFloat(item.Get("close").Float()),
			CreatedAt:  now,
		})
		return true
	})

	c.snapshots.Set(key, quotes, cache.DefaultExpiration)
	return quotes, nil
}
