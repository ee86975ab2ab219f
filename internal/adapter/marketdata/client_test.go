package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/mvukovic/bankcore/internal/domain"
)

func testClient(baseURL string, cacheTTL time.Duration) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewClient(baseURL, time.Second, cacheTTL, log)
}

const quotesPayload = `{
	"quotes": [
		{"symbol": "AAPL", "bidPrice": 149.5, "bidSize": 40, "askPrice": 150.0, "askSize": 60,
		 "high": 151.0, "low": 148.0, "open": 149.0, "close": 150.5},
		{"symbol": "UNKNOWN", "bidPrice": 1, "bidSize": 1, "askPrice": 1, "askSize": 1}
	]
}`

func TestFetchQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, quotesPayload)
	}))
	defer server.Close()

	client := testClient(server.URL, time.Minute)
	security := &domain.Security{ID: uuid.New(), Ticker: "AAPL", Type: domain.SecurityTypeStock}

	quotes, err := client.FetchQuotes(context.Background(), []*domain.Security{security})

	assert.NoError(t, err)
	// The unknown symbol from the provider is dropped
	assert.Len(t, quotes, 1)
	assert.Equal(t, security.ID, quotes[0].SecurityID)
	assert.True(t, quotes[0].BidPrice.Equal(decimal.RequireFromString("149.5")))
	assert.True(t, quotes[0].AskSize.Equal(decimal.NewFromInt(60)))
}

func TestFetchQuotes_SnapshotCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, quotesPayload)
	}))
	defer server.Close()

	client := testClient(server.URL, time.Minute)
	securities := []*domain.Security{{ID: uuid.New(), Ticker: "AAPL"}}

	_, err := client.FetchQuotes(context.Background(), securities)
	assert.NoError(t, err)
	_, err = client.FetchQuotes(context.Background(), securities)
	assert.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchQuotes_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(server.URL, time.Minute)

	_, err := client.FetchQuotes(context.Background(), []*domain.Security{{ID: uuid.New(), Ticker: "AAPL"}})

	assert.Error(t, err)
}

func TestFetchQuotes_EmptyBatch(t *testing.T) {
	client := testClient("http://unused", time.Minute)

	quotes, err := client.FetchQuotes(context.Background(), nil)

	assert.NoError(t, err)
	assert.Nil(t, quotes)
}
