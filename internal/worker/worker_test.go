package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mvukovic/bankcore/internal/domain"
	"github.com/mvukovic/bankcore/internal/queue"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// recordingSettler collects the jobs it was asked to settle
type recordingSettler struct {
	mu   sync.Mutex
	jobs []domain.SettlementJob
	err  error
}

func (s *recordingSettler) Settle(_ context.Context, job domain.SettlementJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return s.err
}

func (s *recordingSettler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func TestQueueDrainer_DrainOnceSettlesEverything(t *testing.T) {
	q := queue.NewQueue()
	settler := &recordingSettler{}
	drainer := NewQueueDrainer("internal", q, settler, time.Minute, discardLogger())

	for i := 0; i < 5; i++ {
		q.Enqueue(domain.SettlementJob{TransactionID: uuid.New(), Kind: domain.SettleToAccount})
	}

	drainer.DrainOnce(context.Background())

	assert.Equal(t, 5, settler.count())
	assert.Equal(t, 0, q.Len())
}

func TestQueueDrainer_SettlementErrorDoesNotStopOthers(t *testing.T) {
	q := queue.NewQueue()
	settler := &recordingSettler{err: errors.New("boom")}
	drainer := NewQueueDrainer("external", q, settler, time.Minute, discardLogger())

	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})
	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})

	drainer.DrainOnce(context.Background())

	assert.Equal(t, 2, settler.count())
}

func TestQueueDrainer_RunDrainsOnTicks(t *testing.T) {
	q := queue.NewQueue()
	settler := &recordingSettler{}
	drainer := NewQueueDrainer("internal", q, settler, 5*time.Millisecond, discardLogger())

	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		drainer.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return settler.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

// MockSecurityRepository is a mock implementation of domain.SecurityRepository
type MockSecurityRepository struct {
	mock.Mock
}

func (m *MockSecurityRepository) FindAll(ctx context.Context, securityType domain.SecurityType) ([]*domain.Security, error) {
	args := m.Called(ctx, securityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Security), args.Error(1)
}

func (m *MockSecurityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Security), args.Error(1)
}

// MockQuoteFeed is a mock implementation of domain.QuoteFeed
type MockQuoteFeed struct {
	mock.Mock
}

func (m *MockQuoteFeed) FetchQuotes(ctx context.Context, securities []*domain.Security) ([]domain.Quote, error) {
	args := m.Called(ctx, securities)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Quote), args.Error(1)
}

// MockMatcher is a mock implementation of Matcher
type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) ProcessQuotes(ctx context.Context, quotes []domain.Quote) error {
	args := m.Called(ctx, quotes)
	return args.Error(0)
}

func TestQuoteCycler_CycleFeedsMatcher(t *testing.T) {
	securities := new(MockSecurityRepository)
	feed := new(MockQuoteFeed)
	matcher := new(MockMatcher)
	cycler := NewQuoteCycler(domain.SecurityTypeStock, securities, feed, matcher, time.Minute, discardLogger())

	ctx := context.Background()
	listed := []*domain.Security{{ID: uuid.New(), Ticker: "AAPL"}}
	quotes := []domain.Quote{{Ticker: "AAPL"}}

	securities.On("FindAll", ctx, domain.SecurityTypeStock).Return(listed, nil)
	feed.On("FetchQuotes", ctx, listed).Return(quotes, nil)
	matcher.On("ProcessQuotes", ctx, quotes).Return(nil)

	err := cycler.Cycle(ctx)

	assert.NoError(t, err)
	matcher.AssertCalled(t, "ProcessQuotes", ctx, quotes)
}

func TestQuoteCycler_FeedFailureAbortsCycle(t *testing.T) {
	securities := new(MockSecurityRepository)
	feed := new(MockQuoteFeed)
	matcher := new(MockMatcher)
	cycler := NewQuoteCycler(domain.SecurityTypeForexPair, securities, feed, matcher, time.Minute, discardLogger())

	ctx := context.Background()
	listed := []*domain.Security{{ID: uuid.New(), Ticker: "EURUSD"}}

	securities.On("FindAll", ctx, domain.SecurityTypeForexPair).Return(listed, nil)
	feed.On("FetchQuotes", ctx, listed).Return(nil, errors.New("feed down"))

	err := cycler.Cycle(ctx)

	assert.Error(t, err)
	matcher.AssertNotCalled(t, "ProcessQuotes", mock.Anything, mock.Anything)
}

func TestQuoteCycler_NoSecuritiesSkipsFeed(t *testing.T) {
	securities := new(MockSecurityRepository)
	feed := new(MockQuoteFeed)
	matcher := new(MockMatcher)
	cycler := NewQuoteCycler(domain.SecurityTypeStock, securities, feed, matcher, time.Minute, discardLogger())

	ctx := context.Background()
	securities.On("FindAll", ctx, domain.SecurityTypeStock).Return([]*domain.Security{}, nil)

	assert.NoError(t, cycler.Cycle(ctx))
	feed.AssertNotCalled(t, "FetchQuotes", mock.Anything, mock.Anything)
}
