package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvukovic/bankcore/internal/domain"
)

// Matcher runs one matching cycle over a batch of quote snapshots
type Matcher interface {
	ProcessQuotes(ctx context.Context, quotes []domain.Quote) error
}

// QuoteCycler polls the market-data feed for one asset class and feeds each
// snapshot batch into the order matcher. Asset classes run on separate
// cyclers so a slow forex feed never holds up stock matching.
type QuoteCycler struct {
	securityType domain.SecurityType
	securities   domain.SecurityRepository
	feed         domain.QuoteFeed
	matcher      Matcher
	interval     time.Duration
	log          *logrus.Logger
}

// NewQuoteCycler creates a quote polling worker for one asset class
func NewQuoteCycler(
	securityType domain.SecurityType,
	securities domain.SecurityRepository,
	feed domain.QuoteFeed,
	matcher Matcher,
	interval time.Duration,
	log *logrus.Logger,
) *QuoteCycler {
	return &QuoteCycler{
		securityType: securityType,
		securities:   securities,
		feed:         feed,
		matcher:      matcher,
		interval:     interval,
		log:          log,
	}
}

// Run polls the feed until the context is canceled
func (c *QuoteCycler) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.WithFields(logrus.Fields{"type": c.securityType, "interval": c.interval}).Info("Quote worker started")

	for {
		select {
		case <-ctx.Done():
			c.log.WithField("type", c.securityType).Info("Quote worker stopped")
			return
		case <-ticker.C:
			if err := c.Cycle(ctx); err != nil {
				c.log.WithError(err).WithField("type", c.securityType).Warn("Matching cycle aborted")
			}
		}
	}
}

// Cycle fetches one snapshot batch and matches orders against it. Any
// failure aborts the whole cycle; nothing is settled partially and the next
// tick starts from scratch.
func (c *QuoteCycler) Cycle(ctx context.Context) error {
	securities, err := c.securities.FindAll(ctx, c.securityType)
	if err != nil {
		return err
	}
	if len(securities) == 0 {
		return nil
	}

	quotes, err := c.feed.FetchQuotes(ctx, securities)
	if err != nil {
		return err
	}

	return c.matcher.ProcessQuotes(ctx, quotes)
}
