package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvukovic/bankcore/internal/domain"
	"github.com/mvukovic/bankcore/internal/queue"
)

// Settler applies one settlement job to the ledger
type Settler interface {
	Settle(ctx context.Context, job domain.SettlementJob) error
}

// QueueDrainer is the single consumer of one settlement queue. Run owns the
// queue: exactly one drain is ever in flight, a tick arriving while a drain
// runs is absorbed by the ticker and the backlog is picked up by the next
// one.
type QueueDrainer struct {
	name     string
	queue    *queue.Queue
	settler  Settler
	interval time.Duration
	log      *logrus.Logger
}

// NewQueueDrainer creates a drainer for one settlement queue
func NewQueueDrainer(name string, q *queue.Queue, settler Settler, interval time.Duration, log *logrus.Logger) *QueueDrainer {
	return &QueueDrainer{
		name:     name,
		queue:    q,
		settler:  settler,
		interval: interval,
		log:      log,
	}
}

// Run consumes the queue until the context is canceled
func (d *QueueDrainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.WithFields(logrus.Fields{"queue": d.name, "interval": d.interval}).Info("Settlement worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.WithField("queue", d.name).Info("Settlement worker stopped")
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce takes everything currently queued and settles the jobs
// concurrently, returning once all of them finished.
func (d *QueueDrainer) DrainOnce(ctx context.Context) {
	jobs := d.queue.DrainAll()
	if len(jobs) == 0 {
		return
	}

	d.log.WithFields(logrus.Fields{"queue": d.name, "jobs": len(jobs)}).Info("Draining settlement queue")

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job domain.SettlementJob) {
			defer wg.Done()
			if err := d.settler.Settle(ctx, job); err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"queue":       d.name,
					"transaction": job.TransactionID,
					"kind":        job.Kind,
				}).Error("Settlement failed")
			}
		}(job)
	}
	wg.Wait()
}
