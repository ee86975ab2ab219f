package queue

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mvukovic/bankcore/internal/domain"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := &Queue{}

	first := domain.SettlementJob{TransactionID: uuid.New()}
	second := domain.SettlementJob{TransactionID: uuid.New()}
	third := domain.SettlementJob{TransactionID: uuid.New()}

	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)

	drained := q.DrainAll()

	assert.Len(t, drained, 3)
	assert.Equal(t, first.TransactionID, drained[0].TransactionID)
	assert.Equal(t, second.TransactionID, drained[1].TransactionID)
	assert.Equal(t, third.TransactionID, drained[2].TransactionID)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DrainAllEmpty(t *testing.T) {
	q := &Queue{}
	assert.Nil(t, q.DrainAll())
}

func TestQueue_AccumulatesBetweenDrains(t *testing.T) {
	q := &Queue{}

	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})
	assert.Len(t, q.DrainAll(), 1)

	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})
	q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})
	assert.Len(t, q.DrainAll(), 2)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := &Queue{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(domain.SettlementJob{TransactionID: uuid.New()})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())
}
