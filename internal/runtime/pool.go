package runtime

import (
	"context"
	"sync"
)

// Pool bounds how many scenario runs execute concurrently. Submitted jobs are
// admitted FIFO as workers free up, which is what batch variation runs use.
type Pool struct {
	jobs    chan func(ctx context.Context)
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// DefaultQueueSize bounds how many jobs may wait for admission.
const DefaultQueueSize = 64

// NewPool starts workers goroutines consuming jobs in submission order.
// Workers stop when ctx is cancelled or the pool is closed.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		jobs: make(chan func(ctx context.Context), DefaultQueueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job(ctx)
				}
			}
		}()
	}
	return p
}

// Submit queues one job. It blocks while the queue is full and reports false
// once the pool is closed. The lock is held across the send so Close can
// never close the channel under a blocked sender.
func (p *Pool) Submit(job func(ctx context.Context)) bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return false
	}
	p.jobs <- job
	return true
}

// Close stops admission and waits for queued jobs to finish.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.closeMu.Unlock()
	p.wg.Wait()
}
