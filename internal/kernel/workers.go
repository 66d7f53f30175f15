package kernel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/request"
)

// Pool runs a fixed set of worker goroutines that poll the queue and hand
// each queued request to the kernel. Workers never share a request: the
// conditional PROCESSING claim inside Invoke is the arbiter, so two workers
// picking up the same id is harmless.
type Pool struct {
	kernel   *Kernel
	requests *request.Store
	count    int
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPool(k *Kernel, requests *request.Store, count int, pollInterval time.Duration) *Pool {
	if count <= 0 {
		count = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Pool{
		kernel:   k,
		requests: requests,
		count:    count,
		interval: pollInterval,
		logger:   log.WithComponent("workers"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker goroutines. Non-blocking.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.count, "poll_interval", p.interval)
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals all workers and waits for in-flight requests to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()

	logger := p.logger.With("worker", worker)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processNext(ctx); err != nil {
				logger.Error("failed to process request", "error", err)
			}
		}
	}
}

// processNext claims and executes at most one request. Draining the queue
// faster than one request per tick is the pool's job as a whole, not any
// single worker's.
func (p *Pool) processNext(ctx context.Context) error {
	id, ok, err := p.requests.NextQueued(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	return p.kernel.Invoke(ctx, id)
}
