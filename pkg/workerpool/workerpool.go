package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/andrej220/confaudit/internal/lg"
)

const (
	TotalMaxWorkers = 10
)

type JobFunc[T any] func(context.Context, T) error

// Job is a unit of work. OnError receives the error returned by Fn or a
// recovered panic; CleanupFunc always runs last.
type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
	OnError     func(T, error)
}

// Pool runs jobs on a fixed set of maxWorkers goroutines. Jobs are never
// retried and a panicking job never takes a worker down.
type Pool[T any] struct {
	Jobs          chan Job[T]
	activeWorkers int32
	wg            sync.WaitGroup
	closeOnce     sync.Once
	maxWorkers    int
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = TotalMaxWorkers
	}
	pool := &Pool[T]{
		Jobs:       make(chan Job[T], maxWorkers),
		maxWorkers: maxWorkers,
	}
	pool.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go pool.worker(i)
	}
	return pool
}

// Submit blocks until a worker slot frees up in the queue. It must not be
// called after Close.
func (p *Pool[T]) Submit(job Job[T]) {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	p.Jobs <- job
}

// Close stops accepting jobs. Queued jobs still run.
func (p *Pool[T]) Close() {
	p.closeOnce.Do(func() { close(p.Jobs) })
}

// Wait closes the pool and blocks until every submitted job has finished.
func (p *Pool[T]) Wait() {
	p.Close()
	p.wg.Wait()
}

func (p *Pool[T]) worker(id int) {
	defer p.wg.Done()
	for job := range p.Jobs {
		p.run(id, job)
	}
}

func (p *Pool[T]) run(id int, job Job[T]) {
	active := atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)
	defer func() {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}()

	logger := lg.FromContext(job.Ctx).With(lg.Int("worker", id))
	logger.Debug("job started", lg.Int32("active", active))

	if err := p.call(job); err != nil {
		logger.Debug("job failed", lg.Err(err))
		if job.OnError != nil {
			job.OnError(job.Payload, err)
		}
		return
	}
	logger.Debug("job finished")
}

func (p *Pool[T]) call(job Job[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Fn(job.Ctx, job.Payload)
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}

func (p *Pool[T]) MaxWorkers() int {
	return p.maxWorkers
}
