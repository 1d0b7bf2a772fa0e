// ABOUTME: Sharded executor for best-effort remote writes
// ABOUTME: Keeps per-user FIFO order, retries transient failures and drains on Stop

// Package outbox runs best-effort remote writes off the local-truth path.
//
// Jobs are partitioned by key (the user id) onto shard workers; FIFO order is
// preserved per shard, so one user's writes reach the remote in submission
// order. Transient failures are retried with exponential backoff; irrecoverable
// failures and exhausted retries are dropped and reported through OnDrop.
//
// Callers must not Submit concurrently for the same key if they rely on order.
package outbox

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/harper/om/internal/metrics"
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// Stats is a point-in-time view of the executor
type Stats struct {
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
}

// Executor runs Jobs on shard workers
type Executor struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queuedJob

	// mu orders Submit's send against Stop closing done
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	pending   int64
	completed int64
	dropped   int64

	wg sync.WaitGroup
}

// New starts the shard workers
func New(cfg Config, log zerolog.Logger) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:    cfg,
		log:    log.With().Str("component", "outbox").Logger(),
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		e.queues[i] = ch
		e.wg.Add(1)
		go e.runWorker(i, ch)
	}
	return e
}

// Submit enqueues job on the shard for key.
// The job runs with ctx; pass a context that outlives the caller (context.WithoutCancel)
// when the write must survive the request that produced it.
func (e *Executor) Submit(ctx context.Context, key string, job Job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}

	shard := e.shardFor(key)
	ch := e.queues[shard]
	label := metrics.ShardLabel(shard)

	timer := time.NewTimer(e.cfg.EnqueueTimeout)
	defer timer.Stop()

	atomic.AddInt64(&e.pending, 1)
	select {
	case ch <- queuedJob{ctx: ctx, key: key, job: job}:
		metrics.OutboxSubmissions.WithLabelValues(label).Inc()
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&e.pending, -1)
		return ctx.Err()
	case <-timer.C:
		atomic.AddInt64(&e.pending, -1)
		metrics.OutboxQueueFull.WithLabelValues(label).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier waits until every job submitted for key before the call has finished
func (e *Executor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	j := JobFunc(func(context.Context) error {
		close(done)
		return nil
	})
	if err := e.Submit(ctx, key, j); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stats returns counters since start
func (e *Executor) Stats() Stats {
	return Stats{
		Pending:   atomic.LoadInt64(&e.pending),
		Completed: atomic.LoadInt64(&e.completed),
		Dropped:   atomic.LoadInt64(&e.dropped),
	}
}

// Stop drains every shard once (no retries) and waits for workers to exit.
// Submissions already sending finish first. Idempotent.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.log.Debug().Int("shards", e.cfg.Shards).Msg("stopping outbox, draining shards")
	close(e.done)
	e.mu.Unlock()
	e.wg.Wait()
	e.log.Debug().Msg("outbox stopped")
}

// Close lets Executor satisfy io.Closer.
func (e *Executor) Close() error {
	e.Stop()
	return nil
}

func (e *Executor) runWorker(idx int, ch <-chan queuedJob) {
	defer e.wg.Done()
	label := metrics.ShardLabel(idx)

	for {
		select {
		case qj := <-ch:
			e.process(label, qj)
			metrics.OutboxDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-e.done:
			drained := 0
			for {
				select {
				case qj := <-ch:
					if err := e.runOnce(label, qj); err != nil {
						e.drop(label, qj.key, err)
					} else {
						atomic.AddInt64(&e.completed, 1)
					}
					atomic.AddInt64(&e.pending, -1)
					drained++
				default:
					if drained > 0 {
						e.log.Debug().Int("shard", idx).Int("drained", drained).Msg("drained remaining writes")
					}
					metrics.OutboxDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

func (e *Executor) process(label string, qj queuedJob) {
	defer atomic.AddInt64(&e.pending, -1)

	if qj.job == nil {
		return
	}
	if err := qj.ctx.Err(); err != nil {
		e.drop(label, qj.key, err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = e.cfg.MaxInterval
	exp.Reset()

	for attempt := 1; ; attempt++ {
		err := e.runOnce(label, qj)
		if err == nil {
			atomic.AddInt64(&e.completed, 1)
			return
		}
		if isIrrecoverable(err) || attempt >= e.cfg.MaxAttempts {
			e.drop(label, qj.key, err)
			return
		}

		wait := exp.NextBackOff()
		e.log.Warn().Err(err).Str("key", qj.key).Int("attempt", attempt).Dur("retry_in", wait).Msg("remote write failed")

		select {
		case <-time.After(wait):
		case <-e.done:
			// Stop drains without retries; this is the last attempt
			if err := e.runOnce(label, qj); err != nil {
				e.drop(label, qj.key, err)
			} else {
				atomic.AddInt64(&e.completed, 1)
			}
			return
		case <-qj.ctx.Done():
			e.drop(label, qj.key, qj.ctx.Err())
			return
		}
	}
}

// runOnce runs a job, turning a panic into an error so the shard survives
func (e *Executor) runOnce(label string, qj queuedJob) (err error) {
	if qj.job == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox job panic: %v", r)
		}
	}()
	start := time.Now()
	err = qj.job.Run(qj.ctx)
	metrics.OutboxRunDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return err
}

func (e *Executor) drop(label, key string, err error) {
	atomic.AddInt64(&e.dropped, 1)
	metrics.OutboxDropped.WithLabelValues(label).Inc()
	e.log.Error().Err(err).Str("key", key).Msg("remote write dropped")

	if e.cfg.OnDrop == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("outbox drop handler panic")
		}
	}()
	e.cfg.OnDrop(key, err)
}

func (e *Executor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(e.cfg.Shards))
}
