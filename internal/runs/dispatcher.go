package runs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/wikiwriter/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("run queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrUnsupportedLanguage is returned by NormalizeLanguage.
	ErrUnsupportedLanguage = errors.New("language must be en or pt")
)

var supportedLanguages = map[string]struct{}{"en": {}, "pt": {}}

// NormalizeLanguage lowercases lang and defaults it to "en". Only en and pt
// are accepted.
func NormalizeLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "en", nil
	}
	if _, ok := supportedLanguages[lang]; !ok {
		return "", ErrUnsupportedLanguage
	}
	return lang, nil
}

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
)

// Dispatcher feeds submitted jobs to a fixed pool of executor workers.
type Dispatcher struct {
	store   store.Store
	exec    *Executor
	queue   chan Job
	workers int
	metrics *Metrics
	logger  *log.Logger

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before submitting work.
func NewDispatcher(st store.Store, exec *Executor, workers, queueSize int, metrics *Metrics, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if metrics == nil {
		metrics = exec.metrics
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		store:   st,
		exec:    exec,
		queue:   make(chan Job, queueSize),
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, n int) {
	defer d.wg.Done()
	for job := range d.queue {
		if err := ctx.Err(); err != nil {
			d.abandon(job, cancelledBeforeStart)
			continue
		}
		d.logger.Printf("worker %d picked run %s", n, job.RunID)
		d.exec.Execute(ctx, job)
	}
}

// Stop refuses new submissions, cancels in-flight runs and waits for the
// workers to record a terminal state for every queued job.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		// never started: no worker will drain the queue
		for job := range d.queue {
			d.abandon(job, cancelledBeforeStart)
		}
		return
	}
	cancel()
	d.wg.Wait()
}

// Submit creates a queued run record and enqueues it. The run id is returned
// as soon as the record exists; execution happens on a worker. When the job
// cannot be enqueued the record is marked failed and its id is returned along
// with the error.
func (d *Dispatcher) Submit(ctx context.Context, topic, language string) (string, error) {
	job := Job{RunID: NewRunID(), Topic: topic, Language: language}
	if err := d.store.Create(ctx, store.NewRecord(job.RunID, topic, language)); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	d.metrics.Submitted.Inc()

	d.mu.RLock()
	if d.stopped {
		d.mu.RUnlock()
		d.abandon(job, ErrStopped.Error())
		return job.RunID, ErrStopped
	}
	select {
	case d.queue <- job:
		d.mu.RUnlock()
		d.logger.Printf("run %s queued for %q (%s)", job.RunID, topic, language)
		return job.RunID, nil
	default:
		d.mu.RUnlock()
		d.abandon(job, ErrQueueFull.Error())
		return job.RunID, ErrQueueFull
	}
}

const cancelledBeforeStart = "run cancelled before it started"

// abandon marks a job that never reached a worker as failed.
func (d *Dispatcher) abandon(job Job, reason string) {
	d.metrics.Finished.WithLabelValues(string(store.StatusFailed)).Inc()
	_, err := d.store.Update(context.Background(), job.RunID, func(r *store.Record) error {
		r.Status = store.StatusFailed
		r.Error = reason
		return nil
	})
	if err != nil {
		d.logger.Printf("run %s: could not record abandonment: %v", job.RunID, err)
	}
}

// NewRunID returns a random 32 character hex id.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
