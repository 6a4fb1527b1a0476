package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is a process-local Store. Records live for the lifetime of the process.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]Record
	watchers map[string][]*watch
	now      func() time.Time
}

type watch struct {
	ch     chan Record
	done   chan struct{}
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]Record),
		watchers: make(map[string][]*watch),
		now:      time.Now,
	}
}

func (m *Memory) Create(_ context.Context, rec Record) error {
	if err := checkCreate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	now := m.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.ID] = rec.Snapshot()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Snapshot(), nil
}

func (m *Memory) Update(_ context.Context, id string, mutate Mutator) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := prev.Snapshot()
	if err := mutate(&next); err != nil {
		return Record{}, err
	}
	if err := checkUpdate(prev, next); err != nil {
		return Record{}, err
	}
	next.UpdatedAt = m.now().UTC()
	m.records[id] = next.Snapshot()
	m.broadcastLocked(next)
	return next.Snapshot(), nil
}

// Watch streams the current record followed by every later change.
func (m *Memory) Watch(ctx context.Context, id string) (<-chan Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	w := &watch{ch: make(chan Record, 1), done: make(chan struct{})}
	w.ch <- rec.Snapshot()
	if rec.Status.Terminal() {
		close(w.ch)
		return w.ch, nil
	}
	m.watchers[id] = append(m.watchers[id], w)

	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			defer m.mu.Unlock()
			m.dropLocked(id, w)
		case <-w.done:
		}
	}()
	return w.ch, nil
}

// broadcastLocked hands rec to every watcher of rec.ID. A watcher that has not
// consumed the previous value gets it replaced so it only ever sees the latest.
func (m *Memory) broadcastLocked(rec Record) {
	for _, w := range m.watchers[rec.ID] {
		select {
		case w.ch <- rec.Snapshot():
		default:
			select {
			case <-w.ch:
			default:
			}
			w.ch <- rec.Snapshot()
		}
		if rec.Status.Terminal() {
			w.closed = true
			close(w.ch)
			close(w.done)
		}
	}
	if rec.Status.Terminal() {
		delete(m.watchers, rec.ID)
	}
}

func (m *Memory) dropLocked(id string, w *watch) {
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
	close(w.done)
	list := m.watchers[id]
	for i, candidate := range list {
		if candidate == w {
			m.watchers[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.watchers[id]) == 0 {
		delete(m.watchers, id)
	}
}
