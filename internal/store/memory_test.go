package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
)

func sampleArticle() *article.Record {
	return &article.Record{Draft: article.Draft{
		Title:     "Octopus",
		Summary:   "s",
		Sections:  []article.Section{{Heading: "h", Content: "c"}},
		WordCount: 1,
	}}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusFinished, false},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusFinished, true},
		{StatusRunning, StatusQueued, false},
		{StatusFinished, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusFinished, StatusFinished, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func runLifecycle(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.Create(ctx, NewRecord("run1", "octopus", "en")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, NewRecord("run1", "octopus", "en")); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate create error = %v, want ErrExists", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing error = %v, want ErrNotFound", err)
	}

	rec, err := s.Update(ctx, "run1", func(r *Record) error {
		r.Status = StatusRunning
		r.Step = "kickoff"
		return nil
	})
	if err != nil {
		t.Fatalf("update running: %v", err)
	}
	if rec.Status != StatusRunning || rec.Step != "kickoff" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := s.Update(ctx, "run1", func(r *Record) error {
		r.Error = "boom"
		return nil
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error without failed status = %v, want ErrInvalidTransition", err)
	}

	if _, err := s.Update(ctx, "run1", func(r *Record) error {
		r.Status = StatusFinished
		r.Step = "done"
		r.Article = sampleArticle()
		return nil
	}); err != nil {
		t.Fatalf("update finished: %v", err)
	}

	_, err = s.Update(ctx, "run1", func(r *Record) error {
		r.Status = StatusFailed
		r.Article = nil
		r.Error = "late failure"
		return nil
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal overwrite error = %v, want ErrInvalidTransition", err)
	}
	got, err := s.Get(ctx, "run1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFinished || got.Article == nil || got.Error != "" {
		t.Fatalf("terminal state was not sticky: %+v", got)
	}
	if got.Article.Title != "Octopus" || got.Topic != "octopus" {
		t.Fatalf("unexpected record %+v", got)
	}

	sentinel := errors.New("abort")
	if _, err := s.Update(ctx, "run1", func(*Record) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("mutator error = %v", err)
	}
}

func TestMemoryLifecycle(t *testing.T) {
	t.Parallel()
	runLifecycle(t, NewMemory())
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	rec := NewRecord("r", "t", "en")
	if err := m.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Update(ctx, "r", func(r *Record) error {
		r.Status = StatusRunning
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Update(ctx, "r", func(r *Record) error {
		r.Status = StatusFinished
		r.Article = sampleArticle()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(ctx, "r")
	got.Article.Sections[0].Content = "mutated"
	again, _ := m.Get(ctx, "r")
	if again.Article.Sections[0].Content != "c" {
		t.Fatalf("reader mutated stored record")
	}
}

func TestMemoryWatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m := NewMemory()
	if err := m.Create(ctx, NewRecord("w", "t", "en")); err != nil {
		t.Fatal(err)
	}
	ch, err := m.Watch(ctx, "w")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	first := <-ch
	if first.Status != StatusQueued {
		t.Fatalf("first status = %s", first.Status)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Update(ctx, "w", func(r *Record) error { r.Status = StatusRunning; r.Step = "kickoff"; return nil })
		_, _ = m.Update(ctx, "w", func(r *Record) error { r.Status = StatusFailed; r.Error = "boom"; return nil })
	}()

	var last Record
	for rec := range ch {
		last = rec
	}
	wg.Wait()
	if last.Status != StatusFailed || last.Error != "boom" {
		t.Fatalf("last watched record = %+v", last)
	}

	if _, err := m.Watch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("watch missing = %v", err)
	}
}

func TestMemoryWatchClosesOnCancel(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	if err := m.Create(context.Background(), NewRecord("c", "t", "en")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Watch(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch channel not closed after cancel")
	}
}

func TestMemoryWatchTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	rec := NewRecord("done", "t", "en")
	rec.Status = StatusFailed
	rec.Error = "not started"
	if err := m.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	ch, err := m.Watch(ctx, "done")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := <-ch
	if !ok || got.Status != StatusFailed {
		t.Fatalf("expected terminal snapshot, got %+v ok=%v", got, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should close after terminal snapshot")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	t.Parallel()
	if _, _, err := Open(context.Background(), Options{Backend: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	s, closeFn, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := s.(Watcher); !ok {
		t.Fatalf("memory store should implement Watcher")
	}
}
