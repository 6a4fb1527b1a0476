package runs

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/store"
)

// NotFoundMessage is the error reported for unknown run ids.
const NotFoundMessage = "not found"

// View is the public status of a run.
type View struct {
	RunID  string       `json:"run_id"`
	Status store.Status `json:"status"`
	Step   string       `json:"step,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ResultView is a View plus the article of a finished run.
type ResultView struct {
	View
	Article *article.Record `json:"article,omitempty"`
}

// ViewOf projects a record onto its public view.
func ViewOf(rec store.Record) View {
	return View{RunID: rec.ID, Status: rec.Status, Step: rec.Step, Error: PublicError(rec.Error)}
}

// NotFoundView is reported for run ids the store does not know.
func NotFoundView(id string) View {
	return View{RunID: id, Status: store.StatusFailed, Error: NotFoundMessage}
}

// PublicError drops the stack trace from a recorded error message.
func PublicError(msg string) string {
	if i := strings.Index(msg, "\n\n"); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// Status returns the view of run id. An unknown id is not an error: it yields
// a failed view with error "not found".
func Status(ctx context.Context, st store.Store, id string) (View, error) {
	rec, err := st.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundView(id), nil
	}
	if err != nil {
		return View{}, err
	}
	return ViewOf(rec), nil
}

// Result is Status plus the article when the run finished.
func Result(ctx context.Context, st store.Store, id string) (ResultView, error) {
	rec, err := st.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ResultView{View: NotFoundView(id)}, nil
	}
	if err != nil {
		return ResultView{}, err
	}
	out := ResultView{View: ViewOf(rec)}
	if rec.Status == store.StatusFinished {
		out.Article = rec.Article
	}
	return out, nil
}

// Event kinds emitted by Stream.
const (
	EventPing   = "ping"
	EventUpdate = "update"
)

// Event is one item of a status stream.
type Event struct {
	Kind string
	View View
}

// DefaultInterval is the polling period for stores that cannot push changes.
const DefaultInterval = time.Second

// Notifier streams status changes of runs.
type Notifier struct {
	Store    store.Store
	Interval time.Duration
	Logger   *log.Logger
}

// Stream emits a ping, then an update for every observable change of run id.
// The channel is closed after the terminal update or once ctx is done; the
// producer goroutine exits in both cases.
func (n *Notifier) Stream(ctx context.Context, id string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(Event{Kind: EventPing}) {
			return
		}
		if w, ok := n.Store.(store.Watcher); ok {
			n.watch(ctx, w, id, send)
			return
		}
		n.poll(ctx, id, send)
	}()
	return out
}

func (n *Notifier) watch(ctx context.Context, w store.Watcher, id string, send func(Event) bool) {
	changes, err := w.Watch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		send(Event{Kind: EventUpdate, View: NotFoundView(id)})
		return
	}
	if err != nil {
		n.logger().Printf("watch run %s: %v, falling back to polling", id, err)
		n.poll(ctx, id, send)
		return
	}
	var last View
	for rec := range changes {
		view := ViewOf(rec)
		if view == last {
			continue
		}
		last = view
		if !send(Event{Kind: EventUpdate, View: view}) {
			return
		}
		if view.Status.Terminal() {
			return
		}
	}
}

func (n *Notifier) poll(ctx context.Context, id string, send func(Event) bool) {
	interval := n.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last View
	for {
		rec, err := n.Store.Get(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			send(Event{Kind: EventUpdate, View: NotFoundView(id)})
			return
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			n.logger().Printf("poll run %s: %v", id, err)
		default:
			view := ViewOf(rec)
			if view != last {
				last = view
				if !send(Event{Kind: EventUpdate, View: view}) {
					return
				}
			}
			if view.Status.Terminal() {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Notifier) logger() *log.Logger {
	if n.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return n.Logger
}
