// Package runs executes article generation runs in the background and reports
// their progress.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/stage"
	"github.com/mohammad-safakhou/wikiwriter/internal/store"
)

// Step labels written to the run record.
const (
	StepKickoff       = "kickoff"
	StepCollectOutput = "collect_output"
	StepDone          = "done"
)

// DefaultTimeout bounds one generation.
const DefaultTimeout = 15 * time.Minute

var runsTracer = otel.Tracer("wikiwriter/internal/runs")

// Job is one queued generation.
type Job struct {
	RunID    string
	Topic    string
	Language string
}

// Options tune the executor.
type Options struct {
	MinWords       int
	AllowedDomains []string
	Timeout        time.Duration
	Tolerant       bool
	ArtifactsDir   string
}

// PanicError is a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Executor runs one job to a terminal state. It is the only writer of the run
// records it handles.
type Executor struct {
	store     store.Store
	gen       stage.Generator
	validator *article.Validator
	collector stage.Collector
	opts      Options
	metrics   *Metrics
	logger    *log.Logger
	now       func() time.Time
}

// NewExecutor wires an executor. A nil metrics or logger disables them.
func NewExecutor(st store.Store, gen stage.Generator, opts Options, metrics *Metrics, logger *log.Logger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	validator := article.NewValidator(opts.AllowedDomains, opts.MinWords)
	return &Executor{
		store:     st,
		gen:       gen,
		validator: validator,
		collector: stage.Collector{Validator: validator, Tolerant: opts.Tolerant},
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute drives job from queued to finished or failed. It never returns an
// error and never panics: every failure is written to the run record.
func (e *Executor) Execute(ctx context.Context, job Job) {
	ctx, span := runsTracer.Start(ctx, "runs.Execute", trace.WithAttributes(
		attribute.String("run_id", job.RunID),
		attribute.String("language", job.Language),
	))
	defer span.End()

	started := e.now()
	rec, err := e.run(ctx, job)
	e.metrics.Duration.Observe(e.now().Sub(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, job, err)
		return
	}
	e.metrics.Finished.WithLabelValues(string(store.StatusFinished)).Inc()
	e.logger.Printf("run %s finished: %q (%d words)", job.RunID, rec.Title, rec.WordCount)
	e.writeArtifacts(job.RunID, rec)
}

func (e *Executor) run(ctx context.Context, job Job) (rec *article.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if _, err := e.store.Update(ctx, job.RunID, func(r *store.Record) error {
		r.Status = store.StatusRunning
		r.Step = StepKickoff
		return nil
	}); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	result, err := e.gen.Generate(genCtx, stage.Inputs{Topic: job.Topic, Language: job.Language})
	if err != nil {
		var genErr *stage.GenerationError
		if !errors.As(err, &genErr) {
			err = &stage.GenerationError{Err: err}
		}
		return nil, err
	}

	if err := e.setStep(ctx, job.RunID, StepCollectOutput); err != nil {
		return nil, err
	}
	draft, err := e.collector.Draft(result)
	if err != nil {
		return nil, err
	}
	final, err := e.validator.PromoteToFinal(draft)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.Update(ctx, job.RunID, func(r *store.Record) error {
		r.Status = store.StatusFinished
		r.Step = StepDone
		r.Article = final
		return nil
	}); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}
	return final, nil
}

func (e *Executor) setStep(ctx context.Context, id, step string) error {
	_, err := e.store.Update(ctx, id, func(r *store.Record) error {
		r.Step = step
		return nil
	})
	if err != nil {
		return fmt.Errorf("set step %s: %w", step, err)
	}
	return nil
}

// fail records err on the run. The write survives cancellation of ctx so a
// shutdown still leaves a terminal record behind.
func (e *Executor) fail(ctx context.Context, job Job, cause error) {
	kind := FailureKind(cause)
	e.metrics.Failures.WithLabelValues(kind).Inc()
	e.metrics.Finished.WithLabelValues(string(store.StatusFailed)).Inc()
	e.logger.Printf("run %s failed (%s): %v", job.RunID, kind, cause)

	message := FailureMessage(cause)
	_, err := e.store.Update(context.WithoutCancel(ctx), job.RunID, func(r *store.Record) error {
		r.Status = store.StatusFailed
		r.Article = nil
		r.Error = message
		return nil
	})
	if err != nil {
		e.logger.Printf("run %s: could not record failure: %v", job.RunID, err)
	}
}

// FailureMessage renders err with a stack trace separated by a blank line.
// Recovered panics carry the stack of the panicking goroutine.
func FailureMessage(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return err.Error() + "\n\n" + string(panicErr.Stack)
	}
	return err.Error() + "\n\n" + string(debug.Stack())
}

func (e *Executor) writeArtifacts(runID string, rec *article.Record) {
	if e.opts.ArtifactsDir == "" || rec == nil {
		return
	}
	if err := WriteArtifacts(filepath.Join(e.opts.ArtifactsDir, runID), rec); err != nil {
		e.logger.Printf("run %s: write artifacts: %v", runID, err)
	}
}

// WriteArtifacts writes report.md and report.json for rec into dir.
func WriteArtifacts(dir string, rec *article.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(article.RenderMarkdown(rec)), 0o644); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "report.json"), data, 0o644)
}
