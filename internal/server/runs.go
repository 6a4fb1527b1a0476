package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/runs"
	"github.com/mohammad-safakhou/wikiwriter/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const minTopicChars = 3

var runsTracer = otel.Tracer("wikiwriter/internal/server/runs")

// Submitter accepts new runs.
type Submitter interface {
	Submit(ctx context.Context, topic, language string) (string, error)
}

// Streamer produces status events for a run.
type Streamer interface {
	Stream(ctx context.Context, id string) <-chan runs.Event
}

type RunsHandler struct {
	store     store.Store
	submitter Submitter
	streamer  Streamer
	logger    *log.Logger
}

func NewRunsHandler(st store.Store, submitter Submitter, streamer Streamer) *RunsHandler {
	return &RunsHandler{
		store:     st,
		submitter: submitter,
		streamer:  streamer,
		logger:    log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:run_id", h.status)
	g.GET("/:run_id/result", h.result)
	g.GET("/:run_id/stream", h.stream)
	g.GET("/:run_id/markdown", h.markdown)
}

// create validates the request and queues a run
//
//	@Summary	Submit a run
//	@Tags		runs
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateRunRequest	true	"Topic and language"
//	@Success	202		{object}	RunCreatedResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/runs [post]
func (h *RunsHandler) create(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.create")
	defer span.End()

	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	topic, lang, err := normalizeRunRequest(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	span.SetAttributes(attribute.String("language", lang))

	id, err := h.submitter.Submit(ctx, topic, lang)
	if id != "" {
		span.SetAttributes(attribute.String("run_id", id))
	}
	switch {
	case errors.Is(err, runs.ErrQueueFull), errors.Is(err, runs.ErrStopped):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Printf("run %s rejected: %v", id, err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, RunCreatedResponse{RunID: id})
}

func normalizeRunRequest(req CreateRunRequest) (string, string, error) {
	topic := strings.TrimSpace(req.Topic)
	if utf8.RuneCountInString(topic) < minTopicChars {
		return "", "", errors.New("topic must have at least 3 characters")
	}
	lang, err := runs.NormalizeLanguage(req.Language)
	if err != nil {
		return "", "", err
	}
	return topic, lang, nil
}

// status returns the current state of a run. Unknown ids are reported as failed.
//
//	@Summary	Run status
//	@Tags		runs
//	@Param		run_id	path	string	true	"Run ID"
//	@Produce	json
//	@Success	200	{object}	runs.View
//	@Router		/runs/{run_id} [get]
func (h *RunsHandler) status(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.status")
	defer span.End()
	id := c.Param("run_id")
	span.SetAttributes(attribute.String("run_id", id))

	view, err := runs.Status(ctx, h.store, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

// result returns the status plus the article once the run finished
//
//	@Summary	Run result
//	@Tags		runs
//	@Param		run_id	path	string	true	"Run ID"
//	@Produce	json
//	@Success	200	{object}	runs.ResultView
//	@Router		/runs/{run_id}/result [get]
func (h *RunsHandler) result(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.result")
	defer span.End()
	id := c.Param("run_id")
	span.SetAttributes(attribute.String("run_id", id))

	res, err := runs.Result(ctx, h.store, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// stream pushes run status changes via Server-Sent Events.
//
//	@Summary	Run status stream
//	@Tags		runs
//	@Param		run_id	path	string	true	"Run ID"
//	@Produce	text/event-stream
//	@Success	200	{string}	string
//	@Failure	503	{object}	HTTPError
//	@Router		/runs/{run_id}/stream [get]
func (h *RunsHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx, span := runsTracer.Start(req.Context(), "RunsHandler.stream")
	defer span.End()
	id := c.Param("run_id")
	span.SetAttributes(attribute.String("run_id", id))

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for ev := range h.streamer.Stream(ctx, id) {
		if err := writeEvent(resp, ev); err != nil {
			span.RecordError(err)
			h.logger.Printf("stream %s: %v", id, err)
			return nil
		}
		flusher.Flush()
	}
	return nil
}

func writeEvent(w io.Writer, ev runs.Event) error {
	if ev.Kind == runs.EventPing {
		_, err := io.WriteString(w, "event: ping\ndata: ok\n\n")
		return err
	}
	data, err := json.Marshal(ev.View)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "event: "+ev.Kind+"\ndata: "+string(data)+"\n\n")
	return err
}

// markdown renders the article of a finished run
//
//	@Summary	Run article as Markdown
//	@Tags		runs
//	@Param		run_id	path	string	true	"Run ID"
//	@Produce	text/markdown
//	@Success	200	{string}	string
//	@Failure	404	{object}	HTTPError
//	@Router		/runs/{run_id}/markdown [get]
func (h *RunsHandler) markdown(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.markdown")
	defer span.End()
	id := c.Param("run_id")
	span.SetAttributes(attribute.String("run_id", id))

	rec, err := h.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, runs.NotFoundMessage)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if rec.Status != store.StatusFinished || rec.Article == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run has no article yet")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(article.RenderMarkdown(rec.Article)))
}
