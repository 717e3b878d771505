package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/remediation"
	"adwatch-backend/internal/scheduler"
	"adwatch-backend/internal/storage"
	"adwatch-backend/pkg/log"
)

type Runner interface {
	RunOnce(ctx context.Context) (detection.AlertBatch, scheduler.RunInfo, error)
	ListJobs() []scheduler.JobInfo
	Runs() []scheduler.RunInfo
}

type Handler struct {
	Store      storage.AlertStore
	Status     *noise.StatusManager
	Runner     Runner
	Remediator scheduler.Remediator
	RemedyOpts remediation.Options
	Gatherer   prometheus.Gatherer
	Logger     log.Logger
	Timeout    time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requestLogger)
		r.Get("/healthz", h.handleHealth)
		if h.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
		}
		r.Get("/jobs", h.handleJobs)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.handleRunsList)
			r.Post("/", h.handleRunsCreate)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.handleAlertsList)
			r.Get("/{id}", h.handleAlertGet)
			r.Post("/{id}/ack", h.handleAlertAck)
			r.Post("/{id}/unack", h.handleAlertUnack)
			r.Post("/{id}/snooze", h.handleAlertSnooze)
			r.Post("/{id}/close", h.handleAlertClose)
			r.Post("/{id}/remediate", h.handleAlertRemediate)
		})
	})
}

// requestLogger tags every log line written while serving a request,
// including detection runs it starts, with the request id.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id == "" {
			id = uuid.NewString()
		}
		ctx := log.WithContext(r.Context(), h.logger().With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.Timeout)
}

func (h *Handler) logger() log.Logger {
	if h.Logger == nil {
		return log.NewNop()
	}
	return h.Logger
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.Runner.ListJobs()})
}

func (h *Handler) handleRunsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.Runner.Runs()})
}

func (h *Handler) handleRunsCreate(w http.ResponseWriter, r *http.Request) {
	batch, info, err := h.Runner.RunOnce(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": info, "batch": batch})
}

func (h *Handler) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	filter := storage.StateFilter{Status: storage.Status(r.URL.Query().Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		h.fail(w, r, badRequest("invalid status %q", filter.Status))
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(w, r, badRequest("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	ctx, cancel := h.context(r)
	defer cancel()
	states, err := h.Store.ListStates(ctx, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": states})
}

func (h *Handler) handleAlertGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := h.context(r)
	defer cancel()
	state, err := h.Store.GetState(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := map[string]any{"state": state}
	if alert, err := h.latestAlert(ctx, id); err == nil {
		resp["alert"] = alert
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Note  string     `json:"note"`
	Until *time.Time `json:"until,omitempty"`
}

func (h *Handler) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, func(ctx context.Context, id string, req statusRequest) (storage.AlertState, error) {
		return h.Status.Acknowledge(ctx, id, req.Note)
	})
}

func (h *Handler) handleAlertUnack(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, func(ctx context.Context, id string, req statusRequest) (storage.AlertState, error) {
		return h.Status.Unacknowledge(ctx, id, req.Note)
	})
}

func (h *Handler) handleAlertSnooze(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, func(ctx context.Context, id string, req statusRequest) (storage.AlertState, error) {
		if req.Until == nil {
			return storage.AlertState{}, errUntilRequired
		}
		return h.Status.Snooze(ctx, id, *req.Until, req.Note)
	})
}

func (h *Handler) handleAlertClose(w http.ResponseWriter, r *http.Request) {
	h.applyStatus(w, r, func(ctx context.Context, id string, req statusRequest) (storage.AlertState, error) {
		return h.Status.Close(ctx, id, req.Note)
	})
}

var errUntilRequired = errors.New("until is required")

func (h *Handler) applyStatus(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, statusRequest) (storage.AlertState, error)) {
	id := chi.URLParam(r, "id")
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	state, err := apply(ctx, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger().Infof(ctx, "alert %s moved to %s", id, state.Status)
	writeJSON(w, http.StatusOK, state)
}

type remediateRequest struct {
	DryRun             *bool `json:"dry_run,omitempty"`
	AllowBidChanges    *bool `json:"allow_bid_changes,omitempty"`
	AllowBudgetChanges *bool `json:"allow_budget_changes,omitempty"`
	AllowPauses        *bool `json:"allow_pauses,omitempty"`
}

func (req remediateRequest) options(defaults remediation.Options) remediation.Options {
	opts := defaults
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	if req.AllowBidChanges != nil {
		opts.AllowBidChanges = *req.AllowBidChanges
	}
	if req.AllowBudgetChanges != nil {
		opts.AllowBudgetChanges = *req.AllowBudgetChanges
	}
	if req.AllowPauses != nil {
		opts.AllowPauses = *req.AllowPauses
	}
	return opts
}

func (h *Handler) handleAlertRemediate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req remediateRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	alert, err := h.latestAlert(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Remediator.Remediate(ctx, alert, req.options(h.RemedyOpts)))
}

func (h *Handler) latestAlert(ctx context.Context, id string) (detection.Alert, error) {
	entry, err := h.Store.LatestAlert(ctx, id)
	if err != nil {
		return detection.Alert{}, err
	}
	var alert detection.Alert
	if err := json.Unmarshal(entry.Payload, &alert); err != nil {
		return detection.Alert{}, err
	}
	return alert, nil
}

// fail maps err onto a typed error body. Unexpected errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var e apiError
	switch {
	case errors.As(err, &e):
	case errors.Is(err, storage.ErrNotFound):
		e = apiError{Status: http.StatusNotFound, Code: codeNotFound, Message: "alert not found", AlertID: chi.URLParam(r, "id")}
	case errors.Is(err, errUntilRequired):
		e = badRequest("%v", err)
	case errors.Is(err, noise.ErrInvalidTransition):
		e = apiError{Status: http.StatusConflict, Code: codeInvalidTransition, Message: err.Error(), AlertID: chi.URLParam(r, "id")}
	case errors.Is(err, scheduler.ErrBusy):
		e = apiError{Status: http.StatusConflict, Code: codeRunInProgress, Message: err.Error()}
	default:
		e = internalError(err)
		h.logger().Errorf(r.Context(), "%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, e.Status, errorBody{Error: e})
}
