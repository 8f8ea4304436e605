package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/events"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/services"
)

// StreamHandler serves live run progress over SSE. The ledger is the source
// of truth: the stream opens with a snapshot, then relays bus events, and a
// periodic ledger recheck closes the stream even when events were dropped.
type StreamHandler struct {
	ledger     services.JobLedger
	subscriber events.Subscriber
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(ledger services.JobLedger, subscriber events.Subscriber, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{
		ledger:     ledger,
		subscriber: subscriber,
		heartbeat:  heartbeat,
		logger:     logger,
	}
}

// RegisterRoutes registers the stream route on the given mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs/{run_id}/stream", h.StreamRun)
}

// StreamRun handles GET /api/runs/{run_id}/stream requests.
func (h *StreamHandler) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathUUID(r, "run_id")
	if err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	jobs, err := h.ledger.ListJobsForRun(r.Context(), runID)
	if err != nil {
		status, code := errorStatus(err)
		if werr := ErrorResponse(w, status, code, "failed to load run"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}
	if len(jobs) == 0 {
		if werr := ErrorResponse(w, http.StatusNotFound, "not_found", "run not found"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if werr := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	h.writeEvent(w, flusher, "snapshot", map[string]any{"jobs": jobs})

	// An already-finished run never subscribes: snapshot, done, close.
	if allTerminal(jobs) {
		h.writeEvent(w, flusher, "done", map[string]any{"run_id": runID})
		return
	}

	sub, err := h.subscriber.Subscribe(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to subscribe to run channel",
			zap.String("run_id", runID.String()), zap.Error(err))
		h.writeEvent(w, flusher, "error", map[string]string{"message": "subscription failed"})
		return
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			h.logger.Warn("Failed to close run subscription", zap.Error(cerr))
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, open := <-sub.Events():
			if !open {
				return
			}
			h.writeEvent(w, flusher, "job", event)
			if event.Status.IsTerminal() && h.runFinished(r.Context(), runID) {
				h.writeEvent(w, flusher, "done", map[string]any{"run_id": runID})
				return
			}

		case <-ticker.C:
			// Keepalive plus a ledger recheck, so dropped events cannot leave
			// the client hanging on a finished run.
			if _, werr := fmt.Fprint(w, ": keepalive\n\n"); werr != nil {
				return
			}
			flusher.Flush()
			if h.runFinished(r.Context(), runID) {
				h.writeEvent(w, flusher, "done", map[string]any{"run_id": runID})
				return
			}
		}
	}
}

func (h *StreamHandler) runFinished(ctx context.Context, runID uuid.UUID) bool {
	jobs, err := h.ledger.ListJobsForRun(ctx, runID)
	if err != nil {
		h.logger.Warn("Failed to recheck run state",
			zap.String("run_id", runID.String()), zap.Error(err))
		return false
	}
	return allTerminal(jobs)
}

func (h *StreamHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal SSE payload", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	flusher.Flush()
}

func allTerminal(jobs []models.Job) bool {
	for i := range jobs {
		if !jobs[i].IsTerminal() {
			return false
		}
	}
	return true
}
