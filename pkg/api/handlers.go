package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shiftflow/pushkit/pkg/binder"
	"github.com/shiftflow/pushkit/pkg/delivery"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/notifications"
)

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var in devices.RegisterInput
	if err := binder.JSON(r, &in); err != nil {
		h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tok, err := h.registry.RegisterOrUpdate(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, tok)
}

func (h *Handler) deactivateDevice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.registry.Deactivate(r.Context(), token, "api_request"); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

type createNotificationRequest struct {
	Type         string            `json:"type"`
	Priority     string            `json:"priority"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	SenderID     string            `json:"sender_id"`
	RecipientIDs []string          `json:"recipient_ids"`
	Data         map[string]string `json:"data,omitempty"`
	RequiresAck  bool              `json:"requires_ack"`
	Language     string            `json:"language,omitempty"`
}

type createNotificationResponse struct {
	Created       int                           `json:"created"`
	Skipped       int                           `json:"skipped"`
	Attempted     int                           `json:"attempted"`
	Accepted      int                           `json:"accepted"`
	Failed        int                           `json:"failed"`
	Blocked       int                           `json:"blocked"`
	Notifications []*notifications.Notification `json:"notifications"`
}

func (h *Handler) createNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := binder.JSON(r, &req); err != nil {
		h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	priority, err := notifications.ParsePriority(req.Priority)
	if err != nil {
		h.respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.engine.CreateAndDeliver(r.Context(), delivery.Message{
		Type:         notifications.Type(req.Type),
		Priority:     priority,
		Title:        req.Title,
		Body:         req.Body,
		SenderID:     req.SenderID,
		RecipientIDs: req.RecipientIDs,
		Data:         req.Data,
		RequiresAck:  req.RequiresAck,
		Language:     req.Language,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respond(w, http.StatusCreated, createNotificationResponse{
		Created:       res.Created,
		Skipped:       res.Skipped,
		Attempted:     res.Attempted,
		Accepted:      res.Accepted,
		Failed:        res.Failed,
		Blocked:       res.Blocked,
		Notifications: res.Notifications,
	})
}

func (h *Handler) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, n)
}

func (h *Handler) confirmDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.ConfirmDelivered(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) getHealth(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.GetHealth(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.respond(w, status, report)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respond(w, http.StatusBadRequest, errorResponse{Error: "hours must be a positive integer"})
			return
		}
		hours = parsed
	}

	stats, err := h.monitor.GetPerformanceStats(r.Context(), hours)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, stats)
}

func (h *Handler) workerHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respond(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.reader.HistoryForWorker(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

func (h *Handler) resetBreaker(w http.ResponseWriter, r *http.Request) {
	dependency := chi.URLParam(r, "dependency")
	h.engine.Executor().Breakers().Reset(dependency)
	h.log.Info("circuit breaker reset", logger.Dependency(dependency))
	h.respond(w, http.StatusNoContent, nil)
}
