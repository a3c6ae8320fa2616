package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"docuchat/backend/internal/answer"
	"docuchat/backend/internal/middleware"
	"docuchat/backend/internal/pipeline"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Ask answers a question. With "stream": true the response is server-sent
// events, one per stream event; otherwise the events are aggregated into a
// single JSON body.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Stream   bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.service.Ask(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if req.Stream {
		h.streamSSE(w, r, events)
		return
	}
	h.writeAggregated(r.Context(), w, events)
}

func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, events <-chan Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			slog.Error("failed to marshal stream event", "error", err)
			continue
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) writeAggregated(ctx context.Context, w http.ResponseWriter, events <-chan Event) {
	var sb strings.Builder
	resp := struct {
		Answer     string            `json:"answer"`
		Confidence answer.Confidence `json:"confidence"`
		Citations  []answer.Citation `json:"citations"`
		Timings    *Timings          `json:"timings,omitempty"`
	}{Citations: []answer.Citation{}}

	for event := range events {
		switch event.Type {
		case EventContent:
			sb.WriteString(event.Content)
		case EventSources:
			resp.Confidence = event.Confidence
			if event.Citations != nil {
				resp.Citations = event.Citations
			}
		case EventDone:
			resp.Timings = event.Timings
		case EventError:
			h.writeError(ctx, w, "GENERATION_FAILED", event.Error, http.StatusBadGateway)
			return
		}
	}
	resp.Answer = sb.String()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
