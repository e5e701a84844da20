// internal/generation/handler.go
package generation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/room"
	"quiz-battle/pkg/ai"
	"quiz-battle/pkg/logger"
)

const defaultPingPrompt = "Hello Gemini!"

// Handler serves the key-gated internal endpoints.
type Handler struct {
	pipeline *Pipeline
	store    room.Store
}

func NewHandler(pipeline *Pipeline, store room.Store) *Handler {
	return &Handler{pipeline: pipeline, store: store}
}

// Generate re-triggers generation for a room by hand.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if _, err := h.store.Get(r.Context(), roomID); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			apperr.Write(w, apperr.New(apperr.NotFound, "Room not found."))
			return
		}
		apperr.Write(w, apperr.Wrap(err, apperr.Internal, "read room"))
		return
	}

	h.pipeline.Enqueue(roomID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"roomId": roomID, "status": "queued"})
}

// Ping forwards a prompt to the model and returns its answer.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		prompt = defaultPingPrompt
	}

	text, err := h.pipeline.Ping(r.Context(), prompt)
	if err != nil {
		logger.Error("ai ping failed", zap.Error(err))
		if errors.Is(err, ai.ErrNotConfigured) {
			apperr.Write(w, apperr.Configuration("Missing GEMINI_API_KEY in environment."))
			return
		}
		apperr.Write(w, apperr.Wrap(err, apperr.Internal, "ai request"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}
