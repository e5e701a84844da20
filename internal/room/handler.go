// internal/room/handler.go
package room

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/auth"
	"quiz-battle/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type topicRequest struct {
	Topic string `json:"topic"`
}

type retryRequest struct {
	RetryCount *int `json:"retryCount"`
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.InvalidArgument, "Invalid request."))
		return
	}

	roomID, err := h.service.CreateRoom(r.Context(), auth.UserIDFromContext(r.Context()), req.Topic)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	respond(w, http.StatusCreated, map[string]string{"roomId": roomID})
}

func (h *Handler) ListLobby(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.ListLobby(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}

	dtos := make([]models.RoomDTO, len(rooms))
	for i := range rooms {
		dtos[i] = rooms[i].ToDTO()
	}
	respond(w, http.StatusOK, dtos)
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusOK, room.ToDTO())
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.InvalidArgument, "Invalid request."))
		return
	}

	roomID := mux.Vars(r)["roomId"]
	if err := h.service.JoinRoom(r.Context(), roomID, auth.UserIDFromContext(r.Context()), req.Topic); err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(models.StatusGenerating)})
}

func (h *Handler) JoinAI(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := h.service.JoinAI(r.Context(), roomID, auth.UserIDFromContext(r.Context())); err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": string(models.StatusGenerating)})
}

func (h *Handler) StartBattle(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	room, err := h.service.StartBattle(r.Context(), roomID, auth.UserIDFromContext(r.Context()))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusOK, room.ToDTO())
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.Write(w, apperr.New(apperr.InvalidArgument, "Invalid request."))
			return
		}
	}

	roomID := mux.Vars(r)["roomId"]
	if err := h.service.RetryGenerate(r.Context(), roomID, req.RetryCount); err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"status": string(models.StatusGenerating)})
}

func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := h.service.DeleteRoom(r.Context(), roomID, auth.UserIDFromContext(r.Context())); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BattleLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.BattleLog(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		apperr.Write(w, err)
		return
	}
	respond(w, http.StatusOK, entries)
}

func respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
