// internal/battle/handler.go
package battle

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"quiz-battle/internal/apperr"
	"quiz-battle/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type answerRequest struct {
	QuestionIndex *int   `json:"questionIndex"`
	AnswerIndex   *int   `json:"answerIndex"`
	APIKey        string `json:"apiKey"`
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.New(apperr.InvalidArgument, "Invalid request."))
		return
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = r.Header.Get(auth.APIKeyHeader)
	}

	result, err := h.service.SubmitAnswer(r.Context(), SubmitRequest{
		CallerID:      auth.UserIDFromContext(r.Context()),
		APIKey:        apiKey,
		RoomID:        mux.Vars(r)["roomId"],
		QuestionIndex: req.QuestionIndex,
		AnswerIndex:   req.AnswerIndex,
	})
	if err != nil {
		apperr.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) RecentMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.RecentMatches(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}

func (h *Handler) MyMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.MyMatches(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	scores, err := h.service.Leaderboard(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scores)
}
