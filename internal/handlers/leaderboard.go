package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/blameazu/minesweeper/internal/auth"
	"github.com/blameazu/minesweeper/internal/models"
	"github.com/blameazu/minesweeper/internal/services"
	"github.com/blameazu/minesweeper/internal/validation"
	"github.com/go-chi/chi/v5"
)

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
	}
}

func (h *LeaderboardHandler) Routes(authMiddleware *auth.AuthMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Post("/", h.Submit)
	})

	r.Get("/", h.Query)
	r.Get("/{entryID}/replay", h.Replay)

	return r
}

func (h *LeaderboardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	handle, _ := auth.GetHandleFromContext(r.Context())

	var req models.LeaderboardSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.leaderboardService.Submit(r.Context(), userID, handle, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LeaderboardHandler) Query(w http.ResponseWriter, r *http.Request) {
	difficulty := r.URL.Query().Get("difficulty")
	if difficulty == "" {
		writeErrorResponse(w, http.StatusBadRequest, "difficulty is required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	entries, err := h.leaderboardService.Query(r.Context(), difficulty, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, entries)
}

func (h *LeaderboardHandler) Replay(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "entryID")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}

	resp, err := h.leaderboardService.Replay(r.Context(), uint(id))
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
