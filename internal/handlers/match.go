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

type MatchHandler struct {
	matchService *services.MatchService
}

func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

type CreateMatchRequest struct {
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate expert"`
}

func (h *MatchHandler) Routes(authMiddleware *auth.AuthMiddleware) chi.Router {
	r := chi.NewRouter()

	// User-bound operations
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		r.Post("/", h.CreateMatch)
		r.Get("/active", h.ActiveSession)
		r.Get("/history", h.MatchHistory)
		r.Post("/{matchID}/join", h.JoinMatch)
	})

	// Seat-token operations and public reads
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.OptionalAuth)

		r.Get("/recent", h.RecentMatches)
		r.Get("/{matchID}/state", h.MatchState)
		r.Get("/{matchID}/steps", h.MatchSteps)
		r.Post("/{matchID}/ready", h.SetReady)
		r.Post("/{matchID}/start", h.StartMatch)
		r.Post("/{matchID}/step", h.SubmitStep)
		r.Post("/{matchID}/finish", h.FinishPlayer)
		r.Post("/{matchID}/leave", h.Leave)
		r.Delete("/{matchID}", h.Leave)
	})

	return r
}

func parseMatchID(r *http.Request) (uint, bool) {
	idStr := chi.URLParam(r, "matchID")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	handle, _ := auth.GetHandleFromContext(r.Context())

	var req CreateMatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := validation.Validate(&req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	view, err := h.matchService.CreateMatch(r.Context(), userID, handle, req.Difficulty)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, view)
}

func (h *MatchHandler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	handle, _ := auth.GetHandleFromContext(r.Context())

	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	view, err := h.matchService.JoinMatch(r.Context(), matchID, userID, handle)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, view)
}

func (h *MatchHandler) SetReady(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var req models.ReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.matchService.SetReady(r.Context(), matchID, req.PlayerToken, req.Ready); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MatchHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var req models.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.matchService.StartMatch(r.Context(), matchID, req.PlayerToken)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, view)
}

func (h *MatchHandler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var req models.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	seq, err := h.matchService.SubmitStep(r.Context(), matchID, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]int{"seq": seq})
}

func (h *MatchHandler) FinishPlayer(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var req models.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.matchService.FinishPlayer(r.Context(), matchID, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, view)
}

func (h *MatchHandler) Leave(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var req models.LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.matchService.Leave(r.Context(), matchID, req.PlayerToken); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MatchHandler) MatchState(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	var viewer *uint
	if userID, ok := auth.GetUserIDFromContext(r.Context()); ok {
		viewer = &userID
	}

	view, err := h.matchService.MatchState(r.Context(), matchID, viewer)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, view)
}

func (h *MatchHandler) MatchSteps(w http.ResponseWriter, r *http.Request) {
	matchID, ok := parseMatchID(r)
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid match ID")
		return
	}

	views, err := h.matchService.MatchSteps(r.Context(), matchID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, views)
}

func (h *MatchHandler) RecentMatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	views, err := h.matchService.RecentMatches(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, views)
}

func (h *MatchHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	view, err := h.matchService.ActiveSession(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, view)
}

func (h *MatchHandler) MatchHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	views, err := h.matchService.MatchHistory(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, views)
}
