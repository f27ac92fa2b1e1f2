package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blameazu/minesweeper/internal/auth"
	"github.com/blameazu/minesweeper/internal/config"
	"github.com/blameazu/minesweeper/internal/database"
	"github.com/blameazu/minesweeper/internal/models"
	"github.com/blameazu/minesweeper/internal/services"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlerDBSeq int64

type testApp struct {
	router     chi.Router
	db         *database.DB
	jwtManager *auth.JWTManager
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:handlers%d?mode=memory&cache=shared", atomic.AddInt64(&handlerDBSeq, 1))
	db, err := database.NewWithDialector(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate())

	cfg := &config.Config{
		IdleMinutes:        10,
		PreStartDelaySecs:  0,
		CountdownSecs:      300,
		MaxPlayersPerMatch: 2,
		LeaderboardTopN:    10,
	}

	jwtManager := auth.NewJWTManager("test-secret", "minesweeper-test", time.Hour)
	authMiddleware := auth.NewAuthMiddleware(jwtManager)

	matchService := services.NewMatchService(db, nil, cfg)
	leaderboardService := services.NewLeaderboardService(db, nil, cfg)

	r := chi.NewRouter()
	r.Mount("/api/match", NewMatchHandler(matchService).Routes(authMiddleware))
	r.Mount("/api/leaderboard", NewLeaderboardHandler(leaderboardService).Routes(authMiddleware))

	return &testApp{router: r, db: db, jwtManager: jwtManager}
}

func (app *testApp) newUser(t *testing.T, handle string) (models.User, string) {
	t.Helper()
	user := models.User{Handle: handle, PasswordHash: "x"}
	require.NoError(t, app.db.Create(&user).Error)
	token, err := app.jwtManager.GenerateToken(user.ID, user.Handle)
	require.NoError(t, err)
	return user, token
}

func (app *testApp) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestMatchFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	_, tokenA := app.newUser(t, "alice")
	_, tokenB := app.newUser(t, "bob")

	// Create
	rec := app.do(t, http.MethodPost, "/api/match/", tokenA, map[string]string{"difficulty": "beginner"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		MatchID     uint   `json:"match_id"`
		PlayerToken string `json:"player_token"`
		Status      string `json:"status"`
		Board       struct {
			Width     int `json:"width"`
			SafeStart struct {
				X int `json:"x"`
				Y int `json:"y"`
			} `json:"safe_start"`
		} `json:"board"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 9, created.Board.Width)

	// The envelope also carries the camelCase alias
	var rawBoard struct {
		Board map[string]json.RawMessage `json:"board"`
	}
	decodeBody(t, rec, &rawBoard)
	assert.Contains(t, rawBoard.Board, "safeStart")

	base := fmt.Sprintf("/api/match/%d", created.MatchID)

	// Join
	rec = app.do(t, http.MethodPost, base+"/join", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var joined struct {
		PlayerToken string `json:"player_token"`
	}
	decodeBody(t, rec, &joined)

	// Ready, start
	rec = app.do(t, http.MethodPost, base+"/ready", "", map[string]interface{}{
		"player_token": joined.PlayerToken, "ready": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodPost, base+"/start", "", map[string]string{
		"player_token": created.PlayerToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Steps race for the shared sequence
	cx, cy := created.Board.SafeStart.X, created.Board.SafeStart.Y
	rec = app.do(t, http.MethodPost, base+"/step", "", map[string]interface{}{
		"player_token": created.PlayerToken, "action": "reveal", "x": cx, "y": cy,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var step struct {
		Seq int `json:"seq"`
	}
	decodeBody(t, rec, &step)
	assert.Equal(t, 1, step.Seq)

	rec = app.do(t, http.MethodPost, base+"/step", "", map[string]interface{}{
		"player_token": joined.PlayerToken, "action": "reveal", "x": cx, "y": cy,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &step)
	assert.Equal(t, 2, step.Seq)

	// Out-of-bounds step
	rec = app.do(t, http.MethodPost, base+"/step", "", map[string]interface{}{
		"player_token": created.PlayerToken, "action": "reveal", "x": 99, "y": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Finish both; bob claims a win without a snapshot evidencing it
	rec = app.do(t, http.MethodPost, base+"/finish", "", map[string]interface{}{
		"player_token": created.PlayerToken, "outcome": "lose", "duration_ms": 4500,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodPost, base+"/finish", "", map[string]interface{}{
		"player_token": joined.PlayerToken, "outcome": "win", "duration_ms": 5000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var finish struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	decodeBody(t, rec, &finish)
	assert.Equal(t, "finished", finish.Status)
	assert.Equal(t, "forfeit", finish.Result, "win without evidence is coerced")

	// State
	rec = app.do(t, http.MethodGet, base+"/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		Status  string `json:"status"`
		Players []struct {
			Name   string `json:"name"`
			Result string `json:"result"`
			Rank   *int   `json:"rank"`
		} `json:"players"`
	}
	decodeBody(t, rec, &state)
	assert.Equal(t, "finished", state.Status)
	require.Len(t, state.Players, 2)
	for _, p := range state.Players {
		require.NotNil(t, p.Rank)
		if p.Name == "alice" {
			assert.Equal(t, 1, *p.Rank)
		}
	}

	// Steps replay
	rec = app.do(t, http.MethodGet, base+"/steps", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []struct {
		Seq int `json:"seq"`
	}
	decodeBody(t, rec, &steps)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Seq)
	assert.Equal(t, 2, steps[1].Seq)
}

func TestMatchEndpoints_ErrorMapping(t *testing.T) {
	app := newTestApp(t)
	_, tokenA := app.newUser(t, "alice")

	// Unauthenticated create
	rec := app.do(t, http.MethodPost, "/api/match/", "", map[string]string{"difficulty": "beginner"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown match
	rec = app.do(t, http.MethodGet, "/api/match/4242/state", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Second create while busy
	rec = app.do(t, http.MethodPost, "/api/match/", tokenA, map[string]string{"difficulty": "beginner"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = app.do(t, http.MethodPost, "/api/match/", tokenA, map[string]string{"difficulty": "beginner"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "already_in_match", body.Kind)
}

func TestLeaderboardOverHTTP(t *testing.T) {
	app := newTestApp(t)
	_, tokenA := app.newUser(t, "alice")

	rec := app.do(t, http.MethodPost, "/api/leaderboard/", tokenA, map[string]interface{}{
		"difficulty": "beginner",
		"time_ms":    30000,
		"replay": map[string]interface{}{
			"board": map[string]interface{}{"width": 9, "height": 9, "mines": 10, "seed": "s"},
			"steps": []map[string]interface{}{{"action": "reveal", "x": 4, "y": 4}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var submitted struct {
		Entry struct {
			ID uint `json:"id"`
		} `json:"entry"`
		Improved bool `json:"improved"`
	}
	decodeBody(t, rec, &submitted)
	assert.True(t, submitted.Improved)

	// Unauthenticated submit is rejected
	rec = app.do(t, http.MethodPost, "/api/leaderboard/", "", map[string]interface{}{
		"difficulty": "beginner", "time_ms": 1000,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Query advertises the replay
	rec = app.do(t, http.MethodGet, "/api/leaderboard/?difficulty=beginner", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []struct {
		Handle    string `json:"handle"`
		TimeMs    int64  `json:"time_ms"`
		HasReplay bool   `json:"has_replay"`
	}
	decodeBody(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Handle)
	assert.True(t, entries[0].HasReplay)

	// Replay round-trips
	rec = app.do(t, http.MethodGet, fmt.Sprintf("/api/leaderboard/%d/replay", submitted.Entry.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var replay struct {
		Board json.RawMessage `json:"board"`
		Steps json.RawMessage `json:"steps"`
	}
	decodeBody(t, rec, &replay)
	assert.NotEmpty(t, replay.Board)
	assert.NotEmpty(t, replay.Steps)

	// Missing difficulty
	rec = app.do(t, http.MethodGet, "/api/leaderboard/", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
