package services

import (
	"encoding/json"
	"time"

	"github.com/blameazu/minesweeper/internal/board"
	"github.com/blameazu/minesweeper/internal/models"
)

// MatchSessionView is the envelope returned by create/join and the active
// session lookup: everything a client needs to (re)enter its seat.
type MatchSessionView struct {
	MatchID       uint               `json:"match_id"`
	PlayerID      uint               `json:"player_id"`
	PlayerToken   string             `json:"player_token"`
	Board         board.Descriptor   `json:"board"`
	Status        models.MatchStatus `json:"status"`
	HostID        uint               `json:"host_id"`
	CountdownSecs int                `json:"countdown_secs"`
}

type StartView struct {
	Status        models.MatchStatus `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	CountdownSecs int                `json:"countdown_secs"`
}

type FinishView struct {
	Status models.MatchStatus  `json:"status"`
	Result models.PlayerResult `json:"result"`
	Rank   *int                `json:"rank,omitempty"`
}

type PlayerStateView struct {
	ID         uint                `json:"id"`
	UserID     uint                `json:"user_id"`
	Name       string              `json:"name"`
	Ready      bool                `json:"ready"`
	Result     models.PlayerResult `json:"result"`
	DurationMs *int64              `json:"duration_ms"`
	StepsCount int                 `json:"steps_count"`
	FinishedAt *time.Time          `json:"finished_at"`
	Rank       *int                `json:"rank"`
	Progress   json.RawMessage     `json:"progress,omitempty"`
}

type MatchStateView struct {
	ID            uint               `json:"id"`
	Status        models.MatchStatus `json:"status"`
	Board         board.Descriptor   `json:"board"`
	HostID        uint               `json:"host_id"`
	CountdownSecs int                `json:"countdown_secs"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at"`
	EndedAt       *time.Time         `json:"ended_at"`
	Players       []PlayerStateView  `json:"players"`
}

type StepView struct {
	Seq        int               `json:"seq"`
	PlayerID   uint              `json:"player_id"`
	PlayerName string            `json:"player_name"`
	Action     models.StepAction `json:"action"`
	X          int               `json:"x"`
	Y          int               `json:"y"`
	ElapsedMs  *int64            `json:"elapsed_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

type RecentMatchPlayerView struct {
	Name   string              `json:"name"`
	Result models.PlayerResult `json:"result"`
	Rank   *int                `json:"rank"`
}

type RecentMatchView struct {
	ID         uint                    `json:"id"`
	Status     models.MatchStatus      `json:"status"`
	Difficulty string                  `json:"difficulty"`
	CreatedAt  time.Time               `json:"created_at"`
	EndedAt    *time.Time              `json:"ended_at"`
	Players    []RecentMatchPlayerView `json:"players"`
}

type ActiveSessionView struct {
	Active        bool                `json:"active"`
	MatchID       *uint               `json:"match_id,omitempty"`
	PlayerID      *uint               `json:"player_id,omitempty"`
	PlayerToken   string              `json:"player_token,omitempty"`
	Board         *board.Descriptor   `json:"board,omitempty"`
	Status        *models.MatchStatus `json:"status,omitempty"`
	HostID        *uint               `json:"host_id,omitempty"`
	CountdownSecs *int                `json:"countdown_secs,omitempty"`
}

type MatchHistoryItemView struct {
	MatchID    uint                `json:"match_id"`
	Status     models.MatchStatus  `json:"status"`
	Difficulty string              `json:"difficulty"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Mines      int                 `json:"mines"`
	CreatedAt  time.Time           `json:"created_at"`
	EndedAt    *time.Time          `json:"ended_at"`
	Result     models.PlayerResult `json:"result"`
	DurationMs *int64              `json:"duration_ms"`
	Rank       *int                `json:"rank"`
}

// boardOf rebuilds the agreed board tuple from the stored match fields.
func boardOf(m *models.Match) board.Descriptor {
	return board.Descriptor{
		Width:      m.Width,
		Height:     m.Height,
		Mines:      m.Mines,
		Seed:       m.Seed,
		Difficulty: board.Difficulty(m.Difficulty),
		SafeStart:  board.Cell{X: m.SafeX, Y: m.SafeY},
	}
}
