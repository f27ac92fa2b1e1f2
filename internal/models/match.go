package models

import (
	"time"
)

type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFinished MatchStatus = "finished"
)

type PlayerResult string

const (
	PlayerResultNone    PlayerResult = "none"
	PlayerResultWin     PlayerResult = "win"
	PlayerResultLose    PlayerResult = "lose"
	PlayerResultDraw    PlayerResult = "draw"
	PlayerResultForfeit PlayerResult = "forfeit"
)

type StepAction string

const (
	StepActionReveal StepAction = "reveal"
	StepActionFlag   StepAction = "flag"
	StepActionChord  StepAction = "chord"
)

// Match is a shared game session with a fixed board tuple and 1+ seats.
// Once finished, its fields are immutable.
type Match struct {
	ID             uint        `json:"id" gorm:"primaryKey"`
	Status         MatchStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Width          int         `json:"width" gorm:"not null"`
	Height         int         `json:"height" gorm:"not null"`
	Mines          int         `json:"mines" gorm:"not null"`
	Seed           string      `json:"seed" gorm:"not null;size:64"`
	Difficulty     string      `json:"difficulty" gorm:"size:20;index"`
	SafeX          int         `json:"-" gorm:"not null"`
	SafeY          int         `json:"-" gorm:"not null"`
	HostID         uint        `json:"host_id" gorm:"not null"`
	CountdownSecs  int         `json:"countdown_secs" gorm:"not null;default:300"`
	CreatedAt      time.Time   `json:"created_at" gorm:"autoCreateTime"`
	StartedAt      *time.Time  `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at"`
	LastActivityAt time.Time   `json:"-" gorm:"not null"`

	Players []MatchPlayer `json:"players,omitempty" gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
	Steps   []MatchStep   `json:"-" gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
}

func (m *Match) IsPending() bool {
	return m.Status == MatchStatusPending
}

func (m *Match) IsActive() bool {
	return m.Status == MatchStatusActive
}

func (m *Match) IsFinished() bool {
	return m.Status == MatchStatusFinished
}

// Started reports whether the pre-start window has elapsed.
func (m *Match) Started(now time.Time) bool {
	return m.StartedAt != nil && !now.Before(*m.StartedAt)
}

// IdleDeadline is the instant after which an active match with no activity is
// force-ended.
func (m *Match) IdleDeadline(idle time.Duration) time.Time {
	return m.LastActivityAt.Add(idle)
}

// CountdownDeadline is the instant the per-match countdown expires. The zero
// time is returned while the match has not started.
func (m *Match) CountdownDeadline() time.Time {
	if m.StartedAt == nil {
		return time.Time{}
	}
	return m.StartedAt.Add(time.Duration(m.CountdownSecs) * time.Second)
}

// MatchPlayer is one seat in a match, authorized by its per-seat token.
type MatchPlayer struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	MatchID    uint         `json:"match_id" gorm:"not null;index;uniqueIndex:idx_match_players_seat,priority:1"`
	UserID     uint         `json:"user_id" gorm:"not null;index;uniqueIndex:idx_match_players_seat,priority:2"`
	Name       string       `json:"name" gorm:"not null;size:50"`
	Token      string       `json:"-" gorm:"not null;size:64;index"`
	Ready      bool         `json:"ready" gorm:"not null;default:false"`
	Result     PlayerResult `json:"result" gorm:"type:varchar(10);not null;default:'none';index"`
	DurationMs *int64       `json:"duration_ms"`
	StepsCount int          `json:"steps_count" gorm:"not null;default:0"`
	FinishedAt *time.Time   `json:"finished_at"`
	Rank       *int         `json:"rank"`
	Progress   *string      `json:"-" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

func (p *MatchPlayer) Finished() bool {
	return p.FinishedAt != nil
}

// MatchStep is one append-only log entry in the match's total order. seq is
// strictly increasing per match across all players.
type MatchStep struct {
	ID        uint       `json:"-" gorm:"primaryKey"`
	MatchID   uint       `json:"match_id" gorm:"not null;index;uniqueIndex:idx_match_steps_seq,priority:1"`
	PlayerID  uint       `json:"player_id" gorm:"not null;index"`
	Seq       int        `json:"seq" gorm:"not null;uniqueIndex:idx_match_steps_seq,priority:2"`
	Action    StepAction `json:"action" gorm:"type:varchar(16);not null"`
	X         int        `json:"x" gorm:"not null"`
	Y         int        `json:"y" gorm:"not null"`
	ElapsedMs *int64     `json:"elapsed_ms"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

type ReadyRequest struct {
	PlayerToken string `json:"player_token" validate:"required"`
	Ready       bool   `json:"ready"`
}

type StartRequest struct {
	PlayerToken string `json:"player_token" validate:"required"`
}

type StepRequest struct {
	PlayerToken string `json:"player_token" validate:"required"`
	Action      string `json:"action" validate:"required,oneof=reveal flag chord"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	ElapsedMs   *int64 `json:"elapsed_ms"`
}

type FinishRequest struct {
	PlayerToken string          `json:"player_token" validate:"required"`
	Outcome     string          `json:"outcome" validate:"required,oneof=win lose draw forfeit"`
	DurationMs  *int64          `json:"duration_ms"`
	StepsCount  *int            `json:"steps_count"`
	Progress    *ProgressReport `json:"progress"`
}

type LeaveRequest struct {
	PlayerToken string `json:"player_token" validate:"required"`
}
