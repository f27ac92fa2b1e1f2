package models

import (
	"encoding/json"
	"time"
)

// LeaderboardEntry is the best time per (user, difficulty). A strictly better
// time replaces the existing row.
type LeaderboardEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_leaderboard_best,priority:1"`
	User       User      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Handle     string    `json:"handle" gorm:"not null;size:50"`
	Difficulty string    `json:"difficulty" gorm:"not null;size:20;index;uniqueIndex:idx_leaderboard_best,priority:2"`
	TimeMs     int64     `json:"time_ms" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`

	// Populated by queries, not stored.
	HasReplay bool `json:"has_replay" gorm:"-"`
}

// LeaderboardReplay holds the board descriptor and ordered steps for entries
// within the top N of their difficulty. Replays outside the top N are
// dropped.
type LeaderboardReplay struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	EntryID   uint             `json:"entry_id" gorm:"not null;uniqueIndex"`
	Entry     LeaderboardEntry `json:"-" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	BoardJSON string           `json:"-" gorm:"type:text;not null"`
	StepsJSON string           `json:"-" gorm:"type:text;not null"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

type ReplayPayload struct {
	Board json.RawMessage `json:"board" validate:"required"`
	Steps json.RawMessage `json:"steps" validate:"required"`
}

type LeaderboardSubmitRequest struct {
	Difficulty string         `json:"difficulty" validate:"required,oneof=beginner intermediate expert"`
	TimeMs     int64          `json:"time_ms" validate:"required,gt=0"`
	Replay     *ReplayPayload `json:"replay"`
}

type LeaderboardSubmitResponse struct {
	Entry    LeaderboardEntry `json:"entry"`
	Improved bool             `json:"improved"`
}

type ReplayResponse struct {
	EntryID uint            `json:"entry_id"`
	Board   json.RawMessage `json:"board"`
	Steps   json.RawMessage `json:"steps"`
}
