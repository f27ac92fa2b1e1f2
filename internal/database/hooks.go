package database

import (
	"log/slog"
)

// SetupIndexes creates additional indexes beyond what the model tags declare
func (db *DB) SetupIndexes() error {
	slog.Info("Setting up additional database indexes")

	// Step log reads are always (match_id, seq) ordered
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_match_steps_order
		ON match_steps(match_id, seq)
	`).Error; err != nil {
		return err
	}

	// Active-session lookups join players to unfinished matches by user
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_match_players_user_match
		ON match_players(user_id, match_id)
	`).Error; err != nil {
		return err
	}

	// Leaderboard pages are (difficulty, time_ms, created_at)
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_leaderboard_entries_ranking
		ON leaderboard_entries(difficulty, time_ms, created_at)
	`).Error; err != nil {
		return err
	}

	slog.Info("Additional database indexes created successfully")
	return nil
}
