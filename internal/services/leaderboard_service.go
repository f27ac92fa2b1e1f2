package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/blameazu/minesweeper/internal/apperr"
	"github.com/blameazu/minesweeper/internal/board"
	"github.com/blameazu/minesweeper/internal/cache"
	"github.com/blameazu/minesweeper/internal/config"
	"github.com/blameazu/minesweeper/internal/database"
	"github.com/blameazu/minesweeper/internal/models"
	"gorm.io/gorm"
)

// LeaderboardService keeps one best-time entry per (user, difficulty) and a
// replay blob for entries within the top N of their difficulty.
type LeaderboardService struct {
	db    *database.DB
	cache *cache.Cache
	cfg   *config.Config
}

func NewLeaderboardService(db *database.DB, c *cache.Cache, cfg *config.Config) *LeaderboardService {
	return &LeaderboardService{
		db:    db,
		cache: c,
		cfg:   cfg,
	}
}

// Submit upserts when time_ms strictly beats the user's existing entry for
// the difficulty. The replay is persisted only while the entry ranks within
// the top N; replays that fall outside are pruned in the same transaction.
func (s *LeaderboardService) Submit(ctx context.Context, userID uint, handle string, req models.LeaderboardSubmitRequest) (*models.LeaderboardSubmitResponse, error) {
	if _, err := board.ParseDifficulty(req.Difficulty); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "invalid difficulty", err)
	}

	var resp *models.LeaderboardSubmitResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.LeaderboardEntry
		err := s.db.LockForUpdate(tx).
			Where("user_id = ? AND difficulty = ?", userID, req.Difficulty).
			First(&entry).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			entry = models.LeaderboardEntry{
				UserID:     userID,
				Handle:     handle,
				Difficulty: req.Difficulty,
				TimeMs:     req.TimeMs,
				CreatedAt:  nowUTC(),
			}
			if err := tx.Create(&entry).Error; err != nil {
				if database.IsUniqueConstraintError(err) {
					return apperr.Conflict("concurrent leaderboard submit")
				}
				return apperr.Unavailable("failed to create leaderboard entry", err)
			}
		case err != nil:
			return apperr.Unavailable("failed to load leaderboard entry", err)
		case req.TimeMs >= entry.TimeMs:
			// Not strictly better; existing entry and replay stand
			resp = &models.LeaderboardSubmitResponse{Entry: entry, Improved: false}
			return nil
		default:
			entry.TimeMs = req.TimeMs
			entry.CreatedAt = nowUTC()
			if err := tx.Model(&entry).Updates(map[string]interface{}{
				"time_ms":    entry.TimeMs,
				"created_at": entry.CreatedAt,
			}).Error; err != nil {
				return apperr.Unavailable("failed to update leaderboard entry", err)
			}
			// The superseded run's replay no longer describes this entry
			if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.LeaderboardReplay{}).Error; err != nil {
				return apperr.Unavailable("failed to drop superseded replay", err)
			}
		}

		if req.Replay != nil {
			inTop, err := s.withinTopN(tx, &entry)
			if err != nil {
				return err
			}
			if inTop {
				replay := models.LeaderboardReplay{
					EntryID:   entry.ID,
					BoardJSON: string(req.Replay.Board),
					StepsJSON: string(req.Replay.Steps),
				}
				if err := tx.Create(&replay).Error; err != nil {
					return apperr.Unavailable("failed to store replay", err)
				}
			}
		}

		if err := s.pruneReplays(tx, entry.Difficulty); err != nil {
			return err
		}

		resp = &models.LeaderboardSubmitResponse{Entry: entry, Improved: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Improved {
		if err := s.cache.InvalidateLeaderboard(ctx, req.Difficulty); err != nil {
			slog.Warn("Failed to invalidate leaderboard cache", "error", err)
		}
		slog.Info("Leaderboard entry submitted",
			"user_id", userID, "difficulty", req.Difficulty, "time_ms", req.TimeMs)
	}
	return resp, nil
}

// Query lists entries for a difficulty, fastest first, earlier submission
// winning ties. Served from cache when one is configured.
func (s *LeaderboardService) Query(ctx context.Context, difficulty string, limit int) ([]models.LeaderboardEntry, error) {
	if _, err := board.ParseDifficulty(difficulty); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "invalid difficulty", err)
	}
	if limit <= 0 || limit > 100 {
		limit = s.cfg.LeaderboardTopN
	}

	var cached []models.LeaderboardEntry
	if hit, err := s.cache.GetLeaderboard(ctx, difficulty, limit, &cached); err != nil {
		slog.Warn("Leaderboard cache read failed", "error", err)
	} else if hit {
		return cached, nil
	}

	var entries []models.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Where("difficulty = ?", difficulty).
		Order("time_ms ASC, created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Unavailable("failed to query leaderboard", err)
	}

	if len(entries) > 0 {
		ids := make([]uint, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		var withReplay []uint
		err := s.db.WithContext(ctx).Model(&models.LeaderboardReplay{}).
			Where("entry_id IN ?", ids).
			Pluck("entry_id", &withReplay).Error
		if err != nil {
			return nil, apperr.Unavailable("failed to check replay availability", err)
		}
		available := make(map[uint]bool, len(withReplay))
		for _, id := range withReplay {
			available[id] = true
		}
		for i := range entries {
			entries[i].HasReplay = available[entries[i].ID]
		}
	}

	if err := s.cache.SetLeaderboard(ctx, difficulty, limit, entries); err != nil {
		slog.Warn("Leaderboard cache write failed", "error", err)
	}
	return entries, nil
}

// Replay returns the stored board descriptor and step sequence for an entry.
func (s *LeaderboardService) Replay(ctx context.Context, entryID uint) (*models.ReplayResponse, error) {
	var replay models.LeaderboardReplay
	err := s.db.WithContext(ctx).Where("entry_id = ?", entryID).First(&replay).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "no replay for entry %d", entryID)
		}
		return nil, apperr.Unavailable("failed to load replay", err)
	}
	return &models.ReplayResponse{
		EntryID: replay.EntryID,
		Board:   json.RawMessage(replay.BoardJSON),
		Steps:   json.RawMessage(replay.StepsJSON),
	}, nil
}

// withinTopN checks whether an entry currently ranks inside the replay-kept
// region of its difficulty.
func (s *LeaderboardService) withinTopN(tx *gorm.DB, entry *models.LeaderboardEntry) (bool, error) {
	var better int64
	err := tx.Model(&models.LeaderboardEntry{}).
		Where("difficulty = ? AND (time_ms < ? OR (time_ms = ? AND created_at < ?))",
			entry.Difficulty, entry.TimeMs, entry.TimeMs, entry.CreatedAt).
		Count(&better).Error
	if err != nil {
		return false, apperr.Unavailable("failed to rank leaderboard entry", err)
	}
	return int(better) < s.cfg.LeaderboardTopN, nil
}

// pruneReplays drops replay blobs for entries that fell out of the top N.
func (s *LeaderboardService) pruneReplays(tx *gorm.DB, difficulty string) error {
	var keep []uint
	err := tx.Model(&models.LeaderboardEntry{}).
		Where("difficulty = ?", difficulty).
		Order("time_ms ASC, created_at ASC").
		Limit(s.cfg.LeaderboardTopN).
		Pluck("id", &keep).Error
	if err != nil {
		return apperr.Unavailable("failed to compute replay retention", err)
	}

	query := tx.
		Where("entry_id IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.LeaderboardEntry{}).
			Where("difficulty = ?", difficulty).
			Select("id"))
	if len(keep) > 0 {
		query = query.Where("entry_id NOT IN ?", keep)
	}
	if err := query.Delete(&models.LeaderboardReplay{}).Error; err != nil {
		return apperr.Unavailable("failed to prune replays", err)
	}
	return nil
}
