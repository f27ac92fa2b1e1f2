package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/blameazu/minesweeper/internal/apperr"
	"github.com/blameazu/minesweeper/internal/models"
	"gorm.io/gorm"
)

const defaultRecentLimit = 10

// MatchState returns the full match view. Timeout rules are evaluated first,
// so an expired match reads as finished. A seat's progress snapshot stays
// hidden from opponents until the match is finished; viewerUserID (from
// optional auth) reveals the viewer's own snapshot.
func (s *MatchService) MatchState(ctx context.Context, matchID uint, viewerUserID *uint) (*MatchStateView, error) {
	var view *MatchStateView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		players, err := playersOf(tx, match.ID)
		if err != nil {
			return err
		}
		if _, err := s.evaluateTimeouts(tx, match, players); err != nil {
			return err
		}

		playerViews := make([]PlayerStateView, 0, len(players))
		for i := range players {
			p := &players[i]
			pv := PlayerStateView{
				ID:         p.ID,
				UserID:     p.UserID,
				Name:       p.Name,
				Ready:      p.Ready || p.ID == match.HostID,
				Result:     p.Result,
				DurationMs: p.DurationMs,
				StepsCount: p.StepsCount,
				FinishedAt: p.FinishedAt,
				Rank:       p.Rank,
			}
			if p.Progress != nil && (match.IsFinished() || (viewerUserID != nil && *viewerUserID == p.UserID)) {
				pv.Progress = json.RawMessage(*p.Progress)
			}
			playerViews = append(playerViews, pv)
		}

		view = &MatchStateView{
			ID:            match.ID,
			Status:        match.Status,
			Board:         boardOf(match),
			HostID:        match.HostID,
			CountdownSecs: match.CountdownSecs,
			CreatedAt:     match.CreatedAt,
			StartedAt:     match.StartedAt,
			EndedAt:       match.EndedAt,
			Players:       playerViews,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// MatchSteps returns the full log in canonical seq order, for replay and
// spectating.
func (s *MatchService) MatchSteps(ctx context.Context, matchID uint) ([]StepView, error) {
	var views []StepView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		players, err := playersOf(tx, match.ID)
		if err != nil {
			return err
		}
		if _, err := s.evaluateTimeouts(tx, match, players); err != nil {
			return err
		}

		names := make(map[uint]string, len(players))
		for i := range players {
			names[players[i].ID] = players[i].Name
		}

		var steps []models.MatchStep
		if err := tx.Where("match_id = ?", match.ID).Order("seq ASC").Find(&steps).Error; err != nil {
			return apperr.Unavailable("failed to load steps", err)
		}

		views = make([]StepView, 0, len(steps))
		for _, step := range steps {
			views = append(views, StepView{
				Seq:        step.Seq,
				PlayerID:   step.PlayerID,
				PlayerName: names[step.PlayerID],
				Action:     step.Action,
				X:          step.X,
				Y:          step.Y,
				ElapsedMs:  step.ElapsedMs,
				CreatedAt:  step.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// RecentMatches lists the last matches by creation time with a compact seat
// summary. Served from cache when one is configured.
func (s *MatchService) RecentMatches(ctx context.Context, limit int) ([]RecentMatchView, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultRecentLimit
	}

	var cached []RecentMatchView
	if hit, err := s.cache.GetRecentMatches(ctx, limit, &cached); err != nil {
		slog.Warn("Recent match cache read failed", "error", err)
	} else if hit {
		return cached, nil
	}

	var matches []models.Match
	err := s.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("match_players.created_at ASC, match_players.id ASC")
		}).
		Order("created_at DESC").
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, apperr.Unavailable("failed to list recent matches", err)
	}

	views := make([]RecentMatchView, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		playerViews := make([]RecentMatchPlayerView, 0, len(m.Players))
		for j := range m.Players {
			p := &m.Players[j]
			playerViews = append(playerViews, RecentMatchPlayerView{
				Name:   p.Name,
				Result: p.Result,
				Rank:   p.Rank,
			})
		}
		views = append(views, RecentMatchView{
			ID:         m.ID,
			Status:     m.Status,
			Difficulty: m.Difficulty,
			CreatedAt:  m.CreatedAt,
			EndedAt:    m.EndedAt,
			Players:    playerViews,
		})
	}

	if err := s.cache.SetRecentMatches(ctx, limit, views); err != nil {
		slog.Warn("Recent match cache write failed", "error", err)
	}
	return views, nil
}

// ActiveSession restores the user's unique in-flight seat, if any. The lookup
// evaluates timeouts on the candidate match, so a session that just expired
// reads as absent.
func (s *MatchService) ActiveSession(ctx context.Context, userID uint) (*ActiveSessionView, error) {
	view := &ActiveSessionView{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seat, err := activeSeatForUser(tx, userID)
		if err != nil {
			return err
		}
		if seat == nil {
			return nil
		}

		match, err := s.lockMatch(tx, seat.MatchID)
		if err != nil {
			return err
		}
		players, err := playersOf(tx, match.ID)
		if err != nil {
			return err
		}
		if _, err := s.evaluateTimeouts(tx, match, players); err != nil {
			return err
		}
		if match.IsFinished() {
			return nil
		}

		desc := boardOf(match)
		view.Active = true
		view.MatchID = &match.ID
		view.PlayerID = &seat.ID
		view.PlayerToken = seat.Token
		view.Board = &desc
		view.Status = &match.Status
		view.HostID = &match.HostID
		view.CountdownSecs = &match.CountdownSecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// MatchHistory lists the user's past seats, newest first.
func (s *MatchService) MatchHistory(ctx context.Context, userID uint) ([]MatchHistoryItemView, error) {
	var seats []models.MatchPlayer
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&seats).Error
	if err != nil {
		return nil, apperr.Unavailable("failed to load match history", err)
	}

	items := make([]MatchHistoryItemView, 0, len(seats))
	for i := range seats {
		seat := &seats[i]
		var match models.Match
		if err := s.db.WithContext(ctx).First(&match, seat.MatchID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return nil, apperr.Unavailable("failed to load match for history", err)
		}
		items = append(items, MatchHistoryItemView{
			MatchID:    match.ID,
			Status:     match.Status,
			Difficulty: match.Difficulty,
			Width:      match.Width,
			Height:     match.Height,
			Mines:      match.Mines,
			CreatedAt:  match.CreatedAt,
			EndedAt:    match.EndedAt,
			Result:     seat.Result,
			DurationMs: seat.DurationMs,
			Rank:       seat.Rank,
		})
	}
	return items, nil
}

// EvaluateExpired force-ends every active match past its idle or countdown
// deadline. The optional reaper calls this; correctness never depends on it
// because the same evaluation runs lazily on each read and write.
func (s *MatchService) EvaluateExpired(ctx context.Context) error {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("status = ?", models.MatchStatusActive).
		Pluck("id", &ids).Error
	if err != nil {
		return apperr.Unavailable("failed to list active matches", err)
	}

	for _, id := range ids {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			match, err := s.lockMatch(tx, id)
			if err != nil {
				return err
			}
			players, err := playersOf(tx, match.ID)
			if err != nil {
				return err
			}
			_, err = s.evaluateTimeouts(tx, match, players)
			return err
		})
		if err != nil {
			slog.Warn("Reaper failed to evaluate match", "match_id", id, "error", err)
		}
	}
	return nil
}
