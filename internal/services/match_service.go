package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/blameazu/minesweeper/internal/apperr"
	"github.com/blameazu/minesweeper/internal/board"
	"github.com/blameazu/minesweeper/internal/cache"
	"github.com/blameazu/minesweeper/internal/config"
	"github.com/blameazu/minesweeper/internal/database"
	"github.com/blameazu/minesweeper/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const seqRetryLimit = 3

func nowUTC() time.Time {
	return time.Now().UTC()
}

// MatchService is the match coordination engine: lifecycle transitions,
// readiness, step ingestion, finish, timeout evaluation and ranking. Every
// mutating operation runs in a transaction holding the match row lock, which
// is the sole serialization point within a match.
type MatchService struct {
	db    *database.DB
	cache *cache.Cache
	cfg   *config.Config
}

func NewMatchService(db *database.DB, c *cache.Cache, cfg *config.Config) *MatchService {
	return &MatchService{
		db:    db,
		cache: c,
		cfg:   cfg,
	}
}

func (s *MatchService) idleTimeout() time.Duration {
	return time.Duration(s.cfg.IdleMinutes) * time.Minute
}

func (s *MatchService) preStartDelay() time.Duration {
	return time.Duration(s.cfg.PreStartDelaySecs) * time.Second
}

// CreateMatch opens a pending match with the caller as host and sole seat.
func (s *MatchService) CreateMatch(ctx context.Context, userID uint, handle, difficulty string) (*MatchSessionView, error) {
	diff, err := board.ParseDifficulty(difficulty)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "invalid difficulty", err)
	}
	desc, err := board.NewDescriptor(diff, "")
	if err != nil {
		return nil, apperr.Unavailable("failed to derive board", err)
	}

	var view *MatchSessionView
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardNoActiveSession(tx, userID); err != nil {
			return err
		}

		now := time.Now().UTC()
		match := models.Match{
			Status:         models.MatchStatusPending,
			Width:          desc.Width,
			Height:         desc.Height,
			Mines:          desc.Mines,
			Seed:           desc.Seed,
			Difficulty:     string(diff),
			SafeX:          desc.SafeStart.X,
			SafeY:          desc.SafeStart.Y,
			CountdownSecs:  s.cfg.CountdownSecs,
			LastActivityAt: now,
		}
		if err := tx.Create(&match).Error; err != nil {
			return apperr.Unavailable("failed to create match", err)
		}

		seat := models.MatchPlayer{
			MatchID: match.ID,
			UserID:  userID,
			Name:    handle,
			Token:   uuid.NewString(),
		}
		if err := tx.Create(&seat).Error; err != nil {
			return apperr.Unavailable("failed to create seat", err)
		}

		match.HostID = seat.ID
		if err := tx.Model(&match).Update("host_id", seat.ID).Error; err != nil {
			return apperr.Unavailable("failed to assign host", err)
		}

		view = &MatchSessionView{
			MatchID:       match.ID,
			PlayerID:      seat.ID,
			PlayerToken:   seat.Token,
			Board:         boardOf(&match),
			Status:        match.Status,
			HostID:        match.HostID,
			CountdownSecs: match.CountdownSecs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRecent(ctx)
	slog.Info("Match created", "match_id", view.MatchID, "user_id", userID, "difficulty", diff)
	return view, nil
}

// JoinMatch seats the caller in a pending match. Rejoining a match the user
// already occupies returns the existing seat.
func (s *MatchService) JoinMatch(ctx context.Context, matchID, userID uint, handle string) (*MatchSessionView, error) {
	var view *MatchSessionView
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

		for i := range players {
			if players[i].UserID == userID {
				view = s.sessionView(match, &players[i])
				return nil
			}
		}

		if !match.IsPending() {
			return apperr.InvalidState("match is not joinable")
		}
		if len(players) >= s.cfg.MaxPlayersPerMatch {
			return apperr.InvalidState("match is full")
		}
		if err := guardNoActiveSession(tx, userID); err != nil {
			return err
		}

		seat := models.MatchPlayer{
			MatchID: match.ID,
			UserID:  userID,
			Name:    handle,
			Token:   uuid.NewString(),
		}
		if err := tx.Create(&seat).Error; err != nil {
			if database.IsUniqueConstraintError(err) {
				return apperr.AlreadyInMatch("user already seated in this match")
			}
			return apperr.Unavailable("failed to create seat", err)
		}
		if err := s.touch(tx, match); err != nil {
			return err
		}

		view = s.sessionView(match, &seat)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Player joined match", "match_id", matchID, "user_id", userID)
	return view, nil
}

// SetReady toggles a non-host seat's readiness while the match is pending.
// The host's readiness is implicit, so host calls are accepted unchanged.
func (s *MatchService) SetReady(ctx context.Context, matchID uint, token string, ready bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		seat, err := seatByToken(tx, match.ID, token)
		if err != nil {
			return err
		}
		if !match.IsPending() {
			return apperr.InvalidState("match is not pending")
		}
		if seat.ID == match.HostID {
			return nil
		}
		if seat.Ready == ready {
			return nil
		}
		if err := tx.Model(seat).Update("ready", ready).Error; err != nil {
			return apperr.Unavailable("failed to update readiness", err)
		}
		return nil
	})
}

// StartMatch transitions pending to active. Host only; requires at least two
// seats and every non-host ready. The pre-start window is advertised through
// started_at lying in the future.
func (s *MatchService) StartMatch(ctx context.Context, matchID uint, token string) (*StartView, error) {
	var view *StartView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		seat, err := seatByToken(tx, match.ID, token)
		if err != nil {
			return err
		}
		if seat.ID != match.HostID {
			return apperr.Unauthorized("only the host can start the match")
		}

		if match.IsActive() && match.StartedAt != nil {
			// Repeated identical start request
			view = &StartView{Status: match.Status, StartedAt: *match.StartedAt, CountdownSecs: match.CountdownSecs}
			return nil
		}
		if !match.IsPending() {
			return apperr.InvalidState("match is not pending")
		}

		players, err := playersOf(tx, match.ID)
		if err != nil {
			return err
		}
		if len(players) < 2 {
			return apperr.InvalidState("match needs at least two players")
		}
		for i := range players {
			if players[i].ID != match.HostID && !players[i].Ready {
				return apperr.InvalidState("all players must be ready")
			}
		}

		now := time.Now().UTC()
		startedAt := now.Add(s.preStartDelay())
		match.Status = models.MatchStatusActive
		match.StartedAt = &startedAt
		match.LastActivityAt = now
		if err := tx.Model(match).Updates(map[string]interface{}{
			"status":           match.Status,
			"started_at":       match.StartedAt,
			"last_activity_at": match.LastActivityAt,
		}).Error; err != nil {
			return apperr.Unavailable("failed to start match", err)
		}

		view = &StartView{Status: match.Status, StartedAt: startedAt, CountdownSecs: match.CountdownSecs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Match started", "match_id", matchID, "started_at", view.StartedAt)
	return view, nil
}

// SubmitStep appends one step to the match's total order and returns its seq.
// Concurrent submissions race for max(seq)+1 under the match row lock; a lost
// race surfaces as a unique violation on (match_id, seq) and is retried.
func (s *MatchService) SubmitStep(ctx context.Context, matchID uint, req models.StepRequest) (int, error) {
	var lastErr error
	for attempt := 0; attempt < seqRetryLimit; attempt++ {
		seq, err := s.trySubmitStep(ctx, matchID, req)
		if err == nil {
			return seq, nil
		}
		if !database.IsUniqueConstraintError(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, apperr.Wrap(apperr.KindConflict, "step sequence contention", lastErr)
}

func (s *MatchService) trySubmitStep(ctx context.Context, matchID uint, req models.StepRequest) (int, error) {
	var seq int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		seat, err := seatByToken(tx, match.ID, req.PlayerToken)
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

		now := time.Now().UTC()
		if !match.IsActive() {
			return apperr.InvalidState("match is not active")
		}
		if !match.Started(now) {
			return apperr.InvalidState("match has not started yet")
		}
		if seat.Finished() {
			return apperr.InvalidState("player already finished")
		}
		if !boardOf(match).InBounds(req.X, req.Y) {
			return apperr.BadRequest("coordinate out of board")
		}

		var maxSeq int
		if err := tx.Model(&models.MatchStep{}).
			Where("match_id = ?", match.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return apperr.Unavailable("failed to read step sequence", err)
		}

		step := models.MatchStep{
			MatchID:   match.ID,
			PlayerID:  seat.ID,
			Seq:       maxSeq + 1,
			Action:    models.StepAction(req.Action),
			X:         req.X,
			Y:         req.Y,
			ElapsedMs: req.ElapsedMs,
		}
		if err := tx.Create(&step).Error; err != nil {
			// Unique violations bubble up untagged for the retry loop
			return err
		}

		if err := tx.Model(seat).Update("steps_count", gorm.Expr("steps_count + 1")).Error; err != nil {
			return apperr.Unavailable("failed to bump step count", err)
		}
		if err := s.touch(tx, match); err != nil {
			return err
		}

		seq = step.Seq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// FinishPlayer records a seat's outcome. A repeated finish is a no-op. An
// unwarranted win, one whose progress snapshot does not evidence a fully
// revealed safe area, is coerced to forfeit. When every seat has finished the
// match is finalized and ranked.
func (s *MatchService) FinishPlayer(ctx context.Context, matchID uint, req models.FinishRequest) (*FinishView, error) {
	var view *FinishView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		seat, err := seatByToken(tx, match.ID, req.PlayerToken)
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
		for i := range players {
			if players[i].ID == seat.ID {
				seat = &players[i]
			}
		}

		if seat.Finished() {
			view = &FinishView{Status: match.Status, Result: seat.Result, Rank: seat.Rank}
			return nil
		}
		if !match.IsActive() {
			return apperr.InvalidState("match is not active")
		}

		outcome := models.PlayerResult(req.Outcome)
		if outcome == models.PlayerResultWin {
			revealed, ok := req.Progress.RevealedSafe()
			if !ok || revealed < boardOf(match).SafeCells() {
				outcome = models.PlayerResultForfeit
			}
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"result":      outcome,
			"finished_at": now,
		}
		if req.DurationMs != nil {
			updates["duration_ms"] = *req.DurationMs
		}
		if req.StepsCount != nil {
			updates["steps_count"] = *req.StepsCount
		}
		if req.Progress != nil {
			updates["progress"] = req.Progress.Raw()
		}
		if err := tx.Model(seat).Updates(updates).Error; err != nil {
			return apperr.Unavailable("failed to record finish", err)
		}
		if err := s.touch(tx, match); err != nil {
			return err
		}

		// Reload seats to see the finish just written
		players, err = playersOf(tx, match.ID)
		if err != nil {
			return err
		}
		allFinished := true
		for i := range players {
			if !players[i].Finished() {
				allFinished = false
				break
			}
		}
		if allFinished {
			if err := s.finalize(tx, match, players, now); err != nil {
				return err
			}
		}

		var rank *int
		for i := range players {
			if players[i].ID == seat.ID {
				rank = players[i].Rank
			}
		}
		view = &FinishView{Status: match.Status, Result: outcome, Rank: rank}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if view.Status == models.MatchStatusFinished {
		s.invalidateRecent(ctx)
	}
	slog.Info("Player finished", "match_id", matchID, "result", view.Result)
	return view, nil
}

// Leave drops a seat while the match is pending or its pre-start window has
// not elapsed. The sole remaining player leaving deletes the match; a leaving
// host hands off to the earliest-joined remaining seat.
func (s *MatchService) Leave(ctx context.Context, matchID uint, token string) error {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		seat, err := seatByToken(tx, match.ID, token)
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

		now := time.Now().UTC()
		if match.IsFinished() {
			return apperr.InvalidState("match already finished")
		}
		if !match.IsPending() && match.Started(now) {
			return apperr.InvalidState("cannot leave after the match has started")
		}

		if len(players) == 1 {
			if err := tx.Where("match_id = ?", match.ID).Delete(&models.MatchStep{}).Error; err != nil {
				return apperr.Unavailable("failed to delete match steps", err)
			}
			if err := tx.Where("match_id = ?", match.ID).Delete(&models.MatchPlayer{}).Error; err != nil {
				return apperr.Unavailable("failed to delete match seats", err)
			}
			if err := tx.Delete(match).Error; err != nil {
				return apperr.Unavailable("failed to delete match", err)
			}
			deleted = true
			return nil
		}

		if err := tx.Delete(seat).Error; err != nil {
			return apperr.Unavailable("failed to delete seat", err)
		}
		if seat.ID == match.HostID {
			// Deterministic re-election: earliest-joined remaining seat
			var next *models.MatchPlayer
			for i := range players {
				if players[i].ID == seat.ID {
					continue
				}
				if next == nil {
					next = &players[i]
				}
			}
			if next != nil {
				if err := tx.Model(match).Update("host_id", next.ID).Error; err != nil {
					return apperr.Unavailable("failed to re-elect host", err)
				}
			}
		}
		return s.touch(tx, match)
	})
	if err != nil {
		return err
	}

	if deleted {
		s.invalidateRecent(ctx)
	}
	slog.Info("Player left match", "match_id", matchID, "match_deleted", deleted)
	return nil
}

// lockMatch loads a match holding its row lock for the transaction.
func (s *MatchService) lockMatch(tx *gorm.DB, matchID uint) (*models.Match, error) {
	var match models.Match
	err := s.db.LockForUpdate(tx).First(&match, matchID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "match %d not found", matchID)
		}
		return nil, apperr.Unavailable(fmt.Sprintf("failed to load match %d", matchID), err)
	}
	return &match, nil
}

func playersOf(tx *gorm.DB, matchID uint) ([]models.MatchPlayer, error) {
	var players []models.MatchPlayer
	err := tx.Where("match_id = ?", matchID).
		Order("created_at ASC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, apperr.Unavailable(fmt.Sprintf("failed to load players of match %d", matchID), err)
	}
	return players, nil
}

func (s *MatchService) touch(tx *gorm.DB, match *models.Match) error {
	now := time.Now().UTC()
	match.LastActivityAt = now
	if err := tx.Model(match).Update("last_activity_at", now).Error; err != nil {
		return apperr.Unavailable("failed to refresh match activity", err)
	}
	return nil
}

func (s *MatchService) sessionView(match *models.Match, seat *models.MatchPlayer) *MatchSessionView {
	return &MatchSessionView{
		MatchID:       match.ID,
		PlayerID:      seat.ID,
		PlayerToken:   seat.Token,
		Board:         boardOf(match),
		Status:        match.Status,
		HostID:        match.HostID,
		CountdownSecs: match.CountdownSecs,
	}
}

// evaluateTimeouts applies the idle and countdown rules to an active match.
// It runs on every read and write touching a match, so no scheduler is needed
// for correctness; repeated evaluations are no-ops once finished.
func (s *MatchService) evaluateTimeouts(tx *gorm.DB, match *models.Match, players []models.MatchPlayer) (bool, error) {
	if !match.IsActive() {
		return false, nil
	}
	now := time.Now().UTC()
	idleExpired := now.After(match.IdleDeadline(s.idleTimeout()))
	countdownExpired := match.StartedAt != nil && now.After(match.CountdownDeadline())
	if !idleExpired && !countdownExpired {
		return false, nil
	}

	for i := range players {
		if players[i].Finished() {
			continue
		}
		players[i].Result = models.PlayerResultForfeit
		players[i].FinishedAt = &now
		if err := tx.Model(&players[i]).Updates(map[string]interface{}{
			"result":      models.PlayerResultForfeit,
			"finished_at": now,
		}).Error; err != nil {
			return false, apperr.Unavailable("failed to forfeit idle player", err)
		}
	}
	if err := s.finalize(tx, match, players, now); err != nil {
		return false, err
	}

	slog.Info("Match force-ended",
		"match_id", match.ID, "idle_expired", idleExpired, "countdown_expired", countdownExpired)
	return true, nil
}

// finalize ranks all seats and freezes the match. Callers must hold the match
// row lock and pass the complete, finished seat list.
func (s *MatchService) finalize(tx *gorm.DB, match *models.Match, players []models.MatchPlayer, now time.Time) error {
	revealed := make(map[uint]int, len(players))
	for i := range players {
		count, err := s.revealedCount(tx, match, &players[i])
		if err != nil {
			return err
		}
		revealed[players[i].ID] = count
	}

	order := make([]int, len(players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rankLess(&players[order[a]], &players[order[b]], revealed)
	})

	for pos, idx := range order {
		rank := pos + 1
		players[idx].Rank = &rank
		if err := tx.Model(&players[idx]).Update("rank", rank).Error; err != nil {
			return apperr.Unavailable("failed to persist rank", err)
		}
	}

	match.Status = models.MatchStatusFinished
	match.EndedAt = &now
	match.LastActivityAt = now
	if err := tx.Model(match).Updates(map[string]interface{}{
		"status":           models.MatchStatusFinished,
		"ended_at":         now,
		"last_activity_at": now,
	}).Error; err != nil {
		return apperr.Unavailable("failed to finalize match", err)
	}

	slog.Info("Match finished", "match_id", match.ID, "players", len(players))
	return nil
}

// revealedCount is the ranking-time revealed-cell measure: the submitted
// progress snapshot when parseable, else the count of distinct cells the
// player revealed in the server-side step log.
func (s *MatchService) revealedCount(tx *gorm.DB, match *models.Match, seat *models.MatchPlayer) (int, error) {
	if seat.Progress != nil {
		if n, ok := models.ProgressFromRaw(*seat.Progress).RevealedSafe(); ok {
			return n, nil
		}
	}

	var steps []models.MatchStep
	err := tx.Where("match_id = ? AND player_id = ? AND action = ?",
		match.ID, seat.ID, models.StepActionReveal).
		Find(&steps).Error
	if err != nil {
		return 0, apperr.Unavailable("failed to load reveal steps", err)
	}
	distinct := make(map[[2]int]struct{}, len(steps))
	for _, step := range steps {
		distinct[[2]int{step.X, step.Y}] = struct{}{}
	}
	return len(distinct), nil
}

// rankLess orders seats best-first: wins beat everything, forfeits lose to
// everything, then revealed count, duration, step count and finish time break
// ties.
func rankLess(a, b *models.MatchPlayer, revealed map[uint]int) bool {
	ga, gb := rankGroup(a), rankGroup(b)
	if ga != gb {
		return ga < gb
	}
	if ra, rb := revealed[a.ID], revealed[b.ID]; ra != rb {
		return ra > rb
	}
	if da, db := durationOrMax(a), durationOrMax(b); da != db {
		return da < db
	}
	if a.StepsCount != b.StepsCount {
		return a.StepsCount < b.StepsCount
	}
	return finishedOrMax(a).Before(finishedOrMax(b))
}

func rankGroup(p *models.MatchPlayer) int {
	switch p.Result {
	case models.PlayerResultWin:
		return 0
	case models.PlayerResultForfeit:
		return 2
	default:
		return 1
	}
}

func durationOrMax(p *models.MatchPlayer) int64 {
	if p.DurationMs == nil {
		return math.MaxInt64
	}
	return *p.DurationMs
}

func finishedOrMax(p *models.MatchPlayer) time.Time {
	if p.FinishedAt == nil {
		return time.Unix(1<<40, 0)
	}
	return *p.FinishedAt
}

func (s *MatchService) invalidateRecent(ctx context.Context) {
	if err := s.cache.InvalidateRecentMatches(ctx); err != nil {
		slog.Warn("Failed to invalidate recent match cache", "error", err)
	}
}
