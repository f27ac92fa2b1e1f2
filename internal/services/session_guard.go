package services

import (
	"fmt"

	"github.com/blameazu/minesweeper/internal/apperr"
	"github.com/blameazu/minesweeper/internal/models"
	"gorm.io/gorm"
)

// activeSeatForUser returns the user's seat in any match whose status is not
// finished, or nil. There is at most one such seat: create and join both go
// through guardNoActiveSession before inserting.
func activeSeatForUser(tx *gorm.DB, userID uint) (*models.MatchPlayer, error) {
	var seat models.MatchPlayer
	err := tx.
		Joins("JOIN matches ON matches.id = match_players.match_id").
		Where("match_players.user_id = ? AND matches.status <> ?", userID, models.MatchStatusFinished).
		Order("match_players.created_at ASC").
		First(&seat).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperr.Unavailable("failed to look up active session", err)
	}
	return &seat, nil
}

// guardNoActiveSession rejects a create or join while the user occupies any
// unfinished match.
func guardNoActiveSession(tx *gorm.DB, userID uint) error {
	seat, err := activeSeatForUser(tx, userID)
	if err != nil {
		return err
	}
	if seat != nil {
		return apperr.Newf(apperr.KindAlreadyInMatch,
			"user already in match %d", seat.MatchID)
	}
	return nil
}

// seatByToken resolves a seat write token within a match.
func seatByToken(tx *gorm.DB, matchID uint, token string) (*models.MatchPlayer, error) {
	if token == "" {
		return nil, apperr.Unauthorized("player token required")
	}
	var seat models.MatchPlayer
	err := tx.Where("match_id = ? AND token = ?", matchID, token).First(&seat).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Unauthorized("invalid player token")
		}
		return nil, apperr.Unavailable(fmt.Sprintf("failed to resolve seat for match %d", matchID), err)
	}
	return &seat, nil
}
