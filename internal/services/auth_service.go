package services

import (
	"context"
	"log/slog"

	"github.com/blameazu/minesweeper/internal/apperr"
	"github.com/blameazu/minesweeper/internal/auth"
	"github.com/blameazu/minesweeper/internal/database"
	"github.com/blameazu/minesweeper/internal/models"
	"gorm.io/gorm"
)

type AuthService struct {
	db         *database.DB
	jwtManager *auth.JWTManager
}

func NewAuthService(db *database.DB, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		db:         db,
		jwtManager: jwtManager,
	}
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var existing models.User
	err := s.db.WithContext(ctx).Where("handle = ?", req.Handle).First(&existing).Error
	if err == nil {
		return nil, apperr.Newf(apperr.KindBadRequest, "handle %s already taken", req.Handle)
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperr.Unavailable("failed to check existing user", err)
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Unavailable("failed to hash password", err)
	}

	user := models.User{
		Handle:       req.Handle,
		PasswordHash: hashed,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueConstraintError(err) {
			return nil, apperr.Newf(apperr.KindBadRequest, "handle %s already taken", req.Handle)
		}
		return nil, apperr.Unavailable("failed to create user", err)
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Handle)
	if err != nil {
		return nil, apperr.Unavailable("failed to generate token", err)
	}

	slog.Info("User registered", "user_id", user.ID, "handle", user.Handle)
	return &models.AuthResponse{Token: token, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("handle = ?", req.Handle).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, apperr.Unavailable("failed to find user", err)
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Handle)
	if err != nil {
		return nil, apperr.Unavailable("failed to generate token", err)
	}

	slog.Info("User logged in", "user_id", user.ID, "handle", user.Handle)
	return &models.AuthResponse{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Unavailable("failed to get user", err)
	}
	return &user, nil
}
