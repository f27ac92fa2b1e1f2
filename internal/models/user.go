package models

import (
	"time"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Handle       string    `json:"handle" gorm:"uniqueIndex;not null;size:50"`
	PasswordHash string    `json:"-" gorm:"not null;size:255"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

type RegisterRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=50,handle"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
