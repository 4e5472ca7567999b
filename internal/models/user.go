package models

import (
	"time"
)

// User profile as returned by the identity service
// Every field is optional: the service decides what to fill
type User struct {
	Name        string     `json:"name,omitempty"`
	Email       string     `json:"email,omitempty" validate:"omitempty,email"`
	Password    string     `json:"password,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	Name        string     `json:"name,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

type Message struct {
	Message string `json:"message"`
}

type UserExists struct {
	UserExists bool `json:"user_exists"`
}
