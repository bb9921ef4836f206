// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 128
	MaxUsernameLen = 120
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// User is the durable identity a connection resolves to at handshake.
type User struct {
	ID    UserID `json:"userId"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty display name falls back to the user id.
func NewUser(id, name, image string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return User{}, ErrUserIDTooLong
	}
	name = strings.TrimSpace(name)
	if len([]rune(name)) > MaxUsernameLen {
		return User{}, ErrUsernameTooLong
	}
	if name == "" {
		name = id
	}
	return User{ID: UserID(id), Name: name, Image: image}, nil
}
