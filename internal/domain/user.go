// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// User is one registered console as the directory sees it.
// InternalIP and SIPPort are assigned by the directory on first register.
type User struct {
	Username   string    `json:"username"`
	InternalIP string    `json:"internal_ip"`
	SIPPort    int       `json:"sip_port"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
