package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrIncorrectPassword  = errors.New("auth: current password does not match")
	ErrAccountInactive    = errors.New("auth: account is inactive")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrExpiredToken       = errors.New("auth: token expired")
	ErrRevoked            = errors.New("auth: refresh token revoked or unknown")
)
