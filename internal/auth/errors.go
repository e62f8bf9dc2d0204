package auth

import "errors"

var (
	ErrConflict           = errors.New("auth: already exists")
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailNotVerified   = errors.New("auth: email not verified")
	ErrAccountBanned      = errors.New("auth: account banned")
	ErrAccountInactive    = errors.New("auth: account inactive")
	ErrAlreadyVerified    = errors.New("auth: email already verified")
	ErrTokenInvalid       = errors.New("auth: token invalid")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrTooSoon            = errors.New("auth: verification email requested too recently")
	ErrLastRole           = errors.New("auth: cannot remove the last role")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
)
