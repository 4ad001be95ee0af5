package apperrors

import (
	"errors"
)

var (
	ErrPageNotFound = errors.New("page not found")

	ErrTokenNotFound = errors.New("page token not found")

	ErrSecretKeyInvalid = errors.New("secret key must be 32 hex encoded bytes")

	ErrStateInvalid = errors.New("oauth state is invalid or expired")

	ErrRefreshThrottled = errors.New("refresh attempts exhausted for page")
)
