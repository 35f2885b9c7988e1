package secrets

import "errors"

// Token errors. Decode paths never panic on malformed input; every failure
// mode is one of these three.
var (
	ErrInvalidSignature = errors.New("secrets: invalid signature")
	ErrExpired          = errors.New("secrets: token expired")
	ErrMalformed        = errors.New("secrets: malformed token")
)
