package core

import "errors"

var (
	ErrInvalidAddress       = errors.New("invalid wallet address")
	ErrInvalidChallenge     = errors.New("invalid challenge")
	ErrChallengeExpired     = errors.New("challenge has expired")
	ErrChallengeReplayed    = errors.New("challenge already used")
	ErrAuthenticationFailed = errors.New("authentication failed")

	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token has expired")

	ErrAlreadyClaimed     = errors.New("wallet has already claimed")
	ErrSupplyExhausted    = errors.New("supply exhausted")
	ErrNotEligible        = errors.New("wallet is not eligible")
	ErrInvalidTransition  = errors.New("invalid claim state transition")
	ErrClaimNotFound      = errors.New("claim not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrExternalMintFailed = errors.New("external mint failed")

	ErrUserNotFound  = errors.New("user not found")
	ErrQuestNotFound = errors.New("quest not found")
)
