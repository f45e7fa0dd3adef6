package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnknownMarket       = errors.New("unknown market symbol")
	ErrZeroEntryPrice      = errors.New("entry price must be positive")
	ErrNoSession           = errors.New("no active session")
	ErrSessionActive       = errors.New("session already active")
	ErrSessionExpired      = errors.New("session expired")
	ErrSettlementPending   = errors.New("settlement already pending")
	ErrInsufficientBalance = errors.New("insufficient session balance")
	ErrInvalidIntent       = errors.New("invalid trade intent")
	ErrNotInitialized      = errors.New("client not initialized")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockHeld            = errors.New("lock already held")
)
