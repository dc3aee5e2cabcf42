package models

import "errors"

var (
	ErrInvalidAmount     = errors.New("models: amount must be positive")
	ErrInsufficientFunds = errors.New("models: insufficient funds")
	ErrPlayerNotFound    = errors.New("models: player stats not found")
	ErrConflict          = errors.New("models: concurrent update conflict")
)
