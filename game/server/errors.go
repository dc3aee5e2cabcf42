package server

import (
	"errors"

	"github.com/Vintral/culling-realm/game/rules"
	"github.com/Vintral/culling-realm/models"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{rules.ErrSelfTarget, "self-target"},
	{rules.ErrInsufficientEnergy, "insufficient-energy"},
	{rules.ErrDailyLimitReached, "daily-limit"},
	{rules.ErrDefenderNotMining, "defender-not-mining"},
	{rules.ErrInsufficientMiningProgress, "insufficient-progress"},
	{rules.ErrAlreadyMining, "already-mining"},
	{rules.ErrNotMining, "not-mining"},
	{rules.ErrWrongLocation, "wrong-location"},
	{rules.ErrNoWeapon, "no-weapon"},
	{rules.ErrNotAuthorized, "not-authorized"},
	{rules.ErrSessionExpired, "expired"},
	{rules.ErrAlreadyResolved, "already-resolved"},
	{rules.ErrSessionNotFound, "unknown-attack"},
	{rules.ErrDailyNotReady, "daily-not-ready"},
	{rules.ErrTransferTooLarge, "transfer-too-large"},
	{rules.ErrCooldown, "cooldown"},
	{rules.ErrRateLimited, "rate-limited"},
	{models.ErrInsufficientFunds, "insufficient-funds"},
	{models.ErrInvalidAmount, "invalid-amount"},
}

// errorCode maps an expected outcome to its wire code. Anything else is
// reported as internal.
func errorCode(err error) (string, bool) {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code, true
		}
	}
	return "internal", false
}
