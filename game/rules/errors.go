package rules

import "errors"

var (
	ErrSelfTarget                 = errors.New("rules: cannot target yourself")
	ErrInsufficientEnergy         = errors.New("rules: not enough energy")
	ErrDailyLimitReached          = errors.New("rules: daily plunder limit reached")
	ErrDefenderNotMining          = errors.New("rules: target is not mining")
	ErrInsufficientMiningProgress = errors.New("rules: target has nothing to plunder yet")
	ErrAlreadyMining              = errors.New("rules: already mining")
	ErrNotMining                  = errors.New("rules: not mining")
	ErrWrongLocation              = errors.New("rules: mining is only possible at the mine")
	ErrNoWeapon                   = errors.New("rules: no weapon equipped")
	ErrNotAuthorized              = errors.New("rules: only the defender can resolve this attack")
	ErrSessionExpired             = errors.New("rules: attack session expired")
	ErrAlreadyResolved            = errors.New("rules: attack already resolved")
	ErrSessionNotFound            = errors.New("rules: attack session not found")
	ErrDailyNotReady              = errors.New("rules: daily reward already claimed")
	ErrTransferTooLarge           = errors.New("rules: transfer exceeds maximum")
	ErrCooldown                   = errors.New("rules: action on cooldown")
	ErrRateLimited                = errors.New("rules: too many actions")

	// ErrInconsistent wraps a cross-record operation that committed only in
	// part. It must never be retried.
	ErrInconsistent = errors.New("rules: partial commit, reconciliation required")
)

// IsPrecondition reports whether err is an expected, user-facing outcome.
func IsPrecondition(err error) bool {
	for _, target := range preconditions {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var preconditions = []error{
	ErrSelfTarget,
	ErrInsufficientEnergy,
	ErrDailyLimitReached,
	ErrDefenderNotMining,
	ErrInsufficientMiningProgress,
	ErrAlreadyMining,
	ErrNotMining,
	ErrWrongLocation,
	ErrNoWeapon,
	ErrNotAuthorized,
	ErrSessionExpired,
	ErrAlreadyResolved,
	ErrSessionNotFound,
	ErrDailyNotReady,
	ErrTransferTooLarge,
	ErrCooldown,
	ErrRateLimited,
}
