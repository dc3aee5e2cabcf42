// Package rules holds the constants and formulas shared by every game
// action. Mining payout and plunder must read the same reward function.
package rules

import (
	"time"
)

const (
	MiningInterval    = 2 * time.Hour
	MiningCap         = 12 * time.Hour
	GemsPerInterval   = 50
	MaxPlundersPerDay = 2
	PlunderEnergyCost = 1
	AttackEnergyCost  = 1
	AttackWindow      = 60 * time.Second
	EnergyTick        = time.Hour
)

const (
	DailyCooldown       = 23*time.Hour + 30*time.Minute
	DailyMaxRoll        = 100
	DailyMaxStreakBonus = 10
	TransferMax         = 1000
	TransferCooldown    = 5 * time.Minute
	TransferTaxDivisor  = 20
)

// Steal is StealNumerator/StealDenominator of the unrealized reward,
// rounded down.
const (
	StealNumerator   = 3
	StealDenominator = 10
)

// Ledger reasons.
const (
	ReasonMining      = "mining"
	ReasonPlunder     = "plunder"
	ReasonDaily       = "daily"
	ReasonTransferOut = "transfer-out"
	ReasonTransferIn  = "transfer-in"
)

const plunderDateLayout = "2006-01-02"

// MiningElapsed is the credited duration of a session, capped at MiningCap.
// A start in the future counts as zero.
func MiningElapsed(start time.Time, now time.Time) time.Duration {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 0
	}
	if elapsed > MiningCap {
		return MiningCap
	}
	return elapsed
}

// MiningReward is the base reward for a session: whole intervals only.
func MiningReward(start time.Time, now time.Time) int64 {
	intervals := int64(MiningElapsed(start, now) / MiningInterval)
	return intervals * GemsPerInterval
}

// Payout settles a session. The adjustment is usually negative.
func Payout(base int64, adjustment int64) int64 {
	if total := base + adjustment; total > 0 {
		return total
	}
	return 0
}

func StealAmount(base int64) int64 {
	if base <= 0 {
		return 0
	}
	return base * StealNumerator / StealDenominator
}

// Today is the UTC calendar date used for the plunder counter.
func Today(now time.Time) string {
	return now.UTC().Format(plunderDateLayout)
}

func TransferTax(amount int64) int64 {
	if tax := amount / TransferTaxDivisor; tax > 1 {
		return tax
	}
	return 1
}

// NextStreak returns the streak after a claim at now. Whole days are
// counted from the previous claim.
func NextStreak(streak int, last *time.Time, now time.Time) int {
	if last == nil || streak <= 0 {
		return 1
	}

	days := int(now.Sub(*last) / (24 * time.Hour))
	switch {
	case days == 1:
		return streak + 1
	case days > 1:
		return 1
	}
	return streak
}

func DailyBonus(base int64, streak int) int64 {
	if streak > DailyMaxStreakBonus {
		streak = DailyMaxStreakBonus
	}
	if streak < 0 {
		streak = 0
	}
	return base * int64(streak) / 10
}

func DailyReady(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) >= DailyCooldown
}
