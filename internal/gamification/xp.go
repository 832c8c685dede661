// Package gamification holds the pure XP, level, streak and achievement rules.
// Nothing in here persists, logs or notifies; callers own those side effects.
package gamification

import "github.com/yungbote/upcycleai/internal/domain"

const (
	XPScan        = 20
	XPBuildEasy   = 50
	XPBuildMedium = 100
	XPBuildHard   = 200

	// PremiumMultiplier is applied by the profile owner, never by CalculateXP.
	PremiumMultiplier = 2
)

// CalculateXP returns the base reward for an event. A build without a recognised
// difficulty pays the Easy rate; an unknown source pays nothing.
func CalculateXP(source domain.EventSource, difficulty domain.Difficulty) int {
	switch source {
	case domain.SourceScan:
		return XPScan
	case domain.SourceBuild:
	default:
		return 0
	}
	switch difficulty {
	case domain.DifficultyMedium:
		return XPBuildMedium
	case domain.DifficultyHard:
		return XPBuildHard
	default:
		return XPBuildEasy
	}
}

// Award applies the premium policy on top of the base reward.
func Award(source domain.EventSource, difficulty domain.Difficulty, isPremium bool) int {
	amount := CalculateXP(source, difficulty)
	if isPremium {
		amount *= PremiumMultiplier
	}
	return amount
}
