package gamification

import (
	"time"

	"github.com/yungbote/upcycleai/internal/domain"
)

// AchievementContext carries facts about the single event being evaluated.
// Zero value means "no event", e.g. a re-evaluation on load.
type AchievementContext struct {
	Source     domain.EventSource
	Difficulty domain.Difficulty
}

type rule struct {
	id   string
	test func(p domain.UserProfile, ctx AchievementContext) bool
}

var rules = []rule{
	{domain.AchievementFirstStep, func(p domain.UserProfile, _ AchievementContext) bool { return p.BuildsCount >= 1 }},
	{domain.AchievementScavengerKing, func(p domain.UserProfile, _ AchievementContext) bool { return p.ScansCount >= 10 }},
	{domain.AchievementStreakMaster, func(p domain.UserProfile, _ AchievementContext) bool { return p.Streak >= 3 }},
	// Event-triggered: about one Hard build, not a cumulative count.
	{domain.AchievementExpertBuilder, func(_ domain.UserProfile, ctx AchievementContext) bool {
		return ctx.Source == domain.SourceBuild && ctx.Difficulty == domain.DifficultyHard
	}},
}

// EvaluateAchievements returns a new achievement slice with every satisfied rule
// unlocked and stamped with now. Unlocked entries are never relocked and keep their
// original timestamp. Achievements absent from the profile are not added.
func EvaluateAchievements(p domain.UserProfile, ctx AchievementContext, now time.Time) []domain.Achievement {
	out := make([]domain.Achievement, len(p.Achievements))
	copy(out, p.Achievements)

	for _, r := range rules {
		if !r.test(p, ctx) {
			continue
		}
		for i := range out {
			if out[i].ID != r.id || out[i].Unlocked {
				continue
			}
			at := now
			out[i].Unlocked = true
			out[i].UnlockedAt = &at
		}
	}
	return out
}

// NewlyUnlocked lists achievements unlocked in after but not in before.
func NewlyUnlocked(before, after []domain.Achievement) []domain.Achievement {
	was := make(map[string]bool, len(before))
	for _, a := range before {
		was[a.ID] = a.Unlocked
	}
	var out []domain.Achievement
	for _, a := range after {
		if a.Unlocked && !was[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
