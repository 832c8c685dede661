package gamification

import (
	"fmt"
	"math"

	"github.com/yungbote/upcycleai/internal/domain"
)

// LevelFor returns the table entry for level, or the first level when unknown.
func LevelFor(level int) domain.Level {
	for _, l := range domain.Levels {
		if l.Level == level {
			return l
		}
	}
	return domain.Levels[0]
}

// NextLevel returns the entry for level+1, if the table has one.
func NextLevel(level int) (domain.Level, bool) {
	for _, l := range domain.Levels {
		if l.Level == level+1 {
			return l, true
		}
	}
	return domain.Level{}, false
}

// advanceLevel moves at most one level per event: only the entry for current+1 is
// checked. An award big enough to cross two thresholds still advances one level and
// the remaining level is picked up by the next event.
func advanceLevel(current, newXP int) (int, *domain.Level) {
	next, ok := NextLevel(current)
	if !ok || newXP < next.MinXP {
		return current, nil
	}
	return next.Level, &next
}

// LevelProgress is the percentage (0-100) of the way from the current level's
// threshold to the next one. Past the last level the target is 1.5x the current threshold.
func LevelProgress(p domain.UserProfile) float64 {
	cur := LevelFor(p.Level)
	target := float64(cur.MinXP) * 1.5
	if next, ok := NextLevel(p.Level); ok {
		target = float64(next.MinXP)
	}
	span := target - float64(cur.MinXP)
	if span <= 0 {
		return 100
	}
	pct := (float64(p.XP-cur.MinXP) / span) * 100
	return math.Min(100, math.Max(0, pct))
}

// ShareText is the brag line offered from the profile screen.
func ShareText(p domain.UserProfile) string {
	return fmt.Sprintf("I've reached Level %d (%s) on UpcycleAI! ♻️\n\n"+
		"📦 %d Items Scanned\n"+
		"🔨 %d Projects Built\n"+
		"🔥 %d Day Streak\n\n"+
		"Turn your trash into treasure! #UpcycleAI #Sustainability #DIY",
		p.Level, LevelFor(p.Level).Title, p.ScansCount, p.BuildsCount, p.Streak)
}
