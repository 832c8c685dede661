package gamification

import (
	"time"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/clock"
)

// UpdateStreak compares the calendar day of LastActiveDate with now's calendar day
// (in now's location):
//   - same day: streak and LastActiveDate pass through untouched
//   - exactly the next day: streak+1, LastActiveDate = now
//   - anything else, including a zero or future date: streak resets to 1
func UpdateStreak(p domain.UserProfile, now time.Time) (int, time.Time) {
	if p.LastActiveDate.IsZero() {
		return 1, now
	}
	switch clock.DaysBetween(p.LastActiveDate, now) {
	case 0:
		return p.Streak, p.LastActiveDate
	case 1:
		return p.Streak + 1, now
	default:
		return 1, now
	}
}
