package gamification

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/upcycleai/internal/domain"
)

type Event struct {
	Source      domain.EventSource
	ContextName string
	ProjectID   string
	Result      *domain.AnalysisResult
	Difficulty  domain.Difficulty
}

type Options struct {
	Now   time.Time
	NewID func() string
	// HistoryLimit keeps only the most recent entries; 0 keeps everything.
	HistoryLimit int
}

// Outcome describes what an event changed, for the caller to signal.
type Outcome struct {
	XPGained    int                  `json:"xpGained"`
	LevelUp     *domain.Level        `json:"levelUp,omitempty"`
	Unlocked    []domain.Achievement `json:"unlocked,omitempty"`
	HistoryItem domain.HistoryItem   `json:"historyItem"`
}

// ApplyEvent computes the profile after one scan or build. The input profile is not
// modified.
func ApplyEvent(p domain.UserProfile, ev Event, opts Options) (domain.UserProfile, Outcome) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	next := p.Clone()
	amount := Award(ev.Source, ev.Difficulty, p.IsPremium)
	next.XP = p.XP + amount

	var levelUp *domain.Level
	next.Level, levelUp = advanceLevel(p.Level, next.XP)

	if ev.Source == domain.SourceBuild && ev.ProjectID != "" && !p.HasCompleted(ev.ProjectID) {
		next.CompletedProjectIDs = append(next.CompletedProjectIDs, ev.ProjectID)
	}

	item := domain.HistoryItem{
		ID:        opts.NewID(),
		ProjectID: ev.ProjectID,
		Type:      ev.Source,
		ItemName:  ev.ContextName,
		Date:      opts.Now.UTC().Format(time.RFC3339Nano),
		XPGained:  amount,
		Result:    ev.Result,
	}
	next.History = append(next.History, item)
	if opts.HistoryLimit > 0 && len(next.History) > opts.HistoryLimit {
		next.History = append([]domain.HistoryItem(nil), next.History[len(next.History)-opts.HistoryLimit:]...)
	}

	switch ev.Source {
	case domain.SourceScan:
		next.ScansCount++
	case domain.SourceBuild:
		next.BuildsCount++
	}

	// Rules must see the incremented counters, so evaluate against next, not p.
	next.Achievements = EvaluateAchievements(next, AchievementContext{Source: ev.Source, Difficulty: ev.Difficulty}, opts.Now)

	return next, Outcome{
		XPGained:    amount,
		LevelUp:     levelUp,
		Unlocked:    NewlyUnlocked(p.Achievements, next.Achievements),
		HistoryItem: item,
	}
}
