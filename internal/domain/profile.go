package domain

import (
	"slices"
	"time"
)

type EventSource string

const (
	SourceScan  EventSource = "scan"
	SourceBuild EventSource = "build"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(s string) (Theme, bool) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), true
	default:
		return "", false
	}
}

// HistoryItem is immutable once appended to a profile.
type HistoryItem struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId,omitempty"`
	Type      EventSource     `json:"type"`
	ItemName  string          `json:"itemName"`
	Date      string          `json:"date"`
	XPGained  int             `json:"xpGained"`
	Result    *AnalysisResult `json:"result,omitempty"`
}

type Achievement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlockedAt,omitempty"`
}

const (
	AchievementFirstStep     = "first_step"
	AchievementScavengerKing = "scavenger_king"
	AchievementStreakMaster  = "streak_master"
	AchievementExpertBuilder = "expert_builder"
)

// DefaultAchievements returns a fresh, fully locked achievement set.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: AchievementFirstStep, Title: "First Step", Description: "Complete your first upcycling project.", Icon: AchievementFirstStep},
		{ID: AchievementScavengerKing, Title: "Scavenger King", Description: "Scan 10 different items.", Icon: AchievementScavengerKing},
		{ID: AchievementStreakMaster, Title: "Consistency Is Key", Description: "Maintain a 3-day activity streak.", Icon: AchievementStreakMaster},
		{ID: AchievementExpertBuilder, Title: "Expert Builder", Description: `Complete a "Hard" difficulty project.`, Icon: AchievementExpertBuilder},
	}
}

type Settings struct {
	Theme Theme `json:"theme"`
}

type UserProfile struct {
	XP                  int           `json:"xp"`
	Level               int           `json:"level"`
	ScansCount          int           `json:"scansCount"`
	BuildsCount         int           `json:"buildsCount"`
	CompletedProjectIDs []string      `json:"completedProjectIds"`
	History             []HistoryItem `json:"history"`
	Streak              int           `json:"streak"`
	LastActiveDate      time.Time     `json:"lastActiveDate"`
	Achievements        []Achievement `json:"achievements"`
	IsPremium           bool          `json:"isPremium"`
	Settings            Settings      `json:"settings"`
}

// NewProfile is the state of a first launch.
func NewProfile(now time.Time) UserProfile {
	return UserProfile{
		XP:                  0,
		Level:               1,
		CompletedProjectIDs: []string{},
		History:             []HistoryItem{},
		Streak:              0,
		LastActiveDate:      now,
		Achievements:        DefaultAchievements(),
		Settings:            Settings{Theme: ThemeDark},
	}
}

// Clone deep-copies the slices so a snapshot can be handed out without aliasing.
// History items and cached results are immutable and are shared.
func (p UserProfile) Clone() UserProfile {
	out := p
	out.CompletedProjectIDs = slices.Clone(p.CompletedProjectIDs)
	out.History = slices.Clone(p.History)
	out.Achievements = make([]Achievement, len(p.Achievements))
	for i, a := range p.Achievements {
		if a.UnlockedAt != nil {
			at := *a.UnlockedAt
			a.UnlockedAt = &at
		}
		out.Achievements[i] = a
	}
	return out
}

func (p UserProfile) HasCompleted(projectID string) bool {
	return slices.Contains(p.CompletedProjectIDs, projectID)
}

func (p UserProfile) Achievement(id string) (Achievement, bool) {
	for _, a := range p.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// FindHistory looks up a history item by id.
func (p UserProfile) FindHistory(id string) (HistoryItem, bool) {
	for _, h := range p.History {
		if h.ID == id {
			return h, true
		}
	}
	return HistoryItem{}, false
}

// RecentScans lists scan entries that carry a replayable result, newest first.
func (p UserProfile) RecentScans() []HistoryItem {
	out := make([]HistoryItem, 0)
	for i := len(p.History) - 1; i >= 0; i-- {
		h := p.History[i]
		if h.Type == SourceScan && h.Result != nil {
			out = append(out, h)
		}
	}
	return out
}
