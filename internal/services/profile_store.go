package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/gamification"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/clock"
	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

const profileKey = "profile"

type ProfileStoreConfig struct {
	Clock        clock.Clock
	NewID        func() string
	HistoryLimit int
}

// ProfileStore owns the single user profile. Every mutation is a serialized
// read-modify-write that is persisted before it becomes visible.
type ProfileStore interface {
	Load(ctx context.Context) (domain.UserProfile, error)
	Snapshot() domain.UserProfile
	ApplyEvent(ctx context.Context, ev gamification.Event) (gamification.Outcome, error)
	UpdateTheme(ctx context.Context, theme domain.Theme) (domain.UserProfile, error)
	UpgradeToPremium(ctx context.Context) (domain.UserProfile, error)
	TouchStreak(ctx context.Context) (domain.UserProfile, error)
}

type profileStore struct {
	log    *logger.Logger
	kv     kvstore.Store
	notify ProfileNotifier
	cfg    ProfileStoreConfig

	mu      sync.Mutex
	profile domain.UserProfile
}

func NewProfileStore(log *logger.Logger, kv kvstore.Store, notify ProfileNotifier, cfg ProfileStoreConfig) ProfileStore {
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &profileStore{
		log:     log.With("service", "ProfileStore"),
		kv:      kv,
		notify:  notify,
		cfg:     cfg,
		profile: domain.NewProfile(cfg.Clock.Now()),
	}
}

// persistedProfile mirrors the stored JSON with optional fields so that records
// written by older versions can be told apart from explicit zero values.
type persistedProfile struct {
	XP                  int                  `json:"xp"`
	Level               int                  `json:"level"`
	ScansCount          int                  `json:"scansCount"`
	BuildsCount         int                  `json:"buildsCount"`
	CompletedProjectIDs []string             `json:"completedProjectIds"`
	History             []domain.HistoryItem `json:"history"`
	Streak              *int                 `json:"streak"`
	LastActiveDate      *string              `json:"lastActiveDate"`
	Achievements        []domain.Achievement `json:"achievements"`
	IsPremium           *bool                `json:"isPremium"`
	Settings            *domain.Settings     `json:"settings"`
}

// decodeProfile applies the forward migrations to a stored record.
func decodeProfile(raw []byte, now time.Time) (domain.UserProfile, error) {
	var pp persistedProfile
	if err := json.Unmarshal(raw, &pp); err != nil {
		return domain.UserProfile{}, err
	}
	p := domain.UserProfile{
		XP:                  pp.XP,
		Level:               pp.Level,
		ScansCount:          pp.ScansCount,
		BuildsCount:         pp.BuildsCount,
		CompletedProjectIDs: pp.CompletedProjectIDs,
		History:             pp.History,
		Achievements:        pp.Achievements,
		LastActiveDate:      now,
		Settings:            domain.Settings{Theme: domain.ThemeDark},
	}
	if p.Level < 1 {
		p.Level = 1
	}
	if p.CompletedProjectIDs == nil {
		p.CompletedProjectIDs = []string{}
	}
	if p.History == nil {
		p.History = []domain.HistoryItem{}
	}
	if p.Achievements == nil {
		p.Achievements = domain.DefaultAchievements()
	}
	if pp.Streak != nil {
		p.Streak = *pp.Streak
	}
	if pp.LastActiveDate != nil && *pp.LastActiveDate != "" {
		if t, err := time.Parse(time.RFC3339Nano, *pp.LastActiveDate); err == nil {
			p.LastActiveDate = t
		}
	}
	if pp.IsPremium != nil {
		p.IsPremium = *pp.IsPremium
	}
	if pp.Settings != nil {
		if theme, ok := domain.ParseTheme(string(pp.Settings.Theme)); ok {
			p.Settings.Theme = theme
		}
	}
	return p, nil
}

func (s *profileStore) Load(ctx context.Context) (domain.UserProfile, error) {
	now := s.cfg.Clock.Now()

	var p domain.UserProfile
	raw, err := s.kv.Get(ctx, profileKey)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		p = domain.NewProfile(now)
	case err != nil:
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	default:
		p, err = decodeProfile(raw, now)
		if err != nil {
			s.log.Warn("stored profile is corrupt, starting fresh", "error", err, "bytes", len(raw))
			p = domain.NewProfile(now)
		}
	}

	p.Streak, p.LastActiveDate = gamification.UpdateStreak(p, now)
	if err := s.save(ctx, p); err != nil {
		return domain.UserProfile{}, err
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()

	s.log.Info("profile loaded", "level", p.Level, "xp", p.XP, "streak", p.Streak)
	return p.Clone(), nil
}

func (s *profileStore) Snapshot() domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

func (s *profileStore) save(ctx context.Context, p domain.UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.kv.Put(ctx, profileKey, raw); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// update runs fn on a private copy and commits it only after it was persisted.
func (s *profileStore) update(ctx context.Context, fn func(p domain.UserProfile) domain.UserProfile) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.profile.Clone())
	if err := s.save(ctx, next); err != nil {
		return domain.UserProfile{}, err
	}
	s.profile = next
	return next.Clone(), nil
}

func (s *profileStore) ApplyEvent(ctx context.Context, ev gamification.Event) (gamification.Outcome, error) {
	var out gamification.Outcome
	var premium bool
	next, err := s.update(ctx, func(p domain.UserProfile) domain.UserProfile {
		now := s.cfg.Clock.Now()
		p.Streak, p.LastActiveDate = gamification.UpdateStreak(p, now)
		premium = p.IsPremium
		var applied domain.UserProfile
		applied, out = gamification.ApplyEvent(p, ev, gamification.Options{
			Now:          now,
			NewID:        s.cfg.NewID,
			HistoryLimit: s.cfg.HistoryLimit,
		})
		return applied
	})
	if err != nil {
		return gamification.Outcome{}, err
	}

	observability.Current().ObserveEvent(string(ev.Source), premium, out.XPGained)
	s.log.Info("event applied",
		"source", ev.Source,
		"xp_gained", out.XPGained,
		"xp", next.XP,
		"level", next.Level,
		"unlocked", len(out.Unlocked),
	)
	if s.notify != nil {
		if out.LevelUp != nil {
			s.notify.LevelUp(*out.LevelUp)
		}
		for _, a := range out.Unlocked {
			s.notify.AchievementUnlocked(a)
		}
		s.notify.ProfileUpdated(next)
	}
	return out, nil
}

func (s *profileStore) UpdateTheme(ctx context.Context, theme domain.Theme) (domain.UserProfile, error) {
	if _, ok := domain.ParseTheme(string(theme)); !ok {
		return domain.UserProfile{}, validationf("unknown theme %q", theme)
	}
	return s.update(ctx, func(p domain.UserProfile) domain.UserProfile {
		p.Settings.Theme = theme
		return p
	})
}

// UpgradeToPremium is one-way; there is no downgrade.
func (s *profileStore) UpgradeToPremium(ctx context.Context) (domain.UserProfile, error) {
	next, err := s.update(ctx, func(p domain.UserProfile) domain.UserProfile {
		p.IsPremium = true
		return p
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if s.notify != nil {
		s.notify.ProfileUpdated(next)
	}
	return next, nil
}

func (s *profileStore) TouchStreak(ctx context.Context) (domain.UserProfile, error) {
	return s.update(ctx, func(p domain.UserProfile) domain.UserProfile {
		p.Streak, p.LastActiveDate = gamification.UpdateStreak(p, s.cfg.Clock.Now())
		return p
	})
}
