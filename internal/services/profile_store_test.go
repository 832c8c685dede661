package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/gamification"
	"github.com/yungbote/upcycleai/internal/platform/clock"
	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/realtime"
)

func newTestProfileStore(t *testing.T, kv kvstore.Store, c clock.Clock, emit SSEEmitter) ProfileStore {
	t.Helper()
	return NewProfileStore(testLogger(t), kv, NewProfileNotifier(emit), ProfileStoreConfig{Clock: c, HistoryLimit: 100})
}

func TestProfileLoadFirstLaunch(t *testing.T) {
	kv := kvstore.NewMemory()
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)

	p, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Level != 1 || p.XP != 0 || p.Streak != 0 {
		t.Fatalf("fresh profile: level=%d xp=%d streak=%d", p.Level, p.XP, p.Streak)
	}
	if p.Settings.Theme != domain.ThemeDark {
		t.Fatalf("theme: want=dark got=%s", p.Settings.Theme)
	}
	if got := storedProfile(t, kv); got.Level != 1 {
		t.Fatalf("fresh profile should be persisted, got=%+v", got)
	}
}

func TestProfileLoadMalformedFallsBackToDefaults(t *testing.T) {
	kv := kvstore.NewMemory()
	_ = kv.Put(context.Background(), profileKey, []byte(`{"xp": "lots",`))
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)

	p, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.XP != 0 || p.Level != 1 || len(p.Achievements) != len(domain.DefaultAchievements()) {
		t.Fatalf("want defaults got=%+v", p)
	}
}

func TestProfileLoadMigratesOldRecord(t *testing.T) {
	kv := kvstore.NewMemory()
	yesterday := testNow.AddDate(0, 0, -1).Format(time.RFC3339)
	old := fmt.Sprintf(`{"xp": 150, "level": 2, "scansCount": 3, "buildsCount": 1,
		"history": [], "lastActiveDate": %q, "streak": 2}`, yesterday)
	_ = kv.Put(context.Background(), profileKey, []byte(old))

	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)
	p, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.XP != 150 || p.Level != 2 {
		t.Fatalf("kept fields: xp=%d level=%d", p.XP, p.Level)
	}
	if p.CompletedProjectIDs == nil || len(p.CompletedProjectIDs) != 0 {
		t.Fatalf("completed ids should migrate to empty, got=%v", p.CompletedProjectIDs)
	}
	if len(p.Achievements) != 4 {
		t.Fatalf("achievements should migrate to defaults, got=%d", len(p.Achievements))
	}
	if p.IsPremium {
		t.Fatalf("isPremium should default to false")
	}
	if p.Settings.Theme != domain.ThemeDark {
		t.Fatalf("theme: want=dark got=%s", p.Settings.Theme)
	}
	// Active yesterday: the streak continues on load.
	if p.Streak != 3 {
		t.Fatalf("streak: want=3 got=%d", p.Streak)
	}
	if !p.LastActiveDate.Equal(testNow) {
		t.Fatalf("lastActiveDate: want=%s got=%s", testNow, p.LastActiveDate)
	}
}

func TestProfileApplyEventPersistsAndNotifies(t *testing.T) {
	kv := kvstore.NewMemory()
	emit := &recordingEmitter{}
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), emit)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := s.ApplyEvent(context.Background(), gamification.Event{
		Source:      domain.SourceBuild,
		ContextName: "Lamp",
		ProjectID:   "p1",
		Difficulty:  domain.DifficultyHard,
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if out.XPGained != 200 || out.LevelUp == nil || out.LevelUp.Level != 2 {
		t.Fatalf("outcome: %+v", out)
	}

	stored := storedProfile(t, kv)
	if stored.XP != 200 || stored.BuildsCount != 1 || !stored.HasCompleted("p1") {
		t.Fatalf("stored profile: %+v", stored)
	}

	events := emit.events()
	want := []string{
		string(realtime.SSEEventLevelUp),
		string(realtime.SSEEventAchievementUnlocked),
		string(realtime.SSEEventAchievementUnlocked),
		string(realtime.SSEEventProfileUpdated),
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Fatalf("events: want=%v got=%v", want, events)
	}
}

func TestProfileConcurrentEventsAreSerialized(t *testing.T) {
	kv := kvstore.NewMemory()
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ApplyEvent(context.Background(), gamification.Event{Source: domain.SourceScan, ContextName: "can"}); err != nil {
				t.Errorf("ApplyEvent: %v", err)
			}
		}()
	}
	wg.Wait()

	p := s.Snapshot()
	if p.XP != n*20 || p.ScansCount != n || len(p.History) != n {
		t.Fatalf("lost update: xp=%d scans=%d history=%d", p.XP, p.ScansCount, len(p.History))
	}
	if stored := storedProfile(t, kv); stored.XP != p.XP {
		t.Fatalf("stored xp: want=%d got=%d", p.XP, stored.XP)
	}
}

func TestProfileFailedPersistDoesNotCommit(t *testing.T) {
	kv := &flakyKV{Store: kvstore.NewMemory()}
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	kv.mu.Lock()
	kv.failPut = true
	kv.mu.Unlock()

	if _, err := s.ApplyEvent(context.Background(), gamification.Event{Source: domain.SourceScan}); err == nil {
		t.Fatalf("expected persist error")
	}
	if got := s.Snapshot().XP; got != 0 {
		t.Fatalf("xp after failed persist: want=0 got=%d", got)
	}
}

func TestProfileStreakAcrossDays(t *testing.T) {
	c := clock.NewManual(testNow)
	s := newTestProfileStore(t, kvstore.NewMemory(), c, nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c.Advance(24 * time.Hour)
	if _, err := s.ApplyEvent(context.Background(), gamification.Event{Source: domain.SourceScan}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	c.Advance(24 * time.Hour)
	p, err := s.TouchStreak(context.Background())
	if err != nil {
		t.Fatalf("TouchStreak: %v", err)
	}
	if p.Streak != 2 {
		t.Fatalf("streak: want=2 got=%d", p.Streak)
	}
	a, _ := p.Achievement(domain.AchievementStreakMaster)
	if a.Unlocked {
		t.Fatalf("touching the streak alone does not evaluate achievements")
	}

	c.Advance(72 * time.Hour)
	p, _ = s.TouchStreak(context.Background())
	if p.Streak != 1 {
		t.Fatalf("streak after a gap: want=1 got=%d", p.Streak)
	}
}

func TestProfileThemeAndPremium(t *testing.T) {
	kv := kvstore.NewMemory()
	s := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := s.UpdateTheme(context.Background(), "sepia"); err == nil {
		t.Fatalf("unknown theme should fail")
	}
	p, err := s.UpdateTheme(context.Background(), domain.ThemeLight)
	if err != nil || p.Settings.Theme != domain.ThemeLight {
		t.Fatalf("UpdateTheme: %v %+v", err, p.Settings)
	}
	p, err = s.UpgradeToPremium(context.Background())
	if err != nil || !p.IsPremium {
		t.Fatalf("UpgradeToPremium: %v premium=%v", err, p.IsPremium)
	}

	reloaded := newTestProfileStore(t, kv, clock.NewManual(testNow), nil)
	p, err = reloaded.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !p.IsPremium || p.Settings.Theme != domain.ThemeLight {
		t.Fatalf("reloaded: premium=%v theme=%s", p.IsPremium, p.Settings.Theme)
	}
}

func TestProfileSnapshotIsACopy(t *testing.T) {
	s := newTestProfileStore(t, kvstore.NewMemory(), clock.NewManual(testNow), nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	snap.Achievements[0].Unlocked = true
	snap.CompletedProjectIDs = append(snap.CompletedProjectIDs, "x")
	if again := s.Snapshot(); again.Achievements[0].Unlocked || len(again.CompletedProjectIDs) != 0 {
		t.Fatalf("snapshot aliases store state")
	}
}
