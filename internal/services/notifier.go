package services

import (
	"context"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/realtime"
)

// =========================
// Profile notifier
// =========================

type ProfileNotifier interface {
	LevelUp(level domain.Level)
	AchievementUnlocked(a domain.Achievement)
	ProfileUpdated(p domain.UserProfile)
}

type profileNotifier struct {
	emit SSEEmitter
}

func NewProfileNotifier(emit SSEEmitter) ProfileNotifier {
	return &profileNotifier{emit: emit}
}

func (n *profileNotifier) LevelUp(level domain.Level) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ChannelProfile,
		Event:   realtime.SSEEventLevelUp,
		Data:    map[string]any{"level": level},
	})
}

func (n *profileNotifier) AchievementUnlocked(a domain.Achievement) {
	observability.Current().IncAchievement(a.ID)
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ChannelProfile,
		Event:   realtime.SSEEventAchievementUnlocked,
		Data:    map[string]any{"achievement": a},
	})
}

func (n *profileNotifier) ProfileUpdated(p domain.UserProfile) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ChannelProfile,
		Event:   realtime.SSEEventProfileUpdated,
		Data: map[string]any{
			"xp":          p.XP,
			"level":       p.Level,
			"streak":      p.Streak,
			"scansCount":  p.ScansCount,
			"buildsCount": p.BuildsCount,
			"isPremium":   p.IsPremium,
		},
	})
}

// =========================
// Project notifier
// =========================

type ProjectNotifier interface {
	ProjectUpdated(p domain.UpcycleProject)
	ArtifactReady(key string, projectID string, kind string)
}

type projectNotifier struct {
	emit SSEEmitter
}

func NewProjectNotifier(emit SSEEmitter) ProjectNotifier {
	return &projectNotifier{emit: emit}
}

func (n *projectNotifier) ProjectUpdated(p domain.UpcycleProject) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ChannelProjects,
		Event:   realtime.SSEEventProjectUpdated,
		Data: map[string]any{
			"projectId":            p.ID,
			"hasImage":             p.HasImage(),
			"hasGroundedMaterials": p.HasGroundedMaterials(),
		},
	})
}

func (n *projectNotifier) ArtifactReady(key string, projectID string, kind string) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.ChannelArtifacts,
		Event:   realtime.SSEEventArtifactReady,
		Data:    map[string]any{"key": key, "projectId": projectID, "kind": kind},
	})
}
