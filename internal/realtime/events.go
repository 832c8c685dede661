package realtime

type SSEEvent string

const (
	SSEEventLevelUp             SSEEvent = "LevelUp"
	SSEEventAchievementUnlocked SSEEvent = "AchievementUnlocked"
	SSEEventProfileUpdated      SSEEvent = "ProfileUpdated"
	SSEEventArtifactReady       SSEEvent = "ArtifactReady"
	SSEEventProjectUpdated      SSEEvent = "ProjectUpdated"
)

const (
	ChannelProfile   = "profile"
	ChannelProjects  = "projects"
	ChannelArtifacts = "artifacts"
)

// AllChannels is what a client subscribes to when it does not ask for specific ones.
var AllChannels = []string{ChannelProfile, ChannelProjects, ChannelArtifacts}

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
