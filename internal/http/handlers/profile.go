package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/gamification"
	"github.com/yungbote/upcycleai/internal/http/response"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/services"
)

type ProfileHandler struct {
	Log      *logger.Logger
	Profiles services.ProfileStore
}

func NewProfileHandler(log *logger.Logger, profiles services.ProfileStore) *ProfileHandler {
	return &ProfileHandler{Log: log.With("handler", "ProfileHandler"), Profiles: profiles}
}

type ProfileView struct {
	domain.UserProfile
	LevelTitle string        `json:"levelTitle"`
	NextLevel  *domain.Level `json:"nextLevel,omitempty"`
	Progress   float64       `json:"progress"`
	ShareText  string        `json:"shareText"`
}

func NewProfileView(p domain.UserProfile) ProfileView {
	v := ProfileView{
		UserProfile: p,
		LevelTitle:  gamification.LevelFor(p.Level).Title,
		Progress:    gamification.LevelProgress(p),
		ShareText:   gamification.ShareText(p),
	}
	if next, ok := gamification.NextLevel(p.Level); ok {
		v.NextLevel = &next
	}
	return v
}

// GET /api/profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	response.RespondOK(c, NewProfileView(h.Profiles.Snapshot()))
}

// GET /api/profile/history
func (h *ProfileHandler) RecentScans(c *gin.Context) {
	response.RespondOK(c, gin.H{"history": h.Profiles.Snapshot().RecentScans()})
}

// PUT /api/profile/theme
func (h *ProfileHandler) UpdateTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, toAPIError(services.ErrValidation))
		return
	}
	p, err := h.Profiles.UpdateTheme(c.Request.Context(), domain.Theme(req.Theme))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, NewProfileView(p))
}

// POST /api/profile/premium
func (h *ProfileHandler) UpgradeToPremium(c *gin.Context) {
	p, err := h.Profiles.UpgradeToPremium(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	h.Log.Info("premium unlocked")
	response.RespondOK(c, NewProfileView(p))
}
