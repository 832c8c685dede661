package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/http/response"
	"github.com/yungbote/upcycleai/internal/platform/audio"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/services"
)

type TutorialHandler struct {
	Log       *logger.Logger
	Tutorials services.Tutorials
}

func NewTutorialHandler(log *logger.Logger, tutorials services.Tutorials) *TutorialHandler {
	return &TutorialHandler{Log: log.With("handler", "TutorialHandler"), Tutorials: tutorials}
}

type tutorialView struct {
	ID           string              `json:"id"`
	ProjectID    string              `json:"projectId"`
	Title        string              `json:"title"`
	OriginalItem string              `json:"originalItem"`
	Tier         domain.QualityTier  `json:"tier"`
	Steps        []domain.StepDetail `json:"steps"`
}

// POST /api/tutorials
func (h *TutorialHandler) Open(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		response.RespondAPIError(c, toAPIError(services.ErrValidation))
		return
	}
	s, err := h.Tutorials.Open(req.ProjectID)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	c.JSON(http.StatusCreated, tutorialView{
		ID:           s.ID,
		ProjectID:    s.Project.ID,
		Title:        s.Project.Title,
		OriginalItem: s.OriginalItem,
		Tier:         s.Tier,
		Steps:        s.Steps,
	})
}

func (h *TutorialHandler) sessionStep(c *gin.Context) (*services.TutorialSession, int, bool) {
	s, ok := h.Tutorials.Get(c.Param("id"))
	if !ok {
		response.RespondError(c, http.StatusNotFound, "tutorial_not_found", services.ErrSessionClosed)
		return nil, 0, false
	}
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(services.ErrStepOutOfRange))
		return nil, 0, false
	}
	return s, step, true
}

// GET /api/tutorials/:id/steps/:step/image
func (h *TutorialHandler) StepImage(c *gin.Context) {
	s, step, ok := h.sessionStep(c)
	if !ok {
		return
	}
	fetch := s.StepImage
	if c.Query("retry") == "1" {
		fetch = s.RetryStepImage
	}
	img, err := fetch(c.Request.Context(), step)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(img), img)
}

// GET /api/tutorials/:id/steps/:step/audio
func (h *TutorialHandler) StepAudio(c *gin.Context) {
	s, step, ok := h.sessionStep(c)
	if !ok {
		return
	}
	pcm, err := s.StepAudio(c.Request.Context(), step)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	c.Data(http.StatusOK, "audio/wav", audio.WAV(pcm))
}

// DELETE /api/tutorials/:id
func (h *TutorialHandler) Close(c *gin.Context) {
	if !h.Tutorials.Close(c.Param("id")) {
		response.RespondError(c, http.StatusNotFound, "tutorial_not_found", services.ErrSessionClosed)
		return
	}
	c.Status(http.StatusNoContent)
}
