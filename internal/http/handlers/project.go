package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/http/response"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/services"
)

type ProjectHandler struct {
	Log       *logger.Logger
	Companion services.Companion
	Projects  services.ProjectCollection
	Profiles  services.ProfileStore
}

func NewProjectHandler(log *logger.Logger, companion services.Companion, projects services.ProjectCollection, profiles services.ProfileStore) *ProjectHandler {
	return &ProjectHandler{
		Log:       log.With("handler", "ProjectHandler"),
		Companion: companion,
		Projects:  projects,
		Profiles:  profiles,
	}
}

type ProjectView struct {
	domain.UpcycleProject
	Saved          bool                `json:"saved"`
	Completed      bool                `json:"completed"`
	VideoSearchURL string              `json:"videoSearchUrl"`
	ShareText      string              `json:"shareText"`
	StepDetails    []domain.StepDetail `json:"stepDetails"`
}

func (h *ProjectHandler) view(p domain.UpcycleProject) ProjectView {
	return ProjectView{
		UpcycleProject: p,
		Saved:          h.Projects.IsSaved(p.ID),
		Completed:      h.Profiles.Snapshot().HasCompleted(p.ID),
		VideoSearchURL: p.VideoSearchURL(),
		ShareText:      p.ShareText(h.Companion.OriginalItem(p.ID)),
		StepDetails:    domain.NormalizeSteps(p.Steps),
	}
}

// GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, ok := h.Projects.Find(c.Param("id"))
	if !ok {
		response.RespondAPIError(c, toAPIError(services.ErrProjectNotFound))
		return
	}
	response.RespondOK(c, h.view(p))
}

// GET /api/projects/:id/image
func (h *ProjectHandler) GetImage(c *gin.Context) {
	p, ok := h.Projects.Find(c.Param("id"))
	if !ok {
		response.RespondAPIError(c, toAPIError(services.ErrProjectNotFound))
		return
	}
	if !p.HasImage() {
		response.RespondError(c, http.StatusNotFound, "image_not_generated", errors.New("project has no image yet"))
		return
	}
	data, ok := p.ImageBytes()
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "image_corrupt", errors.New("stored image does not decode"))
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// POST /api/projects/:id/expand
func (h *ProjectHandler) Expand(c *gin.Context) {
	p, err := h.Companion.ExpandProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, h.view(p))
}

// POST /api/projects/:id/materials
func (h *ProjectHandler) Materials(c *gin.Context) {
	p, err := h.Companion.FetchMaterials(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"projectId": p.ID, "groundedMaterials": p.GroundedMaterials})
}

// POST /api/projects/:id/complete
func (h *ProjectHandler) Complete(c *gin.Context) {
	out, err := h.Companion.CompleteBuild(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"outcome": out, "profile": NewProfileView(h.Profiles.Snapshot())})
}

// GET /api/saved
func (h *ProjectHandler) ListSaved(c *gin.Context) {
	saved := h.Projects.Saved()
	out := make([]ProjectView, len(saved))
	for i, p := range saved {
		out[i] = h.view(p)
	}
	response.RespondOK(c, gin.H{"projects": out})
}

// POST /api/saved/:id/toggle
func (h *ProjectHandler) ToggleSave(c *gin.Context) {
	id := c.Param("id")
	p, ok := h.Projects.Find(id)
	if !ok {
		response.RespondAPIError(c, toAPIError(services.ErrProjectNotFound))
		return
	}
	if _, err := h.Projects.ToggleSave(c.Request.Context(), p); err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"projectId": id, "saved": h.Projects.IsSaved(id)})
}
