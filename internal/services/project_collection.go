package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

const savedProjectsKey = "savedProjects"

// ProjectCollection holds the projects of the current analysis and the user's saved
// set. The same project may live in both; updates are fanned out to every copy and
// the saved set is persisted after each change to it.
type ProjectCollection interface {
	Load(ctx context.Context) error
	SetCurrent(result domain.AnalysisResult)
	Current() (domain.AnalysisResult, bool)
	Saved() []domain.UpcycleProject
	IsSaved(id string) bool
	Find(id string) (domain.UpcycleProject, bool)
	ToggleSave(ctx context.Context, p domain.UpcycleProject) ([]domain.UpcycleProject, error)
	MergeProjectUpdate(ctx context.Context, p domain.UpcycleProject) error
	// FillImage and FillGroundedMaterials only write empty fields; a filled field is
	// returned unchanged with filled=false.
	FillImage(ctx context.Context, id string, image []byte) (p domain.UpcycleProject, filled bool, err error)
	FillGroundedMaterials(ctx context.Context, id string, list []domain.GroundedMaterial) (p domain.UpcycleProject, filled bool, err error)
}

type projectCollection struct {
	log    *logger.Logger
	kv     kvstore.Store
	notify ProjectNotifier

	mu      sync.Mutex
	current *domain.AnalysisResult
	saved   []domain.UpcycleProject
}

func NewProjectCollection(log *logger.Logger, kv kvstore.Store, notify ProjectNotifier) ProjectCollection {
	return &projectCollection{
		log:    log.With("service", "ProjectCollection"),
		kv:     kv,
		notify: notify,
		saved:  []domain.UpcycleProject{},
	}
}

func cloneProject(p domain.UpcycleProject) domain.UpcycleProject {
	p.MaterialsNeeded = slices.Clone(p.MaterialsNeeded)
	p.Steps = slices.Clone(p.Steps)
	if p.GroundedMaterials != nil {
		p.GroundedMaterials = slices.Clone(p.GroundedMaterials)
	}
	return p
}

func cloneProjects(in []domain.UpcycleProject) []domain.UpcycleProject {
	out := make([]domain.UpcycleProject, len(in))
	for i, p := range in {
		out[i] = cloneProject(p)
	}
	return out
}

func (c *projectCollection) Load(ctx context.Context) error {
	raw, err := c.kv.Get(ctx, savedProjectsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load saved projects: %w", err)
	}
	var saved []domain.UpcycleProject
	if err := json.Unmarshal(raw, &saved); err != nil {
		c.log.Warn("stored saved projects are corrupt, starting empty", "error", err, "bytes", len(raw))
		saved = nil
	}
	if saved == nil {
		saved = []domain.UpcycleProject{}
	}
	c.mu.Lock()
	c.saved = saved
	c.mu.Unlock()
	c.log.Info("saved projects loaded", "count", len(saved))
	return nil
}

func (c *projectCollection) persistLocked(ctx context.Context, saved []domain.UpcycleProject) error {
	raw, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode saved projects: %w", err)
	}
	if err := c.kv.Put(ctx, savedProjectsKey, raw); err != nil {
		return fmt.Errorf("persist saved projects: %w", err)
	}
	return nil
}

// adoptCached copies generated fields from src into the blank fields of dst.
func adoptCached(dst *domain.UpcycleProject, src domain.UpcycleProject) {
	if !dst.HasImage() && src.HasImage() {
		dst.GeneratedImage = src.GeneratedImage
	}
	if !dst.HasGroundedMaterials() && src.HasGroundedMaterials() {
		dst.GroundedMaterials = slices.Clone(src.GroundedMaterials)
	}
}

// SetCurrent replaces the current analysis. Projects already saved keep their
// generated image and grounded materials.
func (c *projectCollection) SetCurrent(result domain.AnalysisResult) {
	result.Projects = cloneProjects(result.Projects)
	c.mu.Lock()
	for i := range result.Projects {
		if j := indexOf(c.saved, result.Projects[i].ID); j >= 0 {
			adoptCached(&result.Projects[i], c.saved[j])
		}
	}
	c.current = &result
	c.mu.Unlock()
}

func (c *projectCollection) Current() (domain.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.AnalysisResult{}, false
	}
	out := *c.current
	out.Projects = cloneProjects(c.current.Projects)
	return out, true
}

func (c *projectCollection) Saved() []domain.UpcycleProject {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneProjects(c.saved)
}

func (c *projectCollection) IsSaved(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return indexOf(c.saved, id) >= 0
}

func indexOf(projects []domain.UpcycleProject, id string) int {
	return slices.IndexFunc(projects, func(p domain.UpcycleProject) bool { return p.ID == id })
}

// findLocked returns a private copy. The current analysis wins, with blank cached
// fields taken from the saved copy.
func (c *projectCollection) findLocked(id string) (domain.UpcycleProject, bool) {
	si := indexOf(c.saved, id)
	if c.current != nil {
		if i := indexOf(c.current.Projects, id); i >= 0 {
			p := cloneProject(c.current.Projects[i])
			if si >= 0 {
				adoptCached(&p, c.saved[si])
			}
			return p, true
		}
	}
	if si >= 0 {
		return cloneProject(c.saved[si]), true
	}
	return domain.UpcycleProject{}, false
}

// Find prefers the current analysis over the saved copy.
func (c *projectCollection) Find(id string) (domain.UpcycleProject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(id)
}

func (c *projectCollection) ToggleSave(ctx context.Context, p domain.UpcycleProject) ([]domain.UpcycleProject, error) {
	if p.ID == "" {
		return nil, validationf("project id required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var next []domain.UpcycleProject
	if i := indexOf(c.saved, p.ID); i >= 0 {
		next = slices.Delete(slices.Clone(c.saved), i, i+1)
	} else {
		p = cloneProject(p)
		if cur, ok := c.findLocked(p.ID); ok {
			adoptCached(&p, cur)
		}
		next = append(slices.Clone(c.saved), p)
	}
	if err := c.persistLocked(ctx, next); err != nil {
		return nil, err
	}
	c.saved = next
	return cloneProjects(next), nil
}

// mergeLocked replaces every copy of p and persists when a saved copy changed.
// Generated fields already on a copy survive an update that lacks them.
func (c *projectCollection) mergeLocked(ctx context.Context, p domain.UpcycleProject) error {
	if i := indexOf(c.saved, p.ID); i >= 0 {
		next := slices.Clone(c.saved)
		next[i] = cloneProject(p)
		adoptCached(&next[i], c.saved[i])
		if err := c.persistLocked(ctx, next); err != nil {
			return err
		}
		c.saved = next
	}
	if c.current != nil {
		if i := indexOf(c.current.Projects, p.ID); i >= 0 {
			prev := c.current.Projects[i]
			c.current.Projects[i] = cloneProject(p)
			adoptCached(&c.current.Projects[i], prev)
		}
	}
	return nil
}

func (c *projectCollection) MergeProjectUpdate(ctx context.Context, p domain.UpcycleProject) error {
	c.mu.Lock()
	err := c.mergeLocked(ctx, p)
	var merged domain.UpcycleProject
	if err == nil {
		merged, _ = c.findLocked(p.ID)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.notify != nil && merged.ID != "" {
		c.notify.ProjectUpdated(merged)
	}
	return nil
}

// fill applies set to each copy of the project on its own, so one copy's cached
// field never overwrites another's. Only the copies set accepts are written.
func (c *projectCollection) fill(ctx context.Context, id string, set func(*domain.UpcycleProject) bool) (domain.UpcycleProject, bool, error) {
	c.mu.Lock()
	if _, ok := c.findLocked(id); !ok {
		c.mu.Unlock()
		return domain.UpcycleProject{}, false, ErrProjectNotFound
	}

	filled := false
	if i := indexOf(c.saved, id); i >= 0 {
		sp := cloneProject(c.saved[i])
		if set(&sp) {
			next := slices.Clone(c.saved)
			next[i] = sp
			if err := c.persistLocked(ctx, next); err != nil {
				c.mu.Unlock()
				return domain.UpcycleProject{}, false, err
			}
			c.saved = next
			filled = true
		}
	}
	if c.current != nil {
		if i := indexOf(c.current.Projects, id); i >= 0 {
			cp := cloneProject(c.current.Projects[i])
			if set(&cp) {
				c.current.Projects[i] = cp
				filled = true
			}
		}
	}
	p, _ := c.findLocked(id)
	c.mu.Unlock()

	if filled && c.notify != nil {
		c.notify.ProjectUpdated(p)
	}
	return p, filled, nil
}

func (c *projectCollection) FillImage(ctx context.Context, id string, image []byte) (domain.UpcycleProject, bool, error) {
	return c.fill(ctx, id, func(p *domain.UpcycleProject) bool {
		if p.HasImage() || len(image) == 0 {
			return false
		}
		p.GeneratedImage = base64.StdEncoding.EncodeToString(image)
		return true
	})
}

func (c *projectCollection) FillGroundedMaterials(ctx context.Context, id string, list []domain.GroundedMaterial) (domain.UpcycleProject, bool, error) {
	return c.fill(ctx, id, func(p *domain.UpcycleProject) bool {
		if p.HasGroundedMaterials() {
			return false
		}
		if list == nil {
			list = []domain.GroundedMaterial{}
		}
		p.GroundedMaterials = slices.Clone(list)
		return true
	})
}
