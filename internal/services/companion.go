package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/gamification"
	"github.com/yungbote/upcycleai/internal/platform/imaging"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// savedItemName stands in for the source item of projects reached from the saved
// list, where the analysis they came from is no longer known.
const savedItemName = "Saved Item"

type AnalyzeResult struct {
	Result  domain.AnalysisResult `json:"result"`
	Outcome gamification.Outcome  `json:"outcome"`
}

// Companion sequences the gateway, the collection and the profile for one user.
type Companion interface {
	Analyze(ctx context.Context, req IdentifyRequest) (AnalyzeResult, error)
	CompleteBuild(ctx context.Context, projectID string) (gamification.Outcome, error)
	ExpandProject(ctx context.Context, projectID string) (domain.UpcycleProject, error)
	PrefetchImages(ctx context.Context, projectIDs []string, concurrency int) error
	FetchMaterials(ctx context.Context, projectID string) (domain.UpcycleProject, error)
	ReplayHistory(historyID string) (domain.AnalysisResult, error)
	OriginalItem(projectID string) string
	Tip(ctx context.Context) string
}

type companion struct {
	log      *logger.Logger
	gateway  AnalysisGateway
	profiles ProfileStore
	projects ProjectCollection
	cache    ArtifactCache
	notify   ProjectNotifier

	// materials serializes grounding lookups per project.
	materials singleflight.Group
}

func NewCompanion(
	log *logger.Logger,
	gateway AnalysisGateway,
	profiles ProfileStore,
	projects ProjectCollection,
	cache ArtifactCache,
	notify ProjectNotifier,
) Companion {
	return &companion{
		log:      log.With("service", "Companion"),
		gateway:  gateway,
		profiles: profiles,
		projects: projects,
		cache:    cache,
		notify:   notify,
	}
}

func (c *companion) Analyze(ctx context.Context, req IdentifyRequest) (AnalyzeResult, error) {
	if len(req.Image) == 0 && strings.TrimSpace(req.Prompt) == "" {
		return AnalyzeResult{}, validationf("image or description required")
	}
	if req.Category == "" {
		req.Category = domain.CategoryAll
	}
	if req.Category != domain.CategoryAll && !c.profiles.Snapshot().IsPremium {
		return AnalyzeResult{}, ErrPremiumRequired
	}
	if len(req.Image) > 0 {
		info, err := imaging.Inspect(req.Image)
		if err != nil {
			return AnalyzeResult{}, validationf("image: %v", err)
		}
		req.MimeType = info.MimeType
		c.log.Debug("image accepted", "mime", info.MimeType, "width", info.Width, "height", info.Height)
	}

	result, err := c.gateway.Identify(ctx, req)
	if err != nil {
		return AnalyzeResult{}, err
	}
	c.projects.SetCurrent(result)

	cached := result
	outcome, err := c.profiles.ApplyEvent(ctx, gamification.Event{
		Source:      domain.SourceScan,
		ContextName: result.IdentifiedItem,
		Result:      &cached,
	})
	if err != nil {
		return AnalyzeResult{}, err
	}
	c.log.Info("analysis complete", "item", result.IdentifiedItem, "projects", len(result.Projects), "category", req.Category)
	return AnalyzeResult{Result: result, Outcome: outcome}, nil
}

func (c *companion) CompleteBuild(ctx context.Context, projectID string) (gamification.Outcome, error) {
	p, ok := c.projects.Find(projectID)
	if !ok {
		return gamification.Outcome{}, ErrProjectNotFound
	}
	return c.profiles.ApplyEvent(ctx, gamification.Event{
		Source:      domain.SourceBuild,
		ContextName: p.Title,
		ProjectID:   p.ID,
		Difficulty:  p.Difficulty,
	})
}

func (c *companion) OriginalItem(projectID string) string {
	if cur, ok := c.projects.Current(); ok {
		if _, found := cur.FindProject(projectID); found && cur.IdentifiedItem != "" {
			return cur.IdentifiedItem
		}
	}
	return savedItemName
}

// ExpandProject fills the project's preview image once. A failure leaves the project
// untouched so calling again retries.
func (c *companion) ExpandProject(ctx context.Context, projectID string) (domain.UpcycleProject, error) {
	p, ok := c.projects.Find(projectID)
	if !ok {
		return domain.UpcycleProject{}, ErrProjectNotFound
	}
	if p.HasImage() {
		return p, nil
	}

	tier := domain.TierFor(c.profiles.Snapshot().IsPremium)
	item := c.OriginalItem(projectID)
	key := ProjectImageKey(projectID)
	img, err := c.cache.GetOrCreate(ctx, key, ArtifactImage, func(ctx context.Context) ([]byte, error) {
		return c.gateway.ProjectImage(ctx, p.Title, item, tier)
	})
	if err != nil {
		return domain.UpcycleProject{}, err
	}

	updated, filled, err := c.projects.FillImage(ctx, projectID, img)
	if err != nil {
		return domain.UpcycleProject{}, err
	}
	if filled && c.notify != nil {
		c.notify.ArtifactReady(key, projectID, ArtifactImage)
	}
	return updated, nil
}

// PrefetchImages expands several projects concurrently. Failures are logged and do
// not stop the others; only a cancelled context is returned.
func (c *companion) PrefetchImages(ctx context.Context, projectIDs []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 2
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range projectIDs {
		g.Go(func() error {
			if _, err := c.ExpandProject(gctx, id); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				c.log.Warn("prefetch image failed", "project_id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// FetchMaterials runs the grounded materials lookup once per project. It is a
// premium feature; the lookup itself never fails.
func (c *companion) FetchMaterials(ctx context.Context, projectID string) (domain.UpcycleProject, error) {
	if !c.profiles.Snapshot().IsPremium {
		return domain.UpcycleProject{}, ErrPremiumRequired
	}
	p, ok := c.projects.Find(projectID)
	if !ok {
		return domain.UpcycleProject{}, ErrProjectNotFound
	}
	if p.HasGroundedMaterials() {
		return p, nil
	}

	// The lookup swallows its own errors into an empty list, so it must not see a
	// caller's cancellation or "nothing found" would be stored for good.
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.materials.DoChan("project:"+projectID+":materials", func() (any, error) {
		if cur, ok := c.projects.Find(projectID); ok && cur.HasGroundedMaterials() {
			return cur, nil
		}
		list := c.gateway.GroundedMaterials(lookupCtx, p.MaterialsNeeded)
		updated, _, err := c.projects.FillGroundedMaterials(lookupCtx, projectID, list)
		return updated, err
	})
	select {
	case <-ctx.Done():
		return domain.UpcycleProject{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.UpcycleProject{}, res.Err
		}
		return res.Val.(domain.UpcycleProject), nil
	}
}

// ReplayHistory reopens a past scan from its cached result without calling the
// backend or awarding XP.
func (c *companion) ReplayHistory(historyID string) (domain.AnalysisResult, error) {
	item, ok := c.profiles.Snapshot().FindHistory(historyID)
	if !ok || item.Result == nil {
		return domain.AnalysisResult{}, ErrHistoryNotFound
	}
	c.projects.SetCurrent(*item.Result)
	res, _ := c.projects.Current()
	return res, nil
}

func (c *companion) Tip(ctx context.Context) string {
	return c.gateway.QuickTip(ctx)
}
