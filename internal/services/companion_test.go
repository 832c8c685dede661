package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/artifactstore"
)

func TestAnalyzeAppliesScanWithCachedResult(t *testing.T) {
	h := newHarness(t)
	out, err := h.comp.Analyze(context.Background(), IdentifyRequest{Prompt: "glass jar"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Outcome.XPGained != 20 {
		t.Fatalf("scan xp: want=20 got=%d", out.Outcome.XPGained)
	}
	p := h.profiles.Snapshot()
	if p.ScansCount != 1 || len(p.History) != 1 {
		t.Fatalf("profile: scans=%d history=%d", p.ScansCount, len(p.History))
	}
	if item := p.History[0]; item.Result == nil || item.ItemName != "glass jar" {
		t.Fatalf("history item: %+v", item)
	}
	if _, ok := h.projects.Current(); !ok {
		t.Fatalf("analysis should become current")
	}
}

func TestAnalyzeCategoryNeedsPremium(t *testing.T) {
	h := newHarness(t)
	req := IdentifyRequest{Prompt: "jar", Category: domain.CategoryGarden}
	if _, err := h.comp.Analyze(context.Background(), req); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("want ErrPremiumRequired got=%v", err)
	}
	if h.gateway.identifyCalls != 0 {
		t.Fatalf("backend should not be called")
	}
	h.upgrade(t)
	if _, err := h.comp.Analyze(context.Background(), req); err != nil {
		t.Fatalf("premium Analyze: %v", err)
	}
}

func TestAnalyzeFailureAwardsNothing(t *testing.T) {
	h := newHarness(t)
	h.gateway.setErr(errors.New("bad gateway"))
	_, err := h.comp.Analyze(context.Background(), IdentifyRequest{Prompt: "jar"})
	if !IsGenerationError(err) {
		t.Fatalf("want GenerationError got=%v", err)
	}
	if p := h.profiles.Snapshot(); p.XP != 0 || p.ScansCount != 0 {
		t.Fatalf("failed analysis changed the profile: %+v", p)
	}
}

func TestCompleteBuildHardProject(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())

	out, err := h.comp.CompleteBuild(context.Background(), "p-hard")
	if err != nil {
		t.Fatalf("CompleteBuild: %v", err)
	}
	if out.XPGained != 200 || out.LevelUp == nil {
		t.Fatalf("outcome: %+v", out)
	}
	p := h.profiles.Snapshot()
	a, _ := p.Achievement(domain.AchievementExpertBuilder)
	if !a.Unlocked {
		t.Fatalf("expert_builder should unlock")
	}
	if _, err := h.comp.CompleteBuild(context.Background(), "nope"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("want ErrProjectNotFound got=%v", err)
	}
}

func TestExpandProjectIsWriteOnce(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	ctx := context.Background()

	p, err := h.comp.ExpandProject(ctx, "p-easy")
	if err != nil {
		t.Fatalf("ExpandProject: %v", err)
	}
	if !p.HasImage() {
		t.Fatalf("image should be filled")
	}
	for i := 0; i < 3; i++ {
		if _, err := h.comp.ExpandProject(ctx, "p-easy"); err != nil {
			t.Fatalf("ExpandProject again: %v", err)
		}
	}
	if img, _, _ := h.gateway.counts(); img != 1 {
		t.Fatalf("image calls: want=1 got=%d", img)
	}
	if h.gateway.lastItem != "glass jar" || h.gateway.lastTier != domain.QualityStandard {
		t.Fatalf("image request: item=%q tier=%s", h.gateway.lastItem, h.gateway.lastTier)
	}
}

func TestExpandProjectFailureCanRetry(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	ctx := context.Background()

	h.gateway.setErr(errors.New("no image"))
	if _, err := h.comp.ExpandProject(ctx, "p-easy"); !IsGenerationError(err) {
		t.Fatalf("want GenerationError got=%v", err)
	}
	if p, _ := h.projects.Find("p-easy"); p.HasImage() {
		t.Fatalf("failure must not fill the slot")
	}

	h.gateway.setErr(nil)
	p, err := h.comp.ExpandProject(ctx, "p-easy")
	if err != nil || !p.HasImage() {
		t.Fatalf("retry: err=%v hasImage=%v", err, p.HasImage())
	}
	if img, _, _ := h.gateway.counts(); img != 2 {
		t.Fatalf("image calls: want=2 got=%d", img)
	}
}

func TestExpandSavedProjectUsesPlaceholderItem(t *testing.T) {
	h := newHarness(t)
	if _, err := h.projects.ToggleSave(context.Background(), sampleResult().Projects[0]); err != nil {
		t.Fatalf("ToggleSave: %v", err)
	}
	h.upgrade(t)
	if _, err := h.comp.ExpandProject(context.Background(), "p-easy"); err != nil {
		t.Fatalf("ExpandProject: %v", err)
	}
	if h.gateway.lastItem != savedItemName || h.gateway.lastTier != domain.QualityHigh {
		t.Fatalf("saved expand: item=%q tier=%s", h.gateway.lastItem, h.gateway.lastTier)
	}
	if !h.projects.Saved()[0].HasImage() {
		t.Fatalf("saved copy should carry the image")
	}
}

func TestFetchMaterials(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	ctx := context.Background()

	if _, err := h.comp.FetchMaterials(ctx, "p-easy"); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("want ErrPremiumRequired got=%v", err)
	}
	h.upgrade(t)
	h.gateway.grounded = []domain.GroundedMaterial{{Material: "Shop", SearchURL: "https://shop.example", Snippet: "Verified Source"}}
	p, err := h.comp.FetchMaterials(ctx, "p-easy")
	if err != nil {
		t.Fatalf("FetchMaterials: %v", err)
	}
	if len(p.GroundedMaterials) != 1 {
		t.Fatalf("materials: %+v", p.GroundedMaterials)
	}
	if _, err := h.comp.FetchMaterials(ctx, "p-easy"); err != nil {
		t.Fatalf("FetchMaterials again: %v", err)
	}
	if h.gateway.groundCalls != 1 {
		t.Fatalf("grounding calls: want=1 got=%d", h.gateway.groundCalls)
	}
}

func TestFetchMaterialsConcurrentSingleLookup(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	h.upgrade(t)
	h.gateway.grounded = []domain.GroundedMaterial{{Material: "Shop", SearchURL: "https://shop.example"}}
	h.gateway.gate = make(chan struct{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := h.comp.FetchMaterials(context.Background(), "p-easy")
			if err == nil && len(p.GroundedMaterials) != 1 {
				err = errors.New("missing materials")
			}
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(h.gateway.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("FetchMaterials: %v", err)
		}
	}
	h.gateway.mu.Lock()
	calls := h.gateway.groundCalls
	h.gateway.mu.Unlock()
	if calls != 1 {
		t.Fatalf("grounding calls: want=1 got=%d", calls)
	}
}

func TestFetchMaterialsCallerCancelDoesNotStoreEmpty(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	h.upgrade(t)
	h.gateway.grounded = []domain.GroundedMaterial{{Material: "Shop"}}
	h.gateway.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.comp.FetchMaterials(ctx, "p-easy")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got=%v", err)
	}
	close(h.gateway.gate)

	p, err := h.comp.FetchMaterials(context.Background(), "p-easy")
	if err != nil {
		t.Fatalf("FetchMaterials: %v", err)
	}
	if len(p.GroundedMaterials) != 1 {
		t.Fatalf("materials: want=1 got=%+v", p.GroundedMaterials)
	}
}

func TestReplayHistory(t *testing.T) {
	h := newHarness(t)
	out, err := h.comp.Analyze(context.Background(), IdentifyRequest{Prompt: "jar"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	h.projects.SetCurrent(domain.AnalysisResult{IdentifiedItem: "other"})

	res, err := h.comp.ReplayHistory(out.Outcome.HistoryItem.ID)
	if err != nil {
		t.Fatalf("ReplayHistory: %v", err)
	}
	if res.IdentifiedItem != "glass jar" {
		t.Fatalf("replayed item: %q", res.IdentifiedItem)
	}
	if cur, _ := h.projects.Current(); cur.IdentifiedItem != "glass jar" {
		t.Fatalf("replay should become current")
	}
	if h.gateway.identifyCalls != 1 {
		t.Fatalf("replay must not call the backend")
	}
	if _, err := h.comp.ReplayHistory("missing"); !errors.Is(err, ErrHistoryNotFound) {
		t.Fatalf("want ErrHistoryNotFound got=%v", err)
	}
}

func TestReplayKeepsSavedArtifacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, err := h.comp.Analyze(ctx, IdentifyRequest{Prompt: "jar"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	h.upgrade(t)
	h.gateway.grounded = []domain.GroundedMaterial{{Material: "Shop", SearchURL: "https://shop.example"}}
	if _, err := h.projects.ToggleSave(ctx, out.Result.Projects[0]); err != nil {
		t.Fatalf("ToggleSave: %v", err)
	}
	if _, err := h.comp.ExpandProject(ctx, "p-easy"); err != nil {
		t.Fatalf("ExpandProject: %v", err)
	}
	if _, err := h.comp.FetchMaterials(ctx, "p-easy"); err != nil {
		t.Fatalf("FetchMaterials: %v", err)
	}
	saved := h.projects.Saved()[0]

	if _, err := h.comp.ReplayHistory(out.Outcome.HistoryItem.ID); err != nil {
		t.Fatalf("ReplayHistory: %v", err)
	}
	cur, _ := h.projects.Current()
	if cur.Projects[0].GeneratedImage != saved.GeneratedImage || len(cur.Projects[0].GroundedMaterials) != 1 {
		t.Fatalf("replayed project lost its artifacts: %+v", cur.Projects[0])
	}

	if _, err := h.comp.ExpandProject(ctx, "p-easy"); err != nil {
		t.Fatalf("ExpandProject after replay: %v", err)
	}
	p, err := h.comp.FetchMaterials(ctx, "p-easy")
	if err != nil {
		t.Fatalf("FetchMaterials after replay: %v", err)
	}
	if len(p.GroundedMaterials) != 1 {
		t.Fatalf("materials: %+v", p.GroundedMaterials)
	}
	if h.gateway.groundCalls != 1 {
		t.Fatalf("grounding calls: want=1 got=%d", h.gateway.groundCalls)
	}
	if img, _, _ := h.gateway.counts(); img != 1 {
		t.Fatalf("image calls: want=1 got=%d", img)
	}
	again := h.projects.Saved()[0]
	if again.GeneratedImage != saved.GeneratedImage || len(again.GroundedMaterials) != 1 {
		t.Fatalf("saved copy changed: %+v", again)
	}
}

func TestPrefetchImages(t *testing.T) {
	h := newHarness(t)
	h.projects.SetCurrent(sampleResult())
	if err := h.comp.PrefetchImages(context.Background(), []string{"p-easy", "p-hard", "missing"}, 2); err != nil {
		t.Fatalf("PrefetchImages: %v", err)
	}
	cur, _ := h.projects.Current()
	for _, p := range cur.Projects {
		if !p.HasImage() {
			t.Fatalf("project %s not prefetched", p.ID)
		}
	}
}

func TestArtifactCacheSharesConcurrentFetch(t *testing.T) {
	store := artifactstore.NewMemory()
	cache := NewArtifactCache(testLogger(t), store)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("pcm"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	started := make(chan struct{}, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			v, err := cache.GetOrCreate(context.Background(), "k", ArtifactAudio, fetch)
			if err == nil && string(v) != "pcm" {
				err = errors.New("wrong value " + string(v))
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls: want=1 got=%d", got)
	}

	if _, err := cache.GetOrCreate(context.Background(), "k", ArtifactAudio, fetch); err != nil {
		t.Fatalf("cached GetOrCreate: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("cached lookup fetched again: calls=%d", got)
	}
}

func TestArtifactCacheEarlyLeaverKeepsSharedFetch(t *testing.T) {
	cache := NewArtifactCache(testLogger(t), nil)
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		select {
		case <-release:
			return []byte("img"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaverCtx, cancel := context.WithCancel(context.Background())
	leaverErr := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCreate(leaverCtx, "k", ArtifactImage, fetch)
		leaverErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	stayer := make(chan []byte, 1)
	go func() {
		v, _ := cache.GetOrCreate(context.Background(), "k", ArtifactImage, fetch)
		stayer <- v
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-leaverErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leaver: want context.Canceled got=%v", err)
	}
	close(release)
	select {
	case v := <-stayer:
		if string(v) != "img" {
			t.Fatalf("stayer: want=img got=%q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stayer never got the artifact")
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch calls: want=1 got=%d", calls.Load())
	}
}

func TestArtifactCacheLastLeaverCancelsFetch(t *testing.T) {
	cache := NewArtifactCache(testLogger(t), nil)
	cancelled := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := cache.GetOrCreate(ctx, "k", ArtifactImage, fetch); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled got=%v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("abandoned fetch kept running")
	}

	v, err := cache.GetOrCreate(context.Background(), "k", ArtifactImage, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	if err != nil || string(v) != "fresh" {
		t.Fatalf("retry after abandon: v=%q err=%v", v, err)
	}
}

func TestArtifactCacheKeepsFirstValue(t *testing.T) {
	store := artifactstore.NewMemory()
	if _, err := store.PutIfAbsent(context.Background(), "k", []byte("winner")); err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	cache := NewArtifactCache(testLogger(t), store)
	v, err := cache.GetOrCreate(context.Background(), "k", ArtifactImage, func(context.Context) ([]byte, error) {
		return []byte("loser"), nil
	})
	if err != nil || string(v) != "winner" {
		t.Fatalf("want winner got=%q err=%v", v, err)
	}
}

func TestArtifactKeys(t *testing.T) {
	cases := map[string]string{
		ProjectImageKey("p1"): "project:p1:image",
		StepImageKey("p1", 2): "project:p1:step:2:image",
		StepAudioKey("p1", 0): "project:p1:step:0:audio",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("key: want=%q got=%q", want, got)
		}
	}
}

func TestAnalyzeValidatesImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.comp.Analyze(ctx, IdentifyRequest{Image: []byte("definitely not a photo"), MimeType: "image/jpeg"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("garbage image: want ErrValidation got=%v", err)
	}
	if h.gateway.identifyCalls != 0 {
		t.Fatalf("gateway called for rejected image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := h.comp.Analyze(ctx, IdentifyRequest{Image: buf.Bytes(), MimeType: "application/octet-stream"}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if h.gateway.lastMime != "image/png" {
		t.Fatalf("mime: want=image/png got=%q", h.gateway.lastMime)
	}
}
