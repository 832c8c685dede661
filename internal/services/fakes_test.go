package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/clock"
	"github.com/yungbote/upcycleai/internal/platform/gemini"
	"github.com/yungbote/upcycleai/internal/platform/kvstore"
	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/realtime"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

var testNow = time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)

// ---- gemini.Client fake ----

type fakeClient struct {
	mu sync.Mutex

	jsonReply string
	textReply string
	image     gemini.Blob
	speech    gemini.Blob
	grounded  gemini.Grounded
	err       error

	jsonReqs   []gemini.JSONRequest
	textCalls  []string
	imageReqs  []gemini.ImageRequest
	speechReqs []gemini.SpeechRequest
	groundReqs []string
}

func (f *fakeClient) GenerateJSON(_ context.Context, req gemini.JSONRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonReqs = append(f.jsonReqs, req)
	return f.jsonReply, f.err
}

func (f *fakeClient) GenerateText(_ context.Context, model string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls = append(f.textCalls, model+"|"+prompt)
	return f.textReply, f.err
}

func (f *fakeClient) GenerateImage(_ context.Context, req gemini.ImageRequest) (gemini.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageReqs = append(f.imageReqs, req)
	return f.image, f.err
}

func (f *fakeClient) GenerateSpeech(_ context.Context, req gemini.SpeechRequest) (gemini.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speechReqs = append(f.speechReqs, req)
	return f.speech, f.err
}

func (f *fakeClient) GenerateGrounded(_ context.Context, model string, prompt string) (gemini.Grounded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groundReqs = append(f.groundReqs, prompt)
	return f.grounded, f.err
}

// ---- AnalysisGateway fake ----

type fakeGateway struct {
	mu sync.Mutex

	result   domain.AnalysisResult
	err      error
	image    []byte
	speech   []byte
	grounded []domain.GroundedMaterial
	// gate, when set, blocks image and speech calls until closed or the context ends.
	gate chan struct{}

	identifyCalls int
	imageCalls    int
	stepCalls     int
	speechCalls   int
	groundCalls   int
	lastTier      domain.QualityTier
	lastItem      string
	lastMime      string
}

func (f *fakeGateway) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) Identify(_ context.Context, req IdentifyRequest) (domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifyCalls++
	f.lastMime = req.MimeType
	if f.err != nil {
		return domain.AnalysisResult{}, &GenerationError{Op: OpIdentify, Err: f.err}
	}
	return f.result, nil
}

func (f *fakeGateway) QuickTip(context.Context) string { return "tip" }

func (f *fakeGateway) ProjectImage(ctx context.Context, title, originalItem string, tier domain.QualityTier) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	f.lastTier = tier
	f.lastItem = originalItem
	if f.err != nil {
		return nil, &GenerationError{Op: OpProjectImage, Err: f.err}
	}
	return f.image, nil
}

func (f *fakeGateway) StepImage(ctx context.Context, instruction, title, originalItem string, tier domain.QualityTier) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepCalls++
	if f.err != nil {
		return nil, &GenerationError{Op: OpStepImage, Err: f.err}
	}
	return f.image, nil
}

func (f *fakeGateway) Speech(ctx context.Context, text string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speechCalls++
	if f.err != nil {
		return nil, &GenerationError{Op: OpSpeech, Err: f.err}
	}
	return f.speech, nil
}

func (f *fakeGateway) GroundedMaterials(ctx context.Context, _ []string) []domain.GroundedMaterial {
	if err := f.wait(ctx); err != nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groundCalls++
	return f.grounded
}

func (f *fakeGateway) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeGateway) counts() (image, step, speech int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls, f.stepCalls, f.speechCalls
}

// ---- emitter that records messages ----

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (r *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingEmitter) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = string(m.Event)
	}
	return out
}

// ---- kv store that can be made to fail ----

type flakyKV struct {
	kvstore.Store
	mu      sync.Mutex
	failPut bool
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

// ---- fixtures ----

func sampleResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		IdentifiedItem: "glass jar",
		Projects: []domain.UpcycleProject{
			{
				ID:              "p-easy",
				Title:           "Herb Planter",
				Difficulty:      domain.DifficultyEasy,
				MaterialsNeeded: []string{"soil", "seeds"},
				Steps: []domain.Step{
					domain.SimpleStep("Clean the jar"),
					domain.SimpleStep("Add soil"),
				},
				SearchQuery: "DIY jar planter",
			},
			{
				ID:              "p-hard",
				Title:           "Jar Chandelier",
				Difficulty:      domain.DifficultyHard,
				MaterialsNeeded: []string{"wire", "bulbs"},
				Steps: []domain.Step{
					domain.DetailedStep(domain.StepDetail{Title: "Wire", Instruction: "Run the wire", DetailedDescription: "Thread it.", Tip: "Go slow"}),
				},
			},
		},
	}
}

type harness struct {
	kv       *kvstore.Memory
	clock    *clock.Manual
	emitter  *recordingEmitter
	gateway  *fakeGateway
	profiles ProfileStore
	projects ProjectCollection
	cache    ArtifactCache
	comp     Companion
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := testLogger(t)
	h := &harness{
		kv:      kvstore.NewMemory(),
		clock:   clock.NewManual(testNow),
		emitter: &recordingEmitter{},
		gateway: &fakeGateway{result: sampleResult(), image: []byte("png"), speech: make([]byte, 4800)},
	}
	h.profiles = NewProfileStore(log, h.kv, NewProfileNotifier(h.emitter), ProfileStoreConfig{Clock: h.clock, HistoryLimit: 100})
	h.projects = NewProjectCollection(log, h.kv, NewProjectNotifier(h.emitter))
	h.cache = NewArtifactCache(log, nil)
	h.comp = NewCompanion(log, h.gateway, h.profiles, h.projects, h.cache, NewProjectNotifier(h.emitter))
	if _, err := h.profiles.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return h
}

func (h *harness) upgrade(t *testing.T) {
	t.Helper()
	if _, err := h.profiles.UpgradeToPremium(context.Background()); err != nil {
		t.Fatalf("UpgradeToPremium: %v", err)
	}
}

func storedProfile(t *testing.T, kv kvstore.Store) domain.UserProfile {
	t.Helper()
	raw, err := kv.Get(context.Background(), profileKey)
	if err != nil {
		t.Fatalf("kv get profile: %v", err)
	}
	var p domain.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode stored profile: %v", err)
	}
	return p
}
