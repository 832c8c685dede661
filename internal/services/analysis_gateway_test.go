package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/gemini"
)

const analysisJSON = `{
  "identifiedItem": " plastic bottle ",
  "projects": [
    {"id": "a", "title": "Bird Feeder", "difficulty": "easy", "materialsNeeded": ["string"],
     "steps": [{"title": "Cut", "instruction": "Cut a hole", "detailedDescription": "Use a knife.", "tip": "Mark first", "caution": "Sharp"}],
     "searchQuery": "DIY bottle bird feeder"},
    {"id": "a", "title": "Pen Holder", "difficulty": "Medium", "steps": []},
    {"title": "Lamp", "difficulty": "HARD", "steps": []}
  ]
}`

func newTestGateway(t *testing.T, c *fakeClient) *analysisGateway {
	t.Helper()
	n := 0
	g := NewAnalysisGateway(testLogger(t), c, DefaultGatewayConfig()).(*analysisGateway)
	g.newID = func() string {
		n++
		return "gen-" + string(rune('0'+n))
	}
	return g
}

func TestIdentifyParsesAndRepairsIDs(t *testing.T) {
	c := &fakeClient{jsonReply: analysisJSON}
	g := newTestGateway(t, c)

	res, err := g.Identify(context.Background(), IdentifyRequest{Image: []byte{1, 2, 3}, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.IdentifiedItem != "plastic bottle" {
		t.Fatalf("identified item: want=%q got=%q", "plastic bottle", res.IdentifiedItem)
	}
	if len(res.Projects) != 3 {
		t.Fatalf("projects: want=3 got=%d", len(res.Projects))
	}
	wantIDs := []string{"a", "gen-1", "gen-2"}
	for i, p := range res.Projects {
		if p.ID != wantIDs[i] {
			t.Fatalf("project %d id: want=%q got=%q", i, wantIDs[i], p.ID)
		}
		if p.MaterialsNeeded == nil {
			t.Fatalf("project %d materials should be non-nil", i)
		}
		if p.HasGroundedMaterials() || p.HasImage() {
			t.Fatalf("project %d should start without artifacts", i)
		}
	}
	wantDiff := []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard}
	for i, p := range res.Projects {
		if p.Difficulty != wantDiff[i] {
			t.Fatalf("project %d difficulty: want=%s got=%s", i, wantDiff[i], p.Difficulty)
		}
	}
	if got := res.Projects[0].Steps[0].Kind; got != domain.StepDetailed {
		t.Fatalf("step kind: want detailed got=%v", got)
	}

	if len(c.jsonReqs) != 1 {
		t.Fatalf("json requests: want=1 got=%d", len(c.jsonReqs))
	}
	req := c.jsonReqs[0]
	if req.Model != gemini.DefaultIdentifyModel {
		t.Fatalf("model: want=%s got=%s", gemini.DefaultIdentifyModel, req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0.4 {
		t.Fatalf("temperature: want=0.4 got=%v", req.Temperature)
	}
	if len(req.Images) != 1 || req.Images[0].MimeType != "image/png" {
		t.Fatalf("images: got=%+v", req.Images)
	}
	if !strings.HasPrefix(req.Prompt, "Analyze this image") {
		t.Fatalf("prompt should start with the image clause: %q", req.Prompt)
	}
	if strings.Contains(req.Prompt, "IMPORTANT FILTER") {
		t.Fatalf("no category filter expected: %q", req.Prompt)
	}
	if req.Schema["type"] != "OBJECT" {
		t.Fatalf("schema root type: got=%v", req.Schema["type"])
	}
}

func TestIdentifyTextPromptWithCategory(t *testing.T) {
	c := &fakeClient{jsonReply: analysisJSON}
	g := newTestGateway(t, c)

	_, err := g.Identify(context.Background(), IdentifyRequest{Prompt: "old jeans", Category: domain.CategoryGarden})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	req := c.jsonReqs[0]
	if len(req.Images) != 0 {
		t.Fatalf("no images expected, got=%d", len(req.Images))
	}
	for _, want := range []string{
		`The user has the following item(s) to upcycle: "old jeans".`,
		`USER CONTEXT/PREFERENCES: "old jeans".`,
		`IMPORTANT FILTER: The user ONLY wants projects related to "Garden".`,
		"3. Focus STRICTLY on Garden projects.",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
}

func TestIdentifyFailures(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeClient
	}{
		{"backend error", &fakeClient{err: errors.New("boom")}},
		{"malformed json", &fakeClient{jsonReply: "{not json"}},
		{"no projects", &fakeClient{jsonReply: `{"identifiedItem":"can","projects":[]}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, tc.client)
			_, err := g.Identify(context.Background(), IdentifyRequest{Prompt: "can"})
			var ge *GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("want GenerationError got=%v", err)
			}
			if ge.Op != OpIdentify {
				t.Fatalf("op: want=%s got=%s", OpIdentify, ge.Op)
			}
		})
	}
}

func TestIdentifyRejectsEmptyRequest(t *testing.T) {
	c := &fakeClient{}
	g := newTestGateway(t, c)
	_, err := g.Identify(context.Background(), IdentifyRequest{Prompt: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation got=%v", err)
	}
	if len(c.jsonReqs) != 0 {
		t.Fatalf("backend should not be called, got=%d", len(c.jsonReqs))
	}
}

func TestQuickTipFallbacks(t *testing.T) {
	g := newTestGateway(t, &fakeClient{textReply: "  Reuse first.  "})
	if got := g.QuickTip(context.Background()); got != "Reuse first." {
		t.Fatalf("tip: want=%q got=%q", "Reuse first.", got)
	}

	g = newTestGateway(t, &fakeClient{textReply: ""})
	if got := g.QuickTip(context.Background()); got != tipFallbackEmpty {
		t.Fatalf("empty tip: want=%q got=%q", tipFallbackEmpty, got)
	}

	g = newTestGateway(t, &fakeClient{err: errors.New("offline")})
	if got := g.QuickTip(context.Background()); got != tipFallbackFailure {
		t.Fatalf("failed tip: want=%q got=%q", tipFallbackFailure, got)
	}
}

func TestImageTiers(t *testing.T) {
	c := &fakeClient{image: gemini.Blob{MimeType: "image/png", Data: []byte("img")}}
	g := newTestGateway(t, c)
	ctx := context.Background()

	if _, err := g.ProjectImage(ctx, "Lamp", "bottle", domain.QualityStandard); err != nil {
		t.Fatalf("ProjectImage standard: %v", err)
	}
	if _, err := g.ProjectImage(ctx, "Lamp", "bottle", domain.QualityHigh); err != nil {
		t.Fatalf("ProjectImage high: %v", err)
	}
	data, err := g.StepImage(ctx, "Cut", "Lamp", "bottle", domain.QualityHigh)
	if err != nil {
		t.Fatalf("StepImage: %v", err)
	}
	if string(data) != "img" {
		t.Fatalf("image bytes: got=%q", data)
	}

	std, high, step := c.imageReqs[0], c.imageReqs[1], c.imageReqs[2]
	if std.Model != gemini.DefaultStandardImageModel || std.Config != nil {
		t.Fatalf("standard request: %+v", std)
	}
	if high.Model != gemini.DefaultHighImageModel || high.Config == nil || high.Config.AspectRatio != "1:1" || high.Config.ImageSize != "1K" {
		t.Fatalf("high project request: %+v", high)
	}
	if step.Config == nil || step.Config.AspectRatio != "16:9" {
		t.Fatalf("high step request: %+v", step)
	}
	if !strings.Contains(std.Prompt, `"Lamp" made from "bottle"`) {
		t.Fatalf("project prompt: %q", std.Prompt)
	}
	if !strings.Contains(step.Prompt, `Action: "Cut". Context: "Lamp" from "bottle".`) {
		t.Fatalf("step prompt: %q", step.Prompt)
	}
}

func TestImageFailureIsGenerationError(t *testing.T) {
	g := newTestGateway(t, &fakeClient{err: gemini.ErrNoInlineData})
	_, err := g.StepImage(context.Background(), "Cut", "Lamp", "bottle", domain.QualityStandard)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Op != OpStepImage {
		t.Fatalf("want step image GenerationError got=%v", err)
	}
	if !errors.Is(err, gemini.ErrNoInlineData) {
		t.Fatalf("cause should be kept: %v", err)
	}
}

func TestSpeech(t *testing.T) {
	c := &fakeClient{speech: gemini.Blob{Data: []byte{0, 1}}}
	g := newTestGateway(t, c)

	if _, err := g.Speech(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty text: want ErrValidation got=%v", err)
	}
	if len(c.speechReqs) != 0 {
		t.Fatalf("empty text must not reach the backend")
	}
	pcm, err := g.Speech(context.Background(), "Step 1. Cut.")
	if err != nil {
		t.Fatalf("Speech: %v", err)
	}
	if len(pcm) != 2 {
		t.Fatalf("pcm: want=2 bytes got=%d", len(pcm))
	}
	if v := c.speechReqs[0].Voice; v != gemini.DefaultVoice {
		t.Fatalf("voice: want=%s got=%s", gemini.DefaultVoice, v)
	}
}

func TestGroundedMaterials(t *testing.T) {
	c := &fakeClient{grounded: gemini.Grounded{
		Text: "try a hardware store",
		Sources: []gemini.WebSource{
			{URI: "https://a.example", Title: "Store A"},
			{URI: "https://b.example"},
		},
	}}
	g := newTestGateway(t, c)
	got := g.GroundedMaterials(context.Background(), []string{"glue", " ", "wire"})
	if len(got) != 2 {
		t.Fatalf("materials: want=2 got=%d", len(got))
	}
	if got[0] != (domain.GroundedMaterial{Material: "Store A", SearchURL: "https://a.example", Snippet: "Verified Source"}) {
		t.Fatalf("first: %+v", got[0])
	}
	if got[1].Material != "Resource" {
		t.Fatalf("untitled source: want=Resource got=%q", got[1].Material)
	}
	if want := "Find where to buy or how to find these materials cheaply for a DIY project: glue, wire."; c.groundReqs[0] != want {
		t.Fatalf("prompt: want=%q got=%q", want, c.groundReqs[0])
	}
}

func TestGroundedMaterialsFallbacks(t *testing.T) {
	g := newTestGateway(t, &fakeClient{grounded: gemini.Grounded{Text: "search around"}})
	got := g.GroundedMaterials(context.Background(), []string{"glue", "wire"})
	if len(got) != 1 {
		t.Fatalf("manual entry expected, got=%d", len(got))
	}
	if got[0].SearchURL != "https://www.google.com/search?q=glue+wire" || got[0].Snippet != "Manual Search Result" {
		t.Fatalf("manual entry: %+v", got[0])
	}

	g = newTestGateway(t, &fakeClient{err: errors.New("quota")})
	got = g.GroundedMaterials(context.Background(), []string{"glue"})
	if got == nil || len(got) != 0 {
		t.Fatalf("failure should give an empty list, got=%v", got)
	}

	c := &fakeClient{}
	g = newTestGateway(t, c)
	if got := g.GroundedMaterials(context.Background(), nil); len(got) != 0 || len(c.groundReqs) != 0 {
		t.Fatalf("no names should not call the backend")
	}
}
