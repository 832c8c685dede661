package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/observability"
	"github.com/yungbote/upcycleai/internal/platform/ctxutil"
	"github.com/yungbote/upcycleai/internal/platform/gemini"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

const (
	OpIdentify     = "identify"
	OpQuickTip     = "quick_tip"
	OpProjectImage = "project_image"
	OpStepImage    = "step_image"
	OpSpeech       = "speech"
	OpGrounding    = "grounded_materials"
)

const (
	tipPrompt          = "Generate a short, catchy, 1-sentence motivating tip or quote about recycling, upcycling, or sustainability."
	tipFallbackEmpty   = "Recycling turns things into other things. Which is like magic."
	tipFallbackFailure = "Every small act of recycling makes a big difference."
)

type IdentifyRequest struct {
	Image    []byte
	MimeType string
	Prompt   string
	Category domain.Category
}

type GatewayConfig struct {
	IdentifyModel  string
	TipModel       string
	GroundingModel string
	SpeechModel    string
	Voice          string
	Temperature    float64
	Tiers          gemini.Tiers
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		IdentifyModel:  gemini.DefaultIdentifyModel,
		TipModel:       gemini.DefaultTipModel,
		GroundingModel: gemini.DefaultGroundingModel,
		SpeechModel:    gemini.DefaultSpeechModel,
		Voice:          gemini.DefaultVoice,
		Temperature:    0.4,
		Tiers:          gemini.DefaultTiers(),
	}
}

// AnalysisGateway is the only component that talks to the generative backend.
type AnalysisGateway interface {
	Identify(ctx context.Context, req IdentifyRequest) (domain.AnalysisResult, error)
	// QuickTip never fails; a static line is returned when the backend does.
	QuickTip(ctx context.Context) string
	ProjectImage(ctx context.Context, title, originalItem string, tier domain.QualityTier) ([]byte, error)
	StepImage(ctx context.Context, instruction, title, originalItem string, tier domain.QualityTier) ([]byte, error)
	// Speech returns raw 24 kHz mono s16le PCM.
	Speech(ctx context.Context, text string) ([]byte, error)
	// GroundedMaterials never fails; it returns an empty list instead.
	GroundedMaterials(ctx context.Context, names []string) []domain.GroundedMaterial
}

type analysisGateway struct {
	log    *logger.Logger
	client gemini.Client
	cfg    GatewayConfig
	newID  func() string
}

func NewAnalysisGateway(log *logger.Logger, client gemini.Client, cfg GatewayConfig) AnalysisGateway {
	def := DefaultGatewayConfig()
	if cfg.IdentifyModel == "" {
		cfg.IdentifyModel = def.IdentifyModel
	}
	if cfg.TipModel == "" {
		cfg.TipModel = def.TipModel
	}
	if cfg.GroundingModel == "" {
		cfg.GroundingModel = def.GroundingModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.Tiers.Standard.ImageModel == "" {
		cfg.Tiers.Standard = def.Tiers.Standard
	}
	if cfg.Tiers.High.ImageModel == "" {
		cfg.Tiers.High = def.Tiers.High
	}
	return &analysisGateway{
		log:    log.With("service", "AnalysisGateway"),
		client: client,
		cfg:    cfg,
		newID:  uuid.NewString,
	}
}

// track opens a span and returns the finisher that records outcome and latency.
func (g *analysisGateway) track(ctx context.Context, op, model string) (context.Context, func(outcome string, err error)) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "gateway."+op)
	span.SetAttributes(attribute.String("gen.op", op), attribute.String("gen.model", model))
	return ctx, func(outcome string, err error) {
		dur := time.Since(start)
		observability.Current().ObserveGeneration(op, model, outcome, dur)
		span.SetAttributes(attribute.String("gen.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		kv := append([]any{"op", op, "model", model, "outcome", outcome, "duration", dur.String()}, ctxutil.LogFields(ctx)...)
		if err != nil {
			g.log.Warn("generation failed", append(kv, "error", err)...)
		} else {
			g.log.Debug("generation done", kv...)
		}
	}
}

// ---- identify ----

var projectSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"identifiedItem": map[string]any{
			"type":        "STRING",
			"description": "The name of the main waste item identified in the image.",
		},
		"projects": map[string]any{
			"type":        "ARRAY",
			"description": "A list of 5 creative upcycling DIY projects.",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"id":           map[string]any{"type": "STRING", "description": "A unique UUID for this project."},
					"title":        map[string]any{"type": "STRING", "description": "Catchy title for the project."},
					"description":  map[string]any{"type": "STRING", "description": "Brief overview of what you will make."},
					"difficulty":   map[string]any{"type": "STRING", "enum": []string{"Easy", "Medium", "Hard"}},
					"timeEstimate": map[string]any{"type": "STRING", "description": "e.g., '30 mins', '2 hours'"},
					"materialsNeeded": map[string]any{
						"type":        "ARRAY",
						"items":       map[string]any{"type": "STRING"},
						"description": "List of additional materials needed.",
					},
					"steps": map[string]any{
						"type":        "ARRAY",
						"description": "Step-by-step instructions (approx 3-5 steps).",
						"items": map[string]any{
							"type": "OBJECT",
							"properties": map[string]any{
								"title":               map[string]any{"type": "STRING", "description": "Short title of the step (e.g., 'Cut the Bottle')"},
								"instruction":         map[string]any{"type": "STRING", "description": "The core action to perform."},
								"detailedDescription": map[string]any{"type": "STRING", "description": "2-3 sentences explaining exactly how to do it."},
								"tip":                 map[string]any{"type": "STRING", "description": "A helpful pro-tip to make it easier or better."},
								"caution":             map[string]any{"type": "STRING", "description": "Safety warning relevant to this step (e.g. 'Watch sharp edges')."},
							},
							"required": []string{"title", "instruction", "detailedDescription", "tip", "caution"},
						},
					},
					"searchQuery": map[string]any{
						"type":        "STRING",
						"description": "A highly optimized YouTube search query to find a video tutorial for this specific project. Include 'DIY', the material name, and the project type.",
					},
				},
				"required": []string{"id", "title", "description", "difficulty", "timeEstimate", "materialsNeeded", "steps", "searchQuery"},
			},
		},
	},
	"required": []string{"identifiedItem", "projects"},
}

func identifyPrompt(hasImage bool, userText string, category domain.Category) string {
	var b strings.Builder
	if hasImage {
		b.WriteString("Analyze this image and identify the main waste or recyclable object. ")
	} else {
		fmt.Fprintf(&b, "The user has the following item(s) to upcycle: %q. ", userText)
	}
	fmt.Fprintf(&b, "Suggest %d distinct, creative, and PRACTICAL DIY upcycling projects to turn this 'trash' into 'treasure'.\n\n", domain.ProjectsPerAnalysis)
	if userText != "" {
		fmt.Fprintf(&b, "USER CONTEXT/PREFERENCES: %q.\n\n", userText)
	}
	filtered := category != "" && category != domain.CategoryAll
	if filtered {
		fmt.Fprintf(&b, "IMPORTANT FILTER: The user ONLY wants projects related to %q. Do not suggest projects that do not fit this category.\n\n", string(category))
	}
	b.WriteString("CRITICAL RULES:\n")
	b.WriteString("1. Suggest projects that are physically possible for an average person.\n")
	b.WriteString("2. Avoid gimmicks or impossible logic.\n")
	if filtered {
		fmt.Fprintf(&b, "3. Focus STRICTLY on %s projects.\n", category)
	} else {
		b.WriteString("3. Focus on a mix of home decor, storage organization, and garden utilities.\n")
	}
	b.WriteString("4. Ensure materials needed are common household items.\n")
	b.WriteString("5. Generate a random UUID for the 'id' field.\n")
	b.WriteString("6. For 'searchQuery': Generate a specific string for YouTube.\n")
	b.WriteString("7. PROVIDE DETAILED STEPS: Each step must have a title, instruction, detailed description, tip, and safety caution.\n\n")
	b.WriteString("Return the result in JSON format.")
	return b.String()
}

func (g *analysisGateway) Identify(ctx context.Context, req IdentifyRequest) (domain.AnalysisResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if len(req.Image) == 0 && prompt == "" {
		return domain.AnalysisResult{}, validationf("image or description required")
	}

	ctx, done := g.track(ctx, OpIdentify, g.cfg.IdentifyModel)
	jr := gemini.JSONRequest{
		Model:       g.cfg.IdentifyModel,
		Prompt:      identifyPrompt(len(req.Image) > 0, prompt, req.Category),
		Schema:      projectSchema,
		Temperature: &g.cfg.Temperature,
	}
	if len(req.Image) > 0 {
		jr.Images = []gemini.Blob{{MimeType: req.MimeType, Data: req.Image}}
	}

	text, err := g.client.GenerateJSON(ctx, jr)
	if err != nil {
		done("error", err)
		return domain.AnalysisResult{}, &GenerationError{Op: OpIdentify, Err: err}
	}
	result, err := g.parseAnalysis(text)
	if err != nil {
		done("error", err)
		return domain.AnalysisResult{}, &GenerationError{Op: OpIdentify, Err: err}
	}
	done("ok", nil)
	return result, nil
}

// parseAnalysis decodes the structured output and repairs project identity: missing
// or repeated ids get a fresh uuid so caches keyed by id stay per-project.
func (g *analysisGateway) parseAnalysis(text string) (domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("malformed analysis: %w", err)
	}
	if len(result.Projects) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("analysis returned no projects")
	}
	seen := make(map[string]bool, len(result.Projects))
	for i := range result.Projects {
		p := &result.Projects[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || seen[p.ID] {
			p.ID = g.newID()
		}
		seen[p.ID] = true
		if d, ok := domain.ParseDifficulty(string(p.Difficulty)); ok {
			p.Difficulty = d
		}
		if p.MaterialsNeeded == nil {
			p.MaterialsNeeded = []string{}
		}
		p.GeneratedImage = ""
		p.GroundedMaterials = nil
	}
	result.IdentifiedItem = strings.TrimSpace(result.IdentifiedItem)
	return result, nil
}

// ---- tip ----

func (g *analysisGateway) QuickTip(ctx context.Context) string {
	ctx, done := g.track(ctx, OpQuickTip, g.cfg.TipModel)
	tip, err := g.client.GenerateText(ctx, g.cfg.TipModel, tipPrompt)
	if err != nil {
		done("fallback", err)
		return tipFallbackFailure
	}
	tip = strings.TrimSpace(tip)
	if tip == "" {
		done("fallback", nil)
		return tipFallbackEmpty
	}
	done("ok", nil)
	return tip
}

// ---- images ----

func projectImagePrompt(title, originalItem string) string {
	return fmt.Sprintf("A professional DIY product photography shot of a finished upcycling project: %q made from %q.\n"+
		"Bright lighting, clean background, aesthetic, realistic, finished product.", title, originalItem)
}

func stepImagePrompt(instruction, title, originalItem string) string {
	return fmt.Sprintf("Create a clean, colorful, 3D-style isometric ILLUSTRATION for a DIY instruction manual.\n"+
		"Action: %q. Context: %q from %q. Style: Toy-like 3D render, isometric, pastel background.", instruction, title, originalItem)
}

func (g *analysisGateway) ProjectImage(ctx context.Context, title, originalItem string, tier domain.QualityTier) ([]byte, error) {
	tc := g.cfg.Tiers.For(tier == domain.QualityHigh)
	return g.image(ctx, OpProjectImage, gemini.ImageRequest{
		Model:  tc.ImageModel,
		Prompt: projectImagePrompt(title, originalItem),
		Config: tc.ProjectImage(),
	})
}

func (g *analysisGateway) StepImage(ctx context.Context, instruction, title, originalItem string, tier domain.QualityTier) ([]byte, error) {
	tc := g.cfg.Tiers.For(tier == domain.QualityHigh)
	return g.image(ctx, OpStepImage, gemini.ImageRequest{
		Model:  tc.ImageModel,
		Prompt: stepImagePrompt(instruction, title, originalItem),
		Config: tc.StepImage(),
	})
}

func (g *analysisGateway) image(ctx context.Context, op string, req gemini.ImageRequest) ([]byte, error) {
	ctx, done := g.track(ctx, op, req.Model)
	blob, err := g.client.GenerateImage(ctx, req)
	if err != nil {
		done("error", err)
		return nil, &GenerationError{Op: op, Err: err}
	}
	done("ok", nil)
	return blob.Data, nil
}

// ---- speech ----

func (g *analysisGateway) Speech(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationf("empty text for speech")
	}
	ctx, done := g.track(ctx, OpSpeech, g.cfg.SpeechModel)
	blob, err := g.client.GenerateSpeech(ctx, gemini.SpeechRequest{Model: g.cfg.SpeechModel, Text: text, Voice: g.cfg.Voice})
	if err != nil {
		done("error", err)
		return nil, &GenerationError{Op: OpSpeech, Err: err}
	}
	done("ok", nil)
	return blob.Data, nil
}

// ---- grounding ----

func (g *analysisGateway) GroundedMaterials(ctx context.Context, names []string) []domain.GroundedMaterial {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return []domain.GroundedMaterial{}
	}

	ctx, done := g.track(ctx, OpGrounding, g.cfg.GroundingModel)
	prompt := fmt.Sprintf("Find where to buy or how to find these materials cheaply for a DIY project: %s.", strings.Join(clean, ", "))
	res, err := g.client.GenerateGrounded(ctx, g.cfg.GroundingModel, prompt)
	if err != nil {
		done("fallback", err)
		return []domain.GroundedMaterial{}
	}

	out := make([]domain.GroundedMaterial, 0, len(res.Sources))
	for _, src := range res.Sources {
		title := strings.TrimSpace(src.Title)
		if title == "" {
			title = "Resource"
		}
		out = append(out, domain.GroundedMaterial{Material: title, SearchURL: src.URI, Snippet: "Verified Source"})
	}
	if len(out) == 0 && res.Text != "" {
		out = append(out, domain.GroundedMaterial{
			Material:  "Project Resources",
			SearchURL: "https://www.google.com/search?q=" + url.QueryEscape(strings.Join(clean, " ")),
			Snippet:   "Manual Search Result",
		})
	}
	done("ok", nil)
	return out
}
