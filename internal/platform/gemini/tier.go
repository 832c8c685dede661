package gemini

const (
	DefaultIdentifyModel  = "gemini-2.5-flash-lite-latest"
	DefaultTipModel       = "gemini-3-flash-preview"
	DefaultGroundingModel = "gemini-3-flash-preview"
	DefaultSpeechModel    = "gemini-2.5-flash-preview-tts"
	DefaultVoice          = "Kore"

	DefaultStandardImageModel = "gemini-2.5-flash-image"
	DefaultHighImageModel     = "gemini-3-pro-image-preview"
)

const (
	AspectSquare = "1:1"
	AspectWide   = "16:9"
)

// TierConfig is everything that differs between quality tiers for image generation.
// An empty ImageSize means the request carries no image config at all.
type TierConfig struct {
	ImageModel    string `json:"imageModel" yaml:"imageModel"`
	ImageSize     string `json:"imageSize,omitempty" yaml:"imageSize,omitempty"`
	ProjectAspect string `json:"projectAspect,omitempty" yaml:"projectAspect,omitempty"`
	StepAspect    string `json:"stepAspect,omitempty" yaml:"stepAspect,omitempty"`
}

type Tiers struct {
	Standard TierConfig
	High     TierConfig
}

func DefaultTiers() Tiers {
	return Tiers{
		Standard: TierConfig{ImageModel: DefaultStandardImageModel},
		High: TierConfig{
			ImageModel:    DefaultHighImageModel,
			ImageSize:     "1K",
			ProjectAspect: AspectSquare,
			StepAspect:    AspectWide,
		},
	}
}

func (t Tiers) For(high bool) TierConfig {
	if high {
		return t.High
	}
	return t.Standard
}

// ProjectImage returns the image config for a finished-project shot, or nil.
func (c TierConfig) ProjectImage() *ImageConfig {
	return c.imageConfig(c.ProjectAspect)
}

// StepImage returns the image config for a step illustration, or nil.
func (c TierConfig) StepImage() *ImageConfig {
	return c.imageConfig(c.StepAspect)
}

func (c TierConfig) imageConfig(aspect string) *ImageConfig {
	if c.ImageSize == "" {
		return nil
	}
	return &ImageConfig{ImageSize: c.ImageSize, AspectRatio: aspect}
}
