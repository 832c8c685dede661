package domain

import (
	"encoding/base64"
	"net/url"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty accepts any casing; unknown values report ok=false.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	default:
		return "", false
	}
}

type Category string

const (
	CategoryAll          Category = "All"
	CategoryDecor        Category = "Decor"
	CategoryOrganization Category = "Organization"
	CategoryGarden       Category = "Garden"
	CategoryFashion      Category = "Fashion"
	CategoryKids         Category = "Kids"
	CategoryFurniture    Category = "Furniture"
)

var Categories = []Category{
	CategoryAll, CategoryDecor, CategoryOrganization, CategoryGarden,
	CategoryFashion, CategoryKids, CategoryFurniture,
}

// ParseCategory maps user input onto a Category. Empty input is All.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryAll, true
	}
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

type QualityTier string

const (
	QualityStandard QualityTier = "standard"
	QualityHigh     QualityTier = "high"
)

// TierFor resolves the generation tier from premium status.
func TierFor(isPremium bool) QualityTier {
	if isPremium {
		return QualityHigh
	}
	return QualityStandard
}

type GroundedMaterial struct {
	Material  string `json:"material"`
	SearchURL string `json:"searchUrl"`
	Snippet   string `json:"snippet"`
}

type UpcycleProject struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Difficulty        Difficulty         `json:"difficulty"`
	TimeEstimate      string             `json:"timeEstimate"`
	MaterialsNeeded   []string           `json:"materialsNeeded"`
	Steps             []Step             `json:"steps"`
	SearchQuery       string             `json:"searchQuery"`
	GeneratedImage    string             `json:"generatedImage,omitempty"`
	GroundedMaterials []GroundedMaterial `json:"groundedMaterials"`
}

func (p UpcycleProject) HasImage() bool { return p.GeneratedImage != "" }

// ImageBytes decodes the stored base64 image. ok is false when there is none or it
// does not decode.
func (p UpcycleProject) ImageBytes() ([]byte, bool) {
	if p.GeneratedImage == "" {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(p.GeneratedImage)
	if err != nil {
		return nil, false
	}
	return b, true
}

// HasGroundedMaterials reports whether the lookup already ran. An empty but non-nil
// list counts as filled: a lookup that found nothing is not repeated.
func (p UpcycleProject) HasGroundedMaterials() bool { return p.GroundedMaterials != nil }

// VideoSearchURL is the external video lookup for the project.
func (p UpcycleProject) VideoSearchURL() string {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(p.SearchQuery)
}

// ShareText is the text offered when sharing a single project.
func (p UpcycleProject) ShareText(originalItem string) string {
	return "Check out this DIY project: " + p.Title + ". It transforms " + originalItem + " into something new!"
}

type AnalysisResult struct {
	IdentifiedItem string           `json:"identifiedItem"`
	Projects       []UpcycleProject `json:"projects"`
}

// ProjectsPerAnalysis is the size the backend is asked to produce.
const ProjectsPerAnalysis = 5

// FindProject returns the project with the given id.
func (r *AnalysisResult) FindProject(id string) (UpcycleProject, bool) {
	if r == nil {
		return UpcycleProject{}, false
	}
	for _, p := range r.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return UpcycleProject{}, false
}
