package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type StepKind int

const (
	StepSimple StepKind = iota
	StepDetailed
)

// StepDetail is the structured form every consumer works with.
type StepDetail struct {
	Title               string `json:"title"`
	Instruction         string `json:"instruction"`
	DetailedDescription string `json:"detailedDescription"`
	Tip                 string `json:"tip"`
	Caution             string `json:"caution,omitempty"`
}

// Step is either a legacy plain-text instruction or a StepDetail.
// Older saved projects stored steps as bare strings.
type Step struct {
	Kind   StepKind
	Text   string
	Detail StepDetail
}

func SimpleStep(text string) Step { return Step{Kind: StepSimple, Text: text} }

func DetailedStep(d StepDetail) Step { return Step{Kind: StepDetailed, Detail: d} }

func (s Step) MarshalJSON() ([]byte, error) {
	if s.Kind == StepSimple {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Detail)
}

func (s *Step) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("step: empty value")
	}
	switch b[0] {
	case '"':
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		*s = SimpleStep(text)
		return nil
	case '{':
		var d StepDetail
		if err := json.Unmarshal(b, &d); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		*s = DetailedStep(d)
		return nil
	default:
		return fmt.Errorf("step: unsupported json %q", string(b[:1]))
	}
}

const (
	legacyStepDescription = "Follow the instruction carefully to ensure the best result."
	legacyStepTip         = "Take your time with this step."
	legacyStepCaution     = "Be careful when using tools."
)

// Normalize returns the detailed form of the step at position index.
func (s Step) Normalize(index int) StepDetail {
	if s.Kind == StepDetailed {
		return s.Detail
	}
	return StepDetail{
		Title:               "Step " + strconv.Itoa(index+1),
		Instruction:         s.Text,
		DetailedDescription: legacyStepDescription,
		Tip:                 legacyStepTip,
		Caution:             legacyStepCaution,
	}
}

// Instruction is the core action text regardless of variant.
func (s Step) Instruction() string {
	if s.Kind == StepSimple {
		return s.Text
	}
	return s.Detail.Instruction
}

func NormalizeSteps(steps []Step) []StepDetail {
	out := make([]StepDetail, len(steps))
	for i, s := range steps {
		out[i] = s.Normalize(i)
	}
	return out
}

// ReadAloudText is what the narration voice reads for a step.
func (d StepDetail) ReadAloudText() string {
	return d.Title + ". " + d.Instruction + ". " + d.DetailedDescription + ". Tip: " + d.Tip
}
