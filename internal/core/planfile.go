package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/valter-silva-au/trackforge/pkg/models"
	"gopkg.in/yaml.v3"
)

// PlanPhase declares a phase in a plan document.
type PlanPhase struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// PlanDocument is what a ContentGenerator proposes: a track and its tasks.
// For incremental additions only Tasks (and optionally Phases) are read.
type PlanDocument struct {
	Track       string            `yaml:"track" json:"track"`
	Title       string            `yaml:"title" json:"title"`
	BaselineRef string            `yaml:"baseline_ref,omitempty" json:"baseline_ref,omitempty"`
	Phases      []PlanPhase       `yaml:"phases" json:"phases"`
	Tasks       []models.TaskSpec `yaml:"tasks" json:"tasks"`
}

// ContentGenerator supplies task content. The engine consumes the document
// and never assumes how it was produced.
type ContentGenerator interface {
	Generate(ctx context.Context) (PlanDocument, error)
}

type planFileGenerator struct {
	path string
}

// NewPlanFileGenerator creates a ContentGenerator that reads a YAML plan
// file. Unknown keys are rejected.
func NewPlanFileGenerator(path string) ContentGenerator {
	return &planFileGenerator{path: path}
}

func (g *planFileGenerator) Generate(ctx context.Context) (PlanDocument, error) {
	if err := ctx.Err(); err != nil {
		return PlanDocument{}, err
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return PlanDocument{}, fmt.Errorf("reading plan file: %w", err)
	}
	doc, err := ParsePlan(data)
	if err != nil {
		return PlanDocument{}, fmt.Errorf("parsing plan file %s: %w", g.path, err)
	}
	return doc, nil
}

// ParsePlan decodes a YAML plan document.
func ParsePlan(data []byte) (PlanDocument, error) {
	var doc PlanDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return PlanDocument{}, errors.New("plan is empty")
		}
		return PlanDocument{}, err
	}
	return doc, nil
}
