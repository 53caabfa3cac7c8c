package cms

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daniacca/cmsim/internal/emodl"
	"gopkg.in/yaml.v3"
)

type SpeciesConfig struct {
	Name       string `json:"name" yaml:"name"`
	Population int64  `json:"population,omitempty" yaml:"population,omitempty"`
	// Observe defaults to true when omitted.
	Observe *bool `json:"observe,omitempty" yaml:"observe,omitempty"`
}

type ParameterConfig struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

type FunctionConfig struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

type ReactionConfig struct {
	Name       string   `json:"name" yaml:"name"`
	Reactants  []string `json:"reactants" yaml:"reactants"`
	Products   []string `json:"products" yaml:"products"`
	Propensity string   `json:"propensity" yaml:"propensity"`
}

// ModelConfig is the structured model description exchanged over HTTP and
// stored in model files.
type ModelConfig struct {
	Name        string            `json:"name" yaml:"name"`
	Species     []SpeciesConfig   `json:"species" yaml:"species"`
	Parameters  []ParameterConfig `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Functions   []FunctionConfig  `json:"functions,omitempty" yaml:"functions,omitempty"`
	Reactions   []ReactionConfig  `json:"reactions" yaml:"reactions"`
	Populations map[string]int64  `json:"populations,omitempty" yaml:"populations,omitempty"`
}

// BuildModel builds a model from its structured description. Builder errors
// (duplicate names, malformed expressions, negative populations) are all
// collected into a single *ValidationError. Referential checks are left to
// Validate.
func BuildModel(cfg ModelConfig) (*Model, error) {
	m := NewModel(cfg.Name)
	verr := &ValidationError{}

	record := func(kind Kind, name string, err error) {
		if err == nil {
			return
		}
		v := Violation{Kind: InvalidValue, Subject: subject(kind, name), Name: name, Detail: err.Error()}
		var dup *DuplicateNameError
		var syn *emodl.SyntaxError
		switch {
		case errors.As(err, &dup):
			v.Kind = DuplicateName
			v.Detail = "already declared as " + dup.Existing.String()
		case errors.As(err, &syn):
			v.Kind = SyntaxViolation
			v.Detail = syn.Error()
		}
		verr.Add(v)
	}

	for _, sp := range cfg.Species {
		observe := sp.Observe == nil || *sp.Observe
		record(KindSpecies, sp.Name, m.AddSpecies(sp.Name, sp.Population, observe))
	}
	for _, p := range cfg.Parameters {
		record(KindParameter, p.Name, m.AddParameter(p.Name, p.Value))
	}
	for _, f := range cfg.Functions {
		record(KindFunction, f.Name, m.AddFunction(f.Name, f.Expr))
	}
	for _, r := range cfg.Reactions {
		record(KindReaction, r.Name, m.AddReaction(r.Name, r.Reactants, r.Products, r.Propensity))
	}
	if len(cfg.Populations) > 0 {
		if err := m.SetPopulations(cfg.Populations); err != nil {
			verr.Add(Violation{Kind: InvalidValue, Subject: "populations", Detail: err.Error()})
		}
	}

	if verr.HasIssues() {
		return nil, verr
	}
	return m, nil
}

// Config returns the structured description of the model. Population
// overrides are folded into the species entries.
func (m *Model) Config() ModelConfig {
	cfg := ModelConfig{Name: m.Name}
	for _, sp := range m.Species() {
		observe := sp.Observe
		cfg.Species = append(cfg.Species, SpeciesConfig{Name: sp.Name, Population: sp.Initial, Observe: &observe})
	}
	for _, p := range m.Parameters() {
		cfg.Parameters = append(cfg.Parameters, ParameterConfig{Name: p.Name, Value: p.Value})
	}
	for _, f := range m.Functions() {
		cfg.Functions = append(cfg.Functions, FunctionConfig{Name: f.Name, Expr: f.Expr.String()})
	}
	for _, r := range m.Reactions() {
		cfg.Reactions = append(cfg.Reactions, ReactionConfig{
			Name:       r.Name,
			Reactants:  r.Reactants,
			Products:   r.Products,
			Propensity: r.Propensity.String(),
		})
	}
	return cfg
}

// DecodeModelConfig decodes a JSON or YAML model description. format is a
// file extension or media subtype ("json", "yaml", "yml").
func DecodeModelConfig(data []byte, format string) (ModelConfig, error) {
	var cfg ModelConfig
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return ModelConfig{}, fmt.Errorf("parsing model JSON: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ModelConfig{}, fmt.Errorf("parsing model YAML: %w", err)
		}
	default:
		return ModelConfig{}, fmt.Errorf("unsupported model format %q", format)
	}
	return cfg, nil
}

// LoadModelFile reads a model description from a .json, .yaml or .yml file
// and builds it.
func LoadModelFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	cfg, err := DecodeModelConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	m, err := BuildModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("building model: %w", err)
	}
	return m, nil
}
