package client

import (
	"testing"

	"github.com/daniacca/cmsim/internal/cms"
)

func sirBuilder() *ModelBuilder {
	return NewModel("sir").
		Species("S", 990).
		Species("I", 10).
		HiddenSpecies("R", 0).
		Param("beta", 0.3).
		Param("gamma", 0.1).
		Reaction(NewReaction("infection").From("S", "I").To("I", "I").Rate(Div(Mul("beta", "S", "I"), "N"))).
		Reaction(NewReaction("recovery").From("I").To("R").Rate(Mul("gamma", "I"))).
		Func("N", Add("S", "I", "R"))
}

func TestModelBuilder(t *testing.T) {
	cfg := sirBuilder().Build()

	if cfg.Name != "sir" {
		t.Errorf("Expected name 'sir', got '%s'", cfg.Name)
	}
	if len(cfg.Species) != 3 || len(cfg.Parameters) != 2 || len(cfg.Functions) != 1 || len(cfg.Reactions) != 2 {
		t.Fatalf("Unexpected shape: %+v", cfg)
	}
	if cfg.Species[0].Observe != nil {
		t.Error("Expected observed species to leave Observe unset")
	}
	if cfg.Species[2].Observe == nil || *cfg.Species[2].Observe {
		t.Error("Expected R to be hidden")
	}
	if got := cfg.Reactions[0].Propensity; got != "(/ (* beta S I) N)" {
		t.Errorf("Unexpected propensity %q", got)
	}
	if got := cfg.Functions[0].Expr; got != "(+ S I R)" {
		t.Errorf("Unexpected function %q", got)
	}
}

func TestModelBuilder_Compile(t *testing.T) {
	m, err := sirBuilder().Population("I", 25).Compile()
	if err != nil {
		t.Fatalf("Expected valid model, got %v", err)
	}
	if n, _ := m.Initial("I"); n != 25 {
		t.Errorf("Expected population override 25, got %d", n)
	}
	if got := m.Observed(); len(got) != 2 {
		t.Errorf("Expected 2 observed species, got %v", got)
	}
}

func TestModelBuilder_CompileReportsViolations(t *testing.T) {
	_, err := NewModel("broken").
		Species("A", 1).
		Reaction(NewReaction("r").From("A").To("B").Rate(Mul("k", "A"))).
		Compile()

	verr, ok := err.(*cms.ValidationError)
	if !ok {
		t.Fatalf("Expected *cms.ValidationError, got %T", err)
	}
	if len(verr.Violations) != 2 {
		t.Errorf("Expected unresolved k and undeclared B, got %v", verr.Violations)
	}
}

func TestModelBuilder_BuildCopies(t *testing.T) {
	mb := NewModel("copy").Species("A", 1).Population("A", 2)
	first := mb.Build()
	first.Species[0].Population = 99
	first.Populations["A"] = 99

	second := mb.Build()
	if second.Species[0].Population != 1 || second.Populations["A"] != 2 {
		t.Errorf("Expected builds to be independent, got %+v", second)
	}
}

func TestReactionBuilder(t *testing.T) {
	rc := NewReaction("birth").To("A").Rate(Num(0.5)).Build()
	if rc.Name != "birth" || rc.Propensity != "0.5" {
		t.Errorf("Unexpected reaction %+v", rc)
	}
	if rc.Reactants == nil || len(rc.Reactants) != 0 {
		t.Errorf("Expected empty, non-nil reactants, got %#v", rc.Reactants)
	}
	if len(rc.Products) != 1 {
		t.Errorf("Expected one product, got %v", rc.Products)
	}
}

func TestExpressionHelpers(t *testing.T) {
	cases := map[string]string{
		Add("a", "b"):           "(+ a b)",
		Sub("a", Num(1)):        "(- a 1)",
		Mul("k", Div("a", "b")): "(* k (/ a b))",
		Num(1e-4):               "0.0001",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
