package risk

import (
	"math"
	"strings"
	"testing"
)

func logisticArtifact(condition string) Artifact {
	return Artifact{
		Condition: condition,
		Scaler: ScalerArtifact{
			FeatureNames: []string{"a", "b", "c"},
			Means:        []float64{0, 0, 0},
			Scales:       []float64{1, 1, 1},
		},
		Selector: SelectorArtifact{
			Indices:          []int{0, 2},
			SelectedFeatures: []string{"a", "c"},
		},
		Classifier: ClassifierArtifact{
			Kind:     "logistic",
			Logistic: &LogisticArtifact{Bias: 0, Coefficients: []float64{1, -1}},
		},
	}
}

func TestPipelineRun(t *testing.T) {
	pipeline, err := NewPipeline("diabetes", logisticArtifact("diabetes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prob, selected, err := pipeline.Run(FeatureVector{"a": 1, "b": 99, "c": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a and c cancel, sigmoid(0) = 0.5; b is dropped by the selector.
	if math.Abs(prob-0.5) > 1e-9 {
		t.Fatalf("prob = %v, want 0.5", prob)
	}
	if len(selected) != 2 || selected[0] != 1 || selected[1] != 1 {
		t.Fatalf("selected = %v, want [1 1]", selected)
	}
}

func TestPipelineScaling(t *testing.T) {
	artifact := logisticArtifact("diabetes")
	artifact.Scaler.Means = []float64{10, 0, 100}
	artifact.Scaler.Scales = []float64{2, 1, 50}

	pipeline, err := NewPipeline("diabetes", artifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, selected, err := pipeline.Run(FeatureVector{"a": 14, "b": 0, "c": 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected[0] != 2 {
		t.Errorf("scaled a = %v, want (14-10)/2 = 2", selected[0])
	}
	if selected[1] != -2 {
		t.Errorf("scaled c = %v, want (0-100)/50 = -2", selected[1])
	}
}

func TestPipelineMissingDeclaredFeature(t *testing.T) {
	pipeline, err := NewPipeline("diabetes", logisticArtifact("diabetes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = pipeline.Run(FeatureVector{"a": 1, "b": 1})
	if err == nil {
		t.Fatal("expected error for missing declared feature")
	}
	if !strings.Contains(err.Error(), `"c"`) {
		t.Fatalf("error should name the missing feature, got %v", err)
	}
}

func TestNewPipelineRejectsMisconfiguredArtifacts(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{"no features", func(a *Artifact) { a.Scaler.FeatureNames = nil }},
		{"mismatched means", func(a *Artifact) { a.Scaler.Means = []float64{0} }},
		{"empty selector", func(a *Artifact) { a.Selector.Indices = nil }},
		{"selector out of range", func(a *Artifact) { a.Selector.Indices = []int{9, 0} }},
		{"selector name mismatch", func(a *Artifact) { a.Selector.SelectedFeatures = []string{"a"} }},
		{"unknown classifier", func(a *Artifact) { a.Classifier.Kind = "svm" }},
		{"unfitted logistic", func(a *Artifact) { a.Classifier.Logistic = &LogisticArtifact{} }},
	}
	for _, c := range cases {
		artifact := logisticArtifact("diabetes")
		c.mutate(&artifact)
		if _, err := NewPipeline("diabetes", artifact); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}
}

func TestForestPredictAveragesTrees(t *testing.T) {
	clf, err := buildClassifier(ClassifierArtifact{
		Kind: "forest",
		Forest: &ForestArtifact{
			FeatureImportances: []float64{1, 0},
			Trees: []TreeArtifact{
				{
					Feature:   []int{0, -1, -1},
					Threshold: []float64{0.5, 0, 0},
					Left:      []int{1, -1, -1},
					Right:     []int{2, -1, -1},
					Value:     []float64{0, 0.2, 0.8},
				},
				{
					Feature:   []int{-1},
					Threshold: []float64{0},
					Left:      []int{-1},
					Right:     []int{-1},
					Value:     []float64{0.4},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prob, err := clf.PredictProba([]float64{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(prob-0.6) > 1e-9 {
		t.Fatalf("prob = %v, want (0.8+0.4)/2 = 0.6", prob)
	}

	prob, err = clf.PredictProba([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(prob-0.3) > 1e-9 {
		t.Fatalf("prob = %v, want (0.2+0.4)/2 = 0.3", prob)
	}
}

func TestVotingPredictSoftVotes(t *testing.T) {
	clf, err := buildClassifier(ClassifierArtifact{
		Kind: "voting",
		Estimators: []ClassifierArtifact{
			{Kind: "logistic", Logistic: &LogisticArtifact{Bias: 0, Coefficients: []float64{1}}},
			{Kind: "logistic", Logistic: &LogisticArtifact{Bias: 0, Coefficients: []float64{-1}}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// sigmoid(x) + sigmoid(-x) averages to exactly 0.5 for any x.
	prob, err := clf.PredictProba([]float64{3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(prob-0.5) > 1e-9 {
		t.Fatalf("prob = %v, want 0.5", prob)
	}
}
