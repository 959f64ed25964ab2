package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/medigo-health/platform/pkg/common/logger"
	"gopkg.in/yaml.v3"
)

// Conditions the registry must always carry.
const (
	ConditionDiabetes     = "diabetes"
	ConditionHypertension = "hypertension"
)

// Artifact is the on-disk form of one fitted pipeline: scaler statistics with
// the declared input schema, the selector's column subset, and the classifier
// weights. Exported offline by the training jobs; the service only reads it.
type Artifact struct {
	Condition  string             `json:"condition"`
	Version    string             `json:"version,omitempty"`
	Scaler     ScalerArtifact     `json:"scaler"`
	Selector   SelectorArtifact   `json:"selector"`
	Classifier ClassifierArtifact `json:"classifier"`
}

type ScalerArtifact struct {
	FeatureNames []string  `json:"feature_names"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
}

type SelectorArtifact struct {
	Indices          []int    `json:"indices"`
	SelectedFeatures []string `json:"selected_features"`
}

type ClassifierArtifact struct {
	Kind       string               `json:"kind"` // logistic | forest | voting
	Logistic   *LogisticArtifact    `json:"logistic,omitempty"`
	Forest     *ForestArtifact      `json:"forest,omitempty"`
	Estimators []ClassifierArtifact `json:"estimators,omitempty"`
}

type LogisticArtifact struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

type ForestArtifact struct {
	FeatureImportances []float64      `json:"feature_importances"`
	Trees              []TreeArtifact `json:"trees"`
}

// TreeArtifact is a flattened decision tree in the usual parallel-array
// encoding: Feature[i] < 0 marks a leaf, Value[i] is the positive-class
// fraction at that node.
type TreeArtifact struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"children_left"`
	Right     []int     `json:"children_right"`
	Value     []float64 `json:"value"`
}

type manifest struct {
	Models map[string]string `yaml:"models"`
}

// Registry holds the two fitted pipelines. Loaded once at startup and shared
// read-only by every request.
type Registry struct {
	Diabetes     *Pipeline
	Hypertension *Pipeline
}

// LoadRegistry reads the YAML manifest and builds the pipelines it names.
// Artifact paths in the manifest are relative to the manifest file.
func LoadRegistry(manifestPath string) (*Registry, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading model manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing model manifest: %w", err)
	}

	dir := filepath.Dir(manifestPath)
	registry := &Registry{}
	for _, condition := range []string{ConditionDiabetes, ConditionHypertension} {
		path, ok := m.Models[condition]
		if !ok {
			return nil, fmt.Errorf("model manifest missing condition %q", condition)
		}

		pipeline, err := loadPipeline(filepath.Join(dir, path), condition)
		if err != nil {
			return nil, fmt.Errorf("loading %s pipeline: %w", condition, err)
		}

		switch condition {
		case ConditionDiabetes:
			registry.Diabetes = pipeline
		case ConditionHypertension:
			registry.Hypertension = pipeline
		}

		logger.Log.WithFields(map[string]interface{}{
			"condition":         condition,
			"input_features":    len(pipeline.InputFeatures()),
			"selected_features": len(pipeline.SelectedFeatures()),
		}).Info("Model pipeline loaded")
	}

	return registry, nil
}

func loadPipeline(path, condition string) (*Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	if artifact.Condition != "" && artifact.Condition != condition {
		return nil, fmt.Errorf("artifact %s declares condition %q, want %q", path, artifact.Condition, condition)
	}

	return NewPipeline(condition, artifact)
}
