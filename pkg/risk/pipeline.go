package risk

import (
	"fmt"
	"math"

	"github.com/medigo-health/platform/pkg/ml/linear"
)

// Classifier is a fitted binary classifier over the selector's column subset.
type Classifier interface {
	PredictProba(sample []float64) (float64, error)
}

// Optional capabilities the explainer probes for.
type importanceProvider interface {
	FeatureImportances() []float64
}

type coefficientProvider interface {
	Coefficients() []float64
}

type ensembleClassifier interface {
	BaseEstimators() []Classifier
}

type logisticModel struct {
	weights linear.Weights
}

func (m logisticModel) PredictProba(sample []float64) (float64, error) {
	if len(sample) != len(m.weights.Coefficients) {
		return 0, fmt.Errorf("logistic model expects %d features, got %d", len(m.weights.Coefficients), len(sample))
	}
	return linear.Predict(m.weights, sample), nil
}

func (m logisticModel) Coefficients() []float64 {
	return m.weights.Coefficients
}

type forestModel struct {
	trees       []TreeArtifact
	importances []float64
}

func (m forestModel) PredictProba(sample []float64) (float64, error) {
	if len(m.trees) == 0 {
		return 0, fmt.Errorf("forest model has no trees")
	}
	var sum float64
	for i, tree := range m.trees {
		value, err := tree.predict(sample)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += value
	}
	return sum / float64(len(m.trees)), nil
}

func (m forestModel) FeatureImportances() []float64 {
	return m.importances
}

func (t TreeArtifact) predict(sample []float64) (float64, error) {
	node := 0
	for steps := 0; steps <= len(t.Feature); steps++ {
		if node < 0 || node >= len(t.Feature) {
			return 0, fmt.Errorf("node index %d out of range", node)
		}
		feature := t.Feature[node]
		if feature < 0 {
			return t.Value[node], nil
		}
		if feature >= len(sample) {
			return 0, fmt.Errorf("split on feature %d but sample has %d", feature, len(sample))
		}
		if sample[feature] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return 0, fmt.Errorf("tree traversal did not terminate")
}

// votingModel soft-votes over its members. The first member in declared order
// is the one the explainer resolves to.
type votingModel struct {
	members []Classifier
}

func (m votingModel) PredictProba(sample []float64) (float64, error) {
	if len(m.members) == 0 {
		return 0, fmt.Errorf("voting model has no estimators")
	}
	var sum float64
	for i, member := range m.members {
		p, err := member.PredictProba(sample)
		if err != nil {
			return 0, fmt.Errorf("estimator %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(m.members)), nil
}

func (m votingModel) BaseEstimators() []Classifier {
	return m.members
}

func buildClassifier(art ClassifierArtifact) (Classifier, error) {
	switch art.Kind {
	case "logistic":
		if art.Logistic == nil || len(art.Logistic.Coefficients) == 0 {
			return nil, fmt.Errorf("logistic artifact has no coefficients")
		}
		return logisticModel{weights: linear.Weights{
			Bias:         art.Logistic.Bias,
			Coefficients: art.Logistic.Coefficients,
		}}, nil
	case "forest":
		if art.Forest == nil || len(art.Forest.Trees) == 0 {
			return nil, fmt.Errorf("forest artifact has no trees")
		}
		for i, tree := range art.Forest.Trees {
			n := len(tree.Feature)
			if len(tree.Threshold) != n || len(tree.Left) != n || len(tree.Right) != n || len(tree.Value) != n {
				return nil, fmt.Errorf("forest tree %d has inconsistent node arrays", i)
			}
		}
		return forestModel{trees: art.Forest.Trees, importances: art.Forest.FeatureImportances}, nil
	case "voting":
		if len(art.Estimators) == 0 {
			return nil, fmt.Errorf("voting artifact has no estimators")
		}
		members := make([]Classifier, 0, len(art.Estimators))
		for i, est := range art.Estimators {
			member, err := buildClassifier(est)
			if err != nil {
				return nil, fmt.Errorf("estimator %d: %w", i, err)
			}
			members = append(members, member)
		}
		return votingModel{members: members}, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", art.Kind)
	}
}

// Pipeline is one fitted stage: scale by the declared schema, select the
// fixed column subset, predict the positive-class probability.
type Pipeline struct {
	condition  string
	scaler     ScalerArtifact
	selector   SelectorArtifact
	classifier Classifier
}

func NewPipeline(condition string, artifact Artifact) (*Pipeline, error) {
	n := len(artifact.Scaler.FeatureNames)
	if n == 0 {
		return nil, fmt.Errorf("scaler declares no input features")
	}
	if len(artifact.Scaler.Means) != n || len(artifact.Scaler.Scales) != n {
		return nil, fmt.Errorf("scaler statistics do not match the %d declared features", n)
	}
	if len(artifact.Selector.Indices) == 0 {
		return nil, fmt.Errorf("selector keeps no features")
	}
	if len(artifact.Selector.SelectedFeatures) != len(artifact.Selector.Indices) {
		return nil, fmt.Errorf("selector names %d features but keeps %d columns",
			len(artifact.Selector.SelectedFeatures), len(artifact.Selector.Indices))
	}
	for _, idx := range artifact.Selector.Indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("selector index %d out of range", idx)
		}
	}

	classifier, err := buildClassifier(artifact.Classifier)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		condition:  condition,
		scaler:     artifact.Scaler,
		selector:   artifact.Selector,
		classifier: classifier,
	}, nil
}

func (p *Pipeline) Condition() string {
	return p.condition
}

// InputFeatures is the exact ordered schema the scaler was fitted on.
func (p *Pipeline) InputFeatures() []string {
	return p.scaler.FeatureNames
}

// SelectedFeatures names the columns surviving selection, in selector order.
func (p *Pipeline) SelectedFeatures() []string {
	return p.selector.SelectedFeatures
}

func (p *Pipeline) Classifier() Classifier {
	return p.classifier
}

// Run reindexes the input to the declared schema, scales, selects and
// predicts. A feature declared by the schema but absent from the input is a
// configuration error, never a silent zero.
func (p *Pipeline) Run(features FeatureVector) (float64, []float64, error) {
	scaled := make([]float64, len(p.scaler.FeatureNames))
	for i, name := range p.scaler.FeatureNames {
		value, ok := features[name]
		if !ok {
			return 0, nil, fmt.Errorf("%s pipeline: input missing declared feature %q", p.condition, name)
		}
		scale := p.scaler.Scales[i]
		if scale == 0 {
			scale = 1
		}
		scaled[i] = (value - p.scaler.Means[i]) / scale
	}

	selected := make([]float64, len(p.selector.Indices))
	for i, idx := range p.selector.Indices {
		selected[i] = scaled[idx]
	}

	prob, err := p.classifier.PredictProba(selected)
	if err != nil {
		return 0, nil, fmt.Errorf("%s pipeline: %w", p.condition, err)
	}
	if math.IsNaN(prob) || math.IsInf(prob, 0) || prob < 0 || prob > 1 {
		return 0, nil, fmt.Errorf("%s pipeline produced invalid probability %v", p.condition, prob)
	}

	return prob, selected, nil
}
