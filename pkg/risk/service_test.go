package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/medigo-health/platform/pkg/recordstore"
)

type appendedDoc struct {
	nationalID string
	grouping   string
	docID      string
	payload    map[string]interface{}
}

type fakeStore struct {
	appended  []appendedDoc
	appendErr error
}

func (f *fakeStore) Append(ctx context.Context, nationalID, grouping, docID string, payload map[string]interface{}, recordedAt time.Time) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedDoc{nationalID, grouping, docID, payload})
	return nil
}

func (f *fakeStore) Latest(ctx context.Context, nationalID, grouping string) (map[string]interface{}, error) {
	if len(f.appended) == 0 {
		return nil, recordstore.ErrDocumentNotFound
	}
	return f.appended[len(f.appended)-1].payload, nil
}

func (f *fakeStore) List(ctx context.Context, nationalID, grouping string, limit int) ([]recordstore.Document, error) {
	var docs []recordstore.Document
	for _, doc := range f.appended {
		docs = append(docs, recordstore.Document{
			NationalID: doc.nationalID,
			Grouping:   doc.grouping,
			DocID:      doc.docID,
		})
	}
	return docs, nil
}

// passthroughArtifact declares the full assembled schema plus one extra
// feature and selects only that extra, so the probability is
// sigmoid(extra's value) and the chaining is directly observable.
func passthroughArtifact(condition, extra string) Artifact {
	names := append(append([]string{}, FeatureNames...), extra)
	means := make([]float64, len(names))
	scales := make([]float64, len(names))
	for i := range scales {
		scales[i] = 1
	}
	return Artifact{
		Condition: condition,
		Scaler:    ScalerArtifact{FeatureNames: names, Means: means, Scales: scales},
		Selector: SelectorArtifact{
			Indices:          []int{len(names) - 1},
			SelectedFeatures: []string{extra},
		},
		Classifier: ClassifierArtifact{
			Kind:     "logistic",
			Logistic: &LogisticArtifact{Bias: 0, Coefficients: []float64{1}},
		},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	diabetes, err := NewPipeline(ConditionDiabetes, passthroughArtifact(ConditionDiabetes, "hypertension"))
	if err != nil {
		t.Fatalf("building diabetes pipeline: %v", err)
	}
	hypertension, err := NewPipeline(ConditionHypertension, passthroughArtifact(ConditionHypertension, "diabetes"))
	if err != nil {
		t.Fatalf("building hypertension pipeline: %v", err)
	}
	return &Registry{Diabetes: diabetes, Hypertension: hypertension}
}

func newTestService(store SnapshotStore, reader SourceReader, registry *Registry) *Service {
	return NewService(NewAssembler(reader), registry, NewExplainer(3), store, nil, time.Minute)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func TestAssessChainsPipelines(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(store, fullChartReader(), testRegistry(t))

	output, err := service.Assess(context.Background(), "29001010100015")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Diabetes sees the constant 0.5 placeholder; hypertension sees the
	// diabetes probability.
	diabetesProb := sigmoid(0.5)
	hypertensionProb := sigmoid(diabetesProb)

	wantDiabetes := math.Round(diabetesProb*100*100) / 100
	wantHypertension := math.Round(hypertensionProb*100*100) / 100
	if output.DiabetesRisk != wantDiabetes {
		t.Errorf("diabetes risk = %v, want %v", output.DiabetesRisk, wantDiabetes)
	}
	if output.HypertensionRisk != wantHypertension {
		t.Errorf("hypertension risk = %v, want %v", output.HypertensionRisk, wantHypertension)
	}

	for _, risk := range []float64{output.DiabetesRisk, output.HypertensionRisk} {
		if risk < 0 || risk > 100 {
			t.Errorf("risk %v out of [0, 100]", risk)
		}
		if math.Round(risk*100)/100 != risk {
			t.Errorf("risk %v not rounded to two decimals", risk)
		}
	}

	// The passthrough pipelines keep a single selected feature, so each
	// explanation has exactly one entry carrying the full contribution.
	if len(output.TopDiabetesFeatures) != 1 || len(output.TopHypertensionFeatures) != 1 {
		t.Error("expected one top feature per passthrough pipeline")
	}

	derived := output.DerivedFeatures
	if derived.AgeGroup != "Older" || derived.SmokerStatus != "Moderate smoker" {
		t.Errorf("profile labels wrong: %+v", derived)
	}
	if derived.BPCategory != "Stage 1" || derived.BMICategory != "Obese" {
		t.Errorf("category labels wrong: %+v", derived)
	}
	if !derived.IsObese || !derived.MaleSmoker {
		t.Errorf("boolean casts wrong: %+v", derived)
	}
	if derived.PulsePressure != 55 {
		t.Errorf("pulse pressure = %v, want 55", derived.PulsePressure)
	}
}

func TestAssessPersistsSnapshot(t *testing.T) {
	store := &fakeStore{}
	service := newTestService(store, fullChartReader(), testRegistry(t))

	if _, err := service.Assess(context.Background(), "29001010100015"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.appended) != 1 {
		t.Fatalf("expected one persisted snapshot, got %d", len(store.appended))
	}
	doc := store.appended[0]
	if doc.grouping != recordstore.GroupingRiskPredictions {
		t.Errorf("grouping = %s", doc.grouping)
	}
	if len(doc.docID) != len("20060102_150405") {
		t.Errorf("doc id %q not a sortable timestamp key", doc.docID)
	}
	for _, field := range []string{"timestamp", "display_time", "sortable_time", "diabetes_risk", "hypertension_risk", "input_values", "derived_features", "top_diabetes_features", "top_hypertension_features"} {
		if _, ok := doc.payload[field]; !ok {
			t.Errorf("snapshot missing field %s", field)
		}
	}
	if ts, _ := doc.payload["timestamp"].(string); ts != "" {
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			t.Errorf("timestamp %q not RFC3339: %v", ts, err)
		}
	} else {
		t.Error("timestamp missing or not a string")
	}
}

func TestAssessReturnsResultWhenPersistFails(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("store down")}
	service := newTestService(store, fullChartReader(), testRegistry(t))

	output, err := service.Assess(context.Background(), "123")
	if err != nil {
		t.Fatalf("persist failure must not fail the assessment: %v", err)
	}
	if output.DiabetesRisk == 0 && output.HypertensionRisk == 0 {
		t.Error("expected computed risks despite persist failure")
	}
}

func TestAssessIdempotentScores(t *testing.T) {
	service := newTestService(&fakeStore{}, fullChartReader(), testRegistry(t))

	first, err := service.Assess(context.Background(), "123")
	if err != nil {
		t.Fatalf("first assess: %v", err)
	}
	second, err := service.Assess(context.Background(), "123")
	if err != nil {
		t.Fatalf("second assess: %v", err)
	}
	if first.DiabetesRisk != second.DiabetesRisk || first.HypertensionRisk != second.HypertensionRisk {
		t.Fatal("identical inputs produced different risk scores")
	}
}

func TestAssessSubjectNotFoundWritesNothing(t *testing.T) {
	store := &fakeStore{}
	reader := &fakeReader{profileErr: ErrSubjectNotFound}
	service := newTestService(store, reader, testRegistry(t))

	_, err := service.Assess(context.Background(), "missing")
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
	if len(store.appended) != 0 {
		t.Fatal("no prediction may be persisted for a missing subject")
	}
}

func TestAssessUndeclaredFeatureIsInternalError(t *testing.T) {
	store := &fakeStore{}
	// The artifact declares a feature the assembler never produces.
	diabetes, err := NewPipeline(ConditionDiabetes, passthroughArtifact(ConditionDiabetes, "resting_ecg"))
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	registry := testRegistry(t)
	registry.Diabetes = diabetes

	service := newTestService(store, fullChartReader(), registry)

	_, err = service.Assess(context.Background(), "123")
	if err == nil {
		t.Fatal("expected reindex error")
	}
	if errors.Is(err, ErrSubjectNotFound) || errors.Is(err, ErrMeasurementsNotFound) {
		t.Fatalf("schema mismatch must not map to not-found, got %v", err)
	}
	if len(store.appended) != 0 {
		t.Fatal("no partial result may be persisted")
	}
}
