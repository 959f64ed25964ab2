package risk

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/medigo-health/platform/pkg/common/errs"
)

type fakeReader struct {
	profile      Profile
	profileErr   error
	measurements map[string]interface{}
	measureErr   error
	hypertension map[string]interface{}
	biomarkers   map[string]interface{}
	medication   map[string]interface{}
}

func (f *fakeReader) Profile(ctx context.Context, nationalID string) (Profile, error) {
	return f.profile, f.profileErr
}

func (f *fakeReader) Measurements(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return f.measurements, f.measureErr
}

func (f *fakeReader) LatestHypertension(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return f.hypertension, nil
}

func (f *fakeReader) LatestBiomarkers(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return f.biomarkers, nil
}

func (f *fakeReader) LatestMedication(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return f.medication, nil
}

func fullChartReader() *fakeReader {
	return &fakeReader{
		profile:      Profile{Gender: "male", AgeGroup: 2, SmokerStatus: 2},
		measurements: map[string]interface{}{"bmi": 32.0},
		hypertension: map[string]interface{}{
			"systolic":    150.0,
			"diastolic":   95.0,
			"pulse":       80.0,
			"bp_category": 2.0,
		},
		biomarkers: map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{"test_name": "Cholesterol", "value": 220.0},
				map[string]interface{}{"test_name": "Glucose", "value": 130.0},
			},
		},
		medication: map[string]interface{}{"bp_medication": 1.0},
	}
}

func TestAssembleFullChart(t *testing.T) {
	assembler := NewAssembler(fullChartReader())

	assembled, err := assembler.Assemble(context.Background(), "29001010100015")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]float64{
		"male":         1,
		"male_smoker":  1,
		"is_obese":     1,
		"bmi_category": 3,
		"totChol":      220,
		"glucose":      130,
		"sysBP":        150,
		"diaBP":        95,
		"heartRate":    80,
		"bp_category":  2,
		"BPMeds":       1,
	}
	for name, value := range want {
		if assembled.Vector[name] != value {
			t.Errorf("feature %s = %v, want %v", name, assembled.Vector[name], value)
		}
	}
	if pp := assembled.Vector["sysBP"] - assembled.Vector["diaBP"]; pp != 55 {
		t.Errorf("pulse pressure = %v, want 55", pp)
	}
	if assembled.BMI != 32.0 {
		t.Errorf("bmi = %v, want 32.0", assembled.BMI)
	}
	if len(assembled.Vector) != len(FeatureNames) {
		t.Fatalf("vector has %d features, want %d", len(assembled.Vector), len(FeatureNames))
	}
	for _, name := range FeatureNames {
		if _, ok := assembled.Vector[name]; !ok {
			t.Errorf("vector missing feature %s", name)
		}
	}
}

func TestAssembleDefaultsWhenOptionalRecordsMissing(t *testing.T) {
	reader := &fakeReader{
		profile:      Profile{Gender: "female", AgeGroup: 1},
		measurements: map[string]interface{}{"bmi": 22.0},
	}
	assembler := NewAssembler(reader)

	assembled, err := assembler.Assemble(context.Background(), "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := FeatureVector{
		"male":                  0,
		"BPMeds":                0,
		"totChol":               180,
		"sysBP":                 120,
		"diaBP":                 80,
		"heartRate":             72,
		"glucose":               100,
		"age_group":             1,
		"smoker_status":         0,
		"is_obese":              0,
		"bp_category":           0,
		"bmi_category":          1,
		"male_smoker":           0,
		"prediabetes_indicator": 0,
		"insulin_resistance":    0,
		"metabolic_syndrome":    0,
	}
	if !reflect.DeepEqual(assembled.Vector, want) {
		t.Fatalf("vector = %v, want %v", assembled.Vector, want)
	}
}

func TestAssembleDefaultBMIWhenFieldMissing(t *testing.T) {
	reader := &fakeReader{
		profile:      Profile{Gender: "female"},
		measurements: map[string]interface{}{"weight": 70.0},
	}

	assembled, err := NewAssembler(reader).Assemble(context.Background(), "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assembled.BMI != 25.0 {
		t.Fatalf("bmi = %v, want default 25.0", assembled.BMI)
	}
	if assembled.Vector["bmi_category"] != 2 {
		t.Fatalf("bmi_category = %v, want 2", assembled.Vector["bmi_category"])
	}
}

func TestAssembleIdempotent(t *testing.T) {
	assembler := NewAssembler(fullChartReader())

	first, err := assembler.Assemble(context.Background(), "123")
	if err != nil {
		t.Fatalf("first assemble: %v", err)
	}
	second, err := assembler.Assemble(context.Background(), "123")
	if err != nil {
		t.Fatalf("second assemble: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical source records produced different feature vectors")
	}
}

func TestAssembleSubjectNotFound(t *testing.T) {
	reader := &fakeReader{profileErr: ErrSubjectNotFound}

	_, err := NewAssembler(reader).Assemble(context.Background(), "missing")
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestAssembleMeasurementsNotFound(t *testing.T) {
	reader := &fakeReader{
		profile:    Profile{Gender: "male"},
		measureErr: ErrMeasurementsNotFound,
	}

	_, err := NewAssembler(reader).Assemble(context.Background(), "123")
	if !errors.Is(err, ErrMeasurementsNotFound) {
		t.Fatalf("expected ErrMeasurementsNotFound, got %v", err)
	}
}

func TestAssembleMalformedNumericField(t *testing.T) {
	reader := fullChartReader()
	reader.hypertension["systolic"] = "not-a-number"

	_, err := NewAssembler(reader).Assemble(context.Background(), "123")
	if err == nil {
		t.Fatal("expected validation error for malformed systolic")
	}
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBMICategoryPartition(t *testing.T) {
	cases := []struct {
		bmi  float64
		want int
	}{
		{10, 0},
		{18.49, 0},
		{18.5, 1},
		{24.99, 1},
		{25, 2},
		{29.99, 2},
		{30, 3},
		{45, 3},
	}
	for _, c := range cases {
		if got := BMICategory(c.bmi); got != c.want {
			t.Errorf("BMICategory(%v) = %d, want %d", c.bmi, got, c.want)
		}
	}
	if obeseFlag(30) != 1 {
		t.Error("bmi 30.0 must set is_obese")
	}
	if obeseFlag(29.99) != 0 {
		t.Error("bmi 29.99 must not set is_obese")
	}
}

func TestBooleanIndicatorFlags(t *testing.T) {
	reader := fullChartReader()
	reader.hypertension["prediabetes_indicator"] = true
	reader.hypertension["insulin_resistance"] = false

	assembled, err := NewAssembler(reader).Assemble(context.Background(), "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assembled.Vector["prediabetes_indicator"] != 1 {
		t.Error("true flag should map to 1")
	}
	if assembled.Vector["insulin_resistance"] != 0 {
		t.Error("false flag should map to 0")
	}
}
