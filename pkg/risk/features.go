package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/medigo-health/platform/pkg/common/errs"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrMeasurementsNotFound = errors.New("missing measurements")
)

// Profile is the slice of a patient record the pipeline reads.
type Profile struct {
	Gender       string
	AgeGroup     int
	SmokerStatus int
}

// SourceReader hides the record store behind the two primitives the
// assembler needs. Profile and Measurements are mandatory and must return
// ErrSubjectNotFound / ErrMeasurementsNotFound when absent; the remaining
// readers return (nil, nil) when the patient has no such records.
type SourceReader interface {
	Profile(ctx context.Context, nationalID string) (Profile, error)
	Measurements(ctx context.Context, nationalID string) (map[string]interface{}, error)
	LatestHypertension(ctx context.Context, nationalID string) (map[string]interface{}, error)
	LatestBiomarkers(ctx context.Context, nationalID string) (map[string]interface{}, error)
	LatestMedication(ctx context.Context, nationalID string) (map[string]interface{}, error)
}

// Defaults applied when an optional record or field is absent.
const (
	defaultBMI       = 25.0
	defaultTotChol   = 180.0
	defaultGlucose   = 100.0
	defaultSysBP     = 120.0
	defaultDiaBP     = 80.0
	defaultHeartRate = 72.0
)

type AssembledFeatures struct {
	Vector FeatureVector
	BMI    float64
}

type Assembler struct {
	reader SourceReader
}

func NewAssembler(reader SourceReader) *Assembler {
	return &Assembler{reader: reader}
}

// Assemble fetches the five source records concurrently and produces the
// fixed feature vector with defaults filled in for anything missing.
func (a *Assembler) Assemble(ctx context.Context, nationalID string) (AssembledFeatures, error) {
	var (
		profile      Profile
		measurements map[string]interface{}
		hypertension map[string]interface{}
		biomarkers   map[string]interface{}
		medication   map[string]interface{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profile, err = a.reader.Profile(gctx, nationalID)
		return err
	})
	g.Go(func() (err error) {
		measurements, err = a.reader.Measurements(gctx, nationalID)
		return err
	})
	g.Go(func() (err error) {
		hypertension, err = a.reader.LatestHypertension(gctx, nationalID)
		return err
	})
	g.Go(func() (err error) {
		biomarkers, err = a.reader.LatestBiomarkers(gctx, nationalID)
		return err
	})
	g.Go(func() (err error) {
		medication, err = a.reader.LatestMedication(gctx, nationalID)
		return err
	})
	if err := g.Wait(); err != nil {
		return AssembledFeatures{}, err
	}

	bmi, err := floatField(measurements, "bmi", defaultBMI)
	if err != nil {
		return AssembledFeatures{}, err
	}

	male := 0.0
	if profile.Gender == "male" {
		male = 1
	}
	maleSmoker := 0.0
	if profile.Gender == "male" && profile.SmokerStatus > 0 {
		maleSmoker = 1
	}

	vector := FeatureVector{
		"male":          male,
		"age_group":     float64(profile.AgeGroup),
		"smoker_status": float64(profile.SmokerStatus),
		"male_smoker":   maleSmoker,
		"is_obese":      float64(obeseFlag(bmi)),
		"bmi_category":  float64(BMICategory(bmi)),
	}

	fields := []struct {
		name         string
		source       map[string]interface{}
		key          string
		defaultValue float64
	}{
		{"sysBP", hypertension, "systolic", defaultSysBP},
		{"diaBP", hypertension, "diastolic", defaultDiaBP},
		{"heartRate", hypertension, "pulse", defaultHeartRate},
		{"bp_category", hypertension, "bp_category", 0},
		{"prediabetes_indicator", hypertension, "prediabetes_indicator", 0},
		{"insulin_resistance", hypertension, "insulin_resistance", 0},
		{"metabolic_syndrome", hypertension, "metabolic_syndrome", 0},
		{"BPMeds", medication, "bp_medication", 0},
	}
	for _, f := range fields {
		value, err := floatField(f.source, f.key, f.defaultValue)
		if err != nil {
			return AssembledFeatures{}, err
		}
		vector[f.name] = value
	}

	results := biomarkerResults(biomarkers)
	totChol, err := biomarkerValue(results, "Cholesterol", defaultTotChol)
	if err != nil {
		return AssembledFeatures{}, err
	}
	glucose, err := biomarkerValue(results, "Glucose", defaultGlucose)
	if err != nil {
		return AssembledFeatures{}, err
	}
	vector["totChol"] = totChol
	vector["glucose"] = glucose

	return AssembledFeatures{Vector: vector, BMI: bmi}, nil
}

// BMICategory buckets a BMI value; the bounds are half-open on the lower end
// so every real value lands in exactly one bucket.
func BMICategory(bmi float64) int {
	switch {
	case bmi < 18.5:
		return 0
	case bmi < 25:
		return 1
	case bmi < 30:
		return 2
	default:
		return 3
	}
}

func obeseFlag(bmi float64) int {
	if bmi >= 30 {
		return 1
	}
	return 0
}

func floatField(source map[string]interface{}, key string, defaultValue float64) (float64, error) {
	if source == nil {
		return defaultValue, nil
	}
	raw, ok := source[key]
	if !ok || raw == nil {
		return defaultValue, nil
	}
	value, err := toFloat(raw)
	if err != nil {
		return 0, errs.WrapValidation(fmt.Errorf("field %q: %w", key, err))
	}
	return value, nil
}

func biomarkerResults(panel map[string]interface{}) []interface{} {
	if panel == nil {
		return nil
	}
	results, _ := panel["results"].([]interface{})
	return results
}

// biomarkerValue searches a panel's result list by test name.
func biomarkerValue(results []interface{}, testName string, defaultValue float64) (float64, error) {
	for _, entry := range results {
		result, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := result["test_name"].(string); name != testName {
			continue
		}
		raw, ok := result["value"]
		if !ok || raw == nil {
			continue
		}
		value, err := toFloat(raw)
		if err != nil {
			return 0, errs.WrapValidation(fmt.Errorf("biomarker %q: %w", testName, err))
		}
		return value, nil
	}
	return defaultValue, nil
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}
