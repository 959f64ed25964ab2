package risk

// FeatureNames is the canonical order of the assembled vector. Model
// artifacts declare their own input schemas; this list is what the assembler
// guarantees to produce.
var FeatureNames = []string{
	"male",
	"BPMeds",
	"totChol",
	"sysBP",
	"diaBP",
	"heartRate",
	"glucose",
	"age_group",
	"smoker_status",
	"is_obese",
	"bp_category",
	"bmi_category",
	"male_smoker",
	"prediabetes_indicator",
	"insulin_resistance",
	"metabolic_syndrome",
}

type FeatureVector map[string]float64

func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	return out
}

type TopFeature struct {
	FeatureName       string  `json:"feature_name"`
	ContributionScore float64 `json:"contribution_score"`
}

type DerivedFeatures struct {
	AgeGroup             string  `json:"age_group"`
	SmokerStatus         string  `json:"smoker_status"`
	IsObese              bool    `json:"is_obese"`
	BPCategory           string  `json:"bp_category"`
	BMICategory          string  `json:"bmi_category"`
	BMI                  float64 `json:"bmi"`
	PulsePressure        float64 `json:"pulse_pressure"`
	MaleSmoker           bool    `json:"male_smoker"`
	PrediabetesIndicator bool    `json:"prediabetes_indicator"`
	InsulinResistance    bool    `json:"insulin_resistance"`
	MetabolicSyndrome    bool    `json:"metabolic_syndrome"`
}

type PredictionOutput struct {
	DiabetesRisk            float64         `json:"diabetes_risk"`
	HypertensionRisk        float64         `json:"hypertension_risk"`
	DerivedFeatures         DerivedFeatures `json:"derived_features"`
	InputValues             FeatureVector   `json:"input_values"`
	TopDiabetesFeatures     []TopFeature    `json:"top_diabetes_features"`
	TopHypertensionFeatures []TopFeature    `json:"top_hypertension_features"`
}

var (
	ageGroupLabels     = map[int]string{0: "Young", 1: "Middle-aged", 2: "Older"}
	smokerStatusLabels = map[int]string{0: "Non-smoker", 1: "Light smoker", 2: "Moderate smoker", 3: "Heavy smoker"}
	bpCategoryLabels   = map[int]string{-1: "Low", 0: "Normal", 1: "Elevated", 2: "Stage 1", 3: "Stage 2"}
	bmiCategoryLabels  = map[int]string{0: "Underweight", 1: "Normal", 2: "Overweight", 3: "Obese"}
)

func labelFor(table map[int]string, key int, fallback string) string {
	if label, ok := table[key]; ok {
		return label
	}
	return fallback
}
