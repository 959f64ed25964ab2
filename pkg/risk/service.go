package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medigo-health/platform/pkg/common/logger"
	"github.com/medigo-health/platform/pkg/recordstore"
	"github.com/redis/go-redis/v9"
)

// hypertensionPlaceholder stands in for the unknown hypertension status when
// the diabetes model runs first. The training pipeline used the same
// constant; keep them in lockstep.
const hypertensionPlaceholder = 0.5

var ErrNoPredictions = errors.New("no risk predictions recorded")

// SnapshotStore is the slice of the record store the service writes
// prediction snapshots through. *recordstore.Store satisfies it.
type SnapshotStore interface {
	Append(ctx context.Context, nationalID, grouping, docID string, payload map[string]interface{}, recordedAt time.Time) error
	Latest(ctx context.Context, nationalID, grouping string) (map[string]interface{}, error)
	List(ctx context.Context, nationalID, grouping string, limit int) ([]recordstore.Document, error)
}

const (
	predictionDocIDLayout = "20060102_150405"
	displayTimeLayout     = "January 02, 2006 at 03:04 PM"
	sortableTimeLayout    = "2006-01-02 15:04:05"
)

type Service struct {
	assembler *Assembler
	registry  *Registry
	explainer *Explainer
	store     SnapshotStore
	cache     *redis.Client
	cacheTTL  time.Duration
}

func NewService(assembler *Assembler, registry *Registry, explainer *Explainer, store SnapshotStore, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{
		assembler: assembler,
		registry:  registry,
		explainer: explainer,
		store:     store,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

// Assess runs the full pipeline for one subject: assemble the feature
// vector, run the two chained models, explain both predictions, persist a
// timestamped snapshot. The persistence write is not allowed to mask a
// computed result.
func (s *Service) Assess(ctx context.Context, nationalID string) (PredictionOutput, error) {
	assembled, err := s.assembler.Assemble(ctx, nationalID)
	if err != nil {
		return PredictionOutput{}, err
	}

	// The two inferences are strictly sequential: the hypertension model
	// consumes the diabetes probability as an input feature.
	diabetesInput := assembled.Vector.Clone()
	diabetesInput["hypertension"] = hypertensionPlaceholder
	diabetesProb, diabetesSelected, err := s.registry.Diabetes.Run(diabetesInput)
	if err != nil {
		return PredictionOutput{}, err
	}

	hypertensionInput := assembled.Vector.Clone()
	hypertensionInput["diabetes"] = diabetesProb
	hypertensionProb, hypertensionSelected, err := s.registry.Hypertension.Run(hypertensionInput)
	if err != nil {
		return PredictionOutput{}, err
	}

	output := PredictionOutput{
		DiabetesRisk:     round2(diabetesProb * 100),
		HypertensionRisk: round2(hypertensionProb * 100),
		DerivedFeatures:  deriveFeatures(assembled),
		InputValues:      assembled.Vector,
		TopDiabetesFeatures: s.explainer.TopFeatures(
			s.registry.Diabetes.Classifier(), diabetesSelected,
			s.registry.Diabetes.SelectedFeatures(), nationalID+":"+ConditionDiabetes),
		TopHypertensionFeatures: s.explainer.TopFeatures(
			s.registry.Hypertension.Classifier(), hypertensionSelected,
			s.registry.Hypertension.SelectedFeatures(), nationalID+":"+ConditionHypertension),
	}

	s.persist(ctx, nationalID, output)

	return output, nil
}

func deriveFeatures(assembled AssembledFeatures) DerivedFeatures {
	v := assembled.Vector
	return DerivedFeatures{
		AgeGroup:             labelFor(ageGroupLabels, int(v["age_group"]), "Middle-aged"),
		SmokerStatus:         labelFor(smokerStatusLabels, int(v["smoker_status"]), "Non-smoker"),
		IsObese:              v["is_obese"] != 0,
		BPCategory:           labelFor(bpCategoryLabels, int(v["bp_category"]), "Normal"),
		BMICategory:          labelFor(bmiCategoryLabels, int(v["bmi_category"]), "Normal"),
		BMI:                  assembled.BMI,
		PulsePressure:        v["sysBP"] - v["diaBP"],
		MaleSmoker:           v["male_smoker"] != 0,
		PrediabetesIndicator: v["prediabetes_indicator"] != 0,
		InsulinResistance:    v["insulin_resistance"] != 0,
		MetabolicSyndrome:    v["metabolic_syndrome"] != 0,
	}
}

// persist appends the snapshot to the subject's prediction history and warms
// the latest-result cache. Both writes are warn-logged on failure; the
// computed result still goes back to the caller.
func (s *Service) persist(ctx context.Context, nationalID string, output PredictionOutput) {
	now := time.Now().UTC()
	payload, err := snapshotPayload(output, now)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to encode prediction snapshot")
		return
	}

	docID := now.Format(predictionDocIDLayout)
	if err := s.store.Append(ctx, nationalID, recordstore.GroupingRiskPredictions, docID, payload, now); err != nil {
		logger.Log.WithError(err).WithField("national_id", nationalID).Warn("failed to persist prediction snapshot")
	}

	if s.cache != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			err = s.cache.Set(ctx, latestCacheKey(nationalID), raw, s.cacheTTL).Err()
		}
		if err != nil {
			logger.Log.WithError(err).Warn("failed to cache latest prediction")
		}
	}
}

func snapshotPayload(output PredictionOutput, now time.Time) (map[string]interface{}, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	payload["timestamp"] = now.Format(time.RFC3339)
	payload["display_time"] = now.Format(displayTimeLayout)
	payload["sortable_time"] = now.Format(sortableTimeLayout)
	return payload, nil
}

func latestCacheKey(nationalID string) string {
	return fmt.Sprintf("risk:latest:%s", nationalID)
}

// Latest returns the most recent persisted prediction, trying the cache
// before the document store.
func (s *Service) Latest(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, latestCacheKey(nationalID)).Bytes()
		if err == nil {
			var payload map[string]interface{}
			if unmarshalErr := json.Unmarshal(raw, &payload); unmarshalErr == nil {
				return payload, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).Warn("latest prediction cache read failed")
		}
	}

	payload, err := s.store.Latest(ctx, nationalID, recordstore.GroupingRiskPredictions)
	if errors.Is(err, recordstore.ErrDocumentNotFound) {
		return nil, ErrNoPredictions
	}
	return payload, err
}

// History lists persisted predictions, newest first.
func (s *Service) History(ctx context.Context, nationalID string, limit int) ([]map[string]interface{}, error) {
	docs, err := s.store.List(ctx, nationalID, recordstore.GroupingRiskPredictions, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		out = append(out, map[string]interface{}(doc.Payload))
	}
	return out, nil
}
