package risk

import (
	"context"
	"errors"

	"github.com/medigo-health/platform/pkg/patients"
	"github.com/medigo-health/platform/pkg/recordstore"
)

// StoreReader adapts the patient directory and the clinical document store to
// the SourceReader contract.
type StoreReader struct {
	patients *patients.Repository
	store    *recordstore.Store
}

func NewStoreReader(patientRepo *patients.Repository, store *recordstore.Store) *StoreReader {
	return &StoreReader{patients: patientRepo, store: store}
}

func (r *StoreReader) Profile(ctx context.Context, nationalID string) (Profile, error) {
	patient, err := r.patients.Get(ctx, nationalID)
	if errors.Is(err, patients.ErrPatientNotFound) {
		return Profile{}, ErrSubjectNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Gender:       patient.Gender,
		AgeGroup:     patient.AgeGroup,
		SmokerStatus: patient.SmokerStatus,
	}, nil
}

func (r *StoreReader) Measurements(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	payload, err := r.store.Get(ctx, nationalID, recordstore.GroupingMeasurements, recordstore.MeasurementsDocID)
	if errors.Is(err, recordstore.ErrDocumentNotFound) {
		return nil, ErrMeasurementsNotFound
	}
	return payload, err
}

func (r *StoreReader) LatestHypertension(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return r.optionalLatest(ctx, nationalID, recordstore.GroupingHypertension)
}

func (r *StoreReader) LatestBiomarkers(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return r.optionalLatest(ctx, nationalID, recordstore.GroupingBiomarkers)
}

func (r *StoreReader) LatestMedication(ctx context.Context, nationalID string) (map[string]interface{}, error) {
	return r.optionalLatest(ctx, nationalID, recordstore.GroupingMedications)
}

func (r *StoreReader) optionalLatest(ctx context.Context, nationalID, grouping string) (map[string]interface{}, error) {
	payload, err := r.store.Latest(ctx, nationalID, grouping)
	if errors.Is(err, recordstore.ErrDocumentNotFound) {
		return nil, nil
	}
	return payload, err
}
