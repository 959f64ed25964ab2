package patients

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/medigo-health/platform/pkg/common/errs"
	"github.com/medigo-health/platform/pkg/common/logger"
	"github.com/medigo-health/platform/pkg/notifications"
)

const (
	minAge = 0
	maxAge = 130
)

type Service struct {
	repo     *Repository
	notifier *notifications.Notifier
}

func NewService(repo *Repository, notifier *notifications.Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// CalculateAge derives whole years from a YYYY-MM-DD birthdate.
func CalculateAge(dateOfBirth string, now time.Time) (int, error) {
	birth, err := time.Parse("2006-01-02", strings.TrimSpace(dateOfBirth))
	if err != nil {
		return 0, err
	}
	age := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		age--
	}
	return age, nil
}

func validatedAge(dateOfBirth string) (int, error) {
	age, err := CalculateAge(dateOfBirth, time.Now().UTC())
	if err != nil {
		return 0, errs.NewValidation("invalid birthdate format, use YYYY-MM-DD")
	}
	if age < minAge || age > maxAge {
		return 0, errs.NewValidation("birthdate implies an age out of bounds")
	}
	return age, nil
}

func (s *Service) Create(ctx context.Context, req CreatePatientRequest) (Patient, error) {
	if req.NationalID == "" {
		return Patient{}, errs.NewValidation("national_id is required")
	}

	exists, err := s.repo.Exists(ctx, req.NationalID)
	if err != nil {
		return Patient{}, err
	}
	if exists {
		return Patient{}, errs.NewValidation("patient already exists")
	}

	age, err := validatedAge(req.DateOfBirth)
	if err != nil {
		return Patient{}, err
	}

	// Middle-aged and non-smoker unless the record says otherwise.
	ageGroup := 1
	if req.AgeGroup != nil {
		ageGroup = *req.AgeGroup
	}
	smokerStatus := 0
	if req.SmokerStatus != nil {
		smokerStatus = *req.SmokerStatus
	}

	patient := PatientModel{
		NationalID:   req.NationalID,
		FullName:     req.FullName,
		Gender:       strings.ToLower(strings.TrimSpace(req.Gender)),
		DateOfBirth:  req.DateOfBirth,
		Age:          age,
		AgeGroup:     ageGroup,
		SmokerStatus: smokerStatus,
		DoctorEmail:  strings.ToLower(strings.TrimSpace(req.DoctorEmail)),
	}
	if err := s.repo.Create(ctx, &patient); err != nil {
		return Patient{}, err
	}

	s.alertIfDoctorUnknown(ctx, patient)

	logger.Log.WithFields(map[string]interface{}{
		"national_id": patient.NationalID,
		"full_name":   patient.FullName,
	}).Info("Patient created")

	return mapPatientModel(patient), nil
}

// alertIfDoctorUnknown raises a best-effort admin alert when the assigned
// doctor is not in the directory. Alert failures never fail the create.
func (s *Service) alertIfDoctorUnknown(ctx context.Context, patient PatientModel) {
	if patient.DoctorEmail == "" || s.notifier == nil {
		return
	}

	_, err := s.repo.GetDoctorByEmail(ctx, patient.DoctorEmail)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrDoctorNotFound) {
		logger.Log.WithError(err).Warn("doctor directory lookup failed")
		return
	}

	if err := s.notifier.UnregisteredDoctor(ctx, patient.NationalID, patient.FullName, patient.DoctorEmail); err != nil {
		logger.Log.WithError(err).Warn("failed to record unregistered doctor alert")
	}
}

func (s *Service) Get(ctx context.Context, nationalID string) (Patient, error) {
	return s.repo.Get(ctx, nationalID)
}

func (s *Service) Search(ctx context.Context, name, nationalID string) ([]Patient, error) {
	return s.repo.Search(ctx, name, nationalID)
}

func (s *Service) Update(ctx context.Context, nationalID string, req UpdatePatientRequest) error {
	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Gender != nil {
		updates["gender"] = strings.ToLower(strings.TrimSpace(*req.Gender))
	}
	if req.AgeGroup != nil {
		updates["age_group"] = *req.AgeGroup
	}
	if req.SmokerStatus != nil {
		updates["smoker_status"] = *req.SmokerStatus
	}
	if req.DoctorEmail != nil {
		updates["doctor_email"] = strings.ToLower(strings.TrimSpace(*req.DoctorEmail))
	}
	if req.DateOfBirth != nil {
		age, err := validatedAge(*req.DateOfBirth)
		if err != nil {
			return err
		}
		updates["date_of_birth"] = *req.DateOfBirth
		updates["age"] = age
	}

	if len(updates) == 0 {
		return errs.NewValidation("no fields to update")
	}

	if err := s.repo.Update(ctx, nationalID, updates); err != nil {
		return err
	}

	logger.Log.WithField("national_id", nationalID).Info("Patient updated")
	return nil
}
