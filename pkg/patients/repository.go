package patients

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientModel{}, &DoctorModel{})
}

func (r *Repository) Exists(ctx context.Context, nationalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PatientModel{}).
		Where("national_id = ?", nationalID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) Create(ctx context.Context, patient *PatientModel) error {
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now
	return r.db.WithContext(ctx).Create(patient).Error
}

func (r *Repository) Get(ctx context.Context, nationalID string) (Patient, error) {
	var m PatientModel
	err := r.db.WithContext(ctx).Where("national_id = ?", nationalID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return Patient{}, err
	}
	return mapPatientModel(m), nil
}

// Search matches on full name or national id substrings; empty filters list
// everything.
func (r *Repository) Search(ctx context.Context, name, nationalID string) ([]Patient, error) {
	query := r.db.WithContext(ctx).Model(&PatientModel{})
	if name != "" {
		query = query.Where("LOWER(full_name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if nationalID != "" {
		query = query.Where("national_id LIKE ? OR LOWER(doctor_email) LIKE ?",
			"%"+nationalID+"%", "%"+strings.ToLower(nationalID)+"%")
	}

	var rows []PatientModel
	if err := query.Order("full_name").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Patient, 0, len(rows))
	for _, m := range rows {
		out = append(out, mapPatientModel(m))
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, nationalID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&PatientModel{}).
		Where("national_id = ?", nationalID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *Repository) GetDoctorByEmail(ctx context.Context, email string) (DoctorModel, error) {
	var doctor DoctorModel
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DoctorModel{}, ErrDoctorNotFound
	}
	if err != nil {
		return DoctorModel{}, err
	}
	return doctor, nil
}
