package patients

import "time"

type PatientModel struct {
	NationalID   string    `gorm:"column:national_id;primaryKey"`
	FullName     string    `gorm:"column:full_name;index"`
	Gender       string    `gorm:"column:gender"`
	DateOfBirth  string    `gorm:"column:date_of_birth"`
	Age          int       `gorm:"column:age"`
	AgeGroup     int       `gorm:"column:age_group"`
	SmokerStatus int       `gorm:"column:smoker_status"`
	DoctorEmail  string    `gorm:"column:doctor_email;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (PatientModel) TableName() string {
	return "patients"
}

type DoctorModel struct {
	Email     string    `gorm:"column:email;primaryKey"`
	FullName  string    `gorm:"column:full_name"`
	Specialty string    `gorm:"column:specialty"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (DoctorModel) TableName() string {
	return "doctors"
}

type CreatePatientRequest struct {
	NationalID   string `json:"national_id"`
	FullName     string `json:"full_name"`
	Gender       string `json:"gender"`
	DateOfBirth  string `json:"date_of_birth"`
	AgeGroup     *int   `json:"age_group,omitempty"`
	SmokerStatus *int   `json:"smoker_status,omitempty"`
	DoctorEmail  string `json:"doctoremail"`
}

type UpdatePatientRequest struct {
	FullName     *string `json:"full_name,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	DateOfBirth  *string `json:"date_of_birth,omitempty"`
	AgeGroup     *int    `json:"age_group,omitempty"`
	SmokerStatus *int    `json:"smoker_status,omitempty"`
	DoctorEmail  *string `json:"doctoremail,omitempty"`
}

type Patient struct {
	NationalID   string `json:"national_id"`
	FullName     string `json:"full_name"`
	Gender       string `json:"gender"`
	DateOfBirth  string `json:"date_of_birth"`
	Age          int    `json:"age"`
	AgeGroup     int    `json:"age_group"`
	SmokerStatus int    `json:"smoker_status"`
	DoctorEmail  string `json:"doctoremail,omitempty"`
}

func mapPatientModel(m PatientModel) Patient {
	return Patient{
		NationalID:   m.NationalID,
		FullName:     m.FullName,
		Gender:       m.Gender,
		DateOfBirth:  m.DateOfBirth,
		Age:          m.Age,
		AgeGroup:     m.AgeGroup,
		SmokerStatus: m.SmokerStatus,
		DoctorEmail:  m.DoctorEmail,
	}
}
