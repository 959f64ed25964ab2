// Package notifications records admin alerts. An unregistered doctor on a new
// patient produces a persisted notification row plus an event on the admin
// alert topic; neither is allowed to fail the originating request.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/medigo-health/platform/pkg/common/kafka"
	"github.com/medigo-health/platform/pkg/common/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const EventUnregisteredDoctor = "unregistered-doctor"

type NotificationModel struct {
	ID                string    `gorm:"column:id;primaryKey"`
	PatientNationalID string    `gorm:"column:patient_national_id;index"`
	DoctorEmail       string    `gorm:"column:doctor_email;index"`
	Message           string    `gorm:"column:message"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (NotificationModel) TableName() string {
	return "admin_notifications"
}

type Notifier struct {
	db       *gorm.DB
	producer *kafka.Producer
}

func NewNotifier(db *gorm.DB, producer *kafka.Producer) *Notifier {
	return &Notifier{db: db, producer: producer}
}

func (n *Notifier) AutoMigrate() error {
	return n.db.AutoMigrate(&NotificationModel{})
}

func (n *Notifier) UnregisteredDoctor(ctx context.Context, nationalID, fullName, doctorEmail string) error {
	message := fmt.Sprintf("Patient %s (%s) assigned to unregistered doctor: %s",
		fullName, nationalID, doctorEmail)

	note := NotificationModel{
		ID:                fmt.Sprintf("%s_%s", doctorEmail, nationalID),
		PatientNationalID: nationalID,
		DoctorEmail:       doctorEmail,
		Message:           message,
		CreatedAt:         time.Now().UTC(),
	}
	// Re-registering the same patient/doctor pair is not a new alert.
	if err := n.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&note).Error; err != nil {
		return fmt.Errorf("persisting admin notification: %w", err)
	}

	if n.producer != nil {
		err := n.producer.PublishEvent(ctx, EventUnregisteredDoctor, "patients", map[string]interface{}{
			"patient_national_id": nationalID,
			"doctor_email":        doctorEmail,
			"message":             message,
		})
		if err != nil {
			logger.Log.WithError(err).Warn("failed to publish admin alert event")
		}
	}

	return nil
}
