// Package recordstore is the clinical document store. Every record lives in a
// single table keyed by (patient, grouping, doc id) with a JSONB payload and a
// recorded-at timestamp used for "latest first" queries. The risk pipeline
// needs exactly two read primitives from it: point get and latest-limit-1.
package recordstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDocumentNotFound = errors.New("document not found")

// Groupings mirror the sub-collections of a patient's chart.
const (
	GroupingMeasurements    = "measurements"
	GroupingHypertension    = "hypertension"
	GroupingBiomarkers      = "biomarkers"
	GroupingMedications     = "medications"
	GroupingRiskPredictions = "risk_predictions"
)

// MeasurementsDocID is the singleton anthropometric snapshot per patient.
const MeasurementsDocID = "current"

type Document struct {
	NationalID string            `json:"national_id" gorm:"column:national_id;primaryKey"`
	Grouping   string            `json:"grouping" gorm:"column:grouping;primaryKey"`
	DocID      string            `json:"doc_id" gorm:"column:doc_id;primaryKey"`
	Payload    datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	RecordedAt time.Time         `json:"recorded_at" gorm:"column:recorded_at;index"`
	CreatedAt  time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (Document) TableName() string {
	return "clinical_documents"
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{})
}

// Put upserts a document; groupings with a singleton doc (measurements)
// overwrite in place.
func (s *Store) Put(ctx context.Context, nationalID, grouping, docID string, payload map[string]interface{}, recordedAt time.Time) error {
	now := time.Now().UTC()
	doc := Document{
		NationalID: nationalID,
		Grouping:   grouping,
		DocID:      docID,
		Payload:    datatypes.JSONMap(payload),
		RecordedAt: recordedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "national_id"}, {Name: "grouping"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "recorded_at", "updated_at"}),
	}).Create(&doc).Error
}

// Append inserts a brand-new document and never overwrites an existing one.
func (s *Store) Append(ctx context.Context, nationalID, grouping, docID string, payload map[string]interface{}, recordedAt time.Time) error {
	now := time.Now().UTC()
	doc := Document{
		NationalID: nationalID,
		Grouping:   grouping,
		DocID:      docID,
		Payload:    datatypes.JSONMap(payload),
		RecordedAt: recordedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.db.WithContext(ctx).Create(&doc).Error
}

func (s *Store) Get(ctx context.Context, nationalID, grouping, docID string) (map[string]interface{}, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("national_id = ? AND grouping = ? AND doc_id = ?", nationalID, grouping, docID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(doc.Payload), nil
}

// Latest returns the most recent document of a grouping by recorded-at.
func (s *Store) Latest(ctx context.Context, nationalID, grouping string) (map[string]interface{}, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("national_id = ? AND grouping = ?", nationalID, grouping).
		Order("recorded_at DESC").
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(doc.Payload), nil
}

// List returns up to limit documents of a grouping, newest first.
func (s *Store) List(ctx context.Context, nationalID, grouping string, limit int) ([]Document, error) {
	query := s.db.WithContext(ctx).
		Where("national_id = ? AND grouping = ?", nationalID, grouping).
		Order("recorded_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var docs []Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
