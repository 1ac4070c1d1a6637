package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Analysis status buckets derived from the health index score.
const (
	AnalysisStatusHealthy  = "Healthy"
	AnalysisStatusModerate = "Moderate"
	AnalysisStatusCritical = "Critical"
)

// AnalysisLog records one inference run against the backend model, including
// the per-parameter scores and references to the submitted and Grad-CAM
// images as JSON columns.
type AnalysisLog struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"-"`

	TransformerID string   `gorm:"size:50;not null" json:"transformer_id"`
	Location      string   `gorm:"not null" json:"location"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`

	// Inspection date and time as entered on the submission form.
	InferenceDate string `gorm:"not null" json:"inference_date"`
	InferenceTime string `gorm:"not null" json:"inference_time"`

	HealthIndexScore float64        `gorm:"not null" json:"health_index_score"`
	ParamsScores     datatypes.JSON `gorm:"not null" json:"params_scores"`
	ProvidedImages   datatypes.JSON `json:"provided_images"`
	GradCamImages    datatypes.JSON `json:"grad_cam_images"`

	Status string `gorm:"size:20;not null" json:"status"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (l *AnalysisLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// StatusForScore maps a health index score onto its display status.
func StatusForScore(score float64) string {
	switch {
	case score > 80:
		return AnalysisStatusHealthy
	case score > 60:
		return AnalysisStatusModerate
	default:
		return AnalysisStatusCritical
	}
}
