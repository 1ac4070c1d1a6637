package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gridwatch/healthindexer/internal/inference"
	"github.com/gridwatch/healthindexer/internal/models"
	apperrors "github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/metrics"
)

// Submission carries the metadata fields accompanying an analysis upload.
type Submission struct {
	TransformerID string
	Location      string
	Latitude      *float64
	Longitude     *float64
	Date          string
	Time          string
}

// AnalysisService forwards uploads to the model service and records results.
type AnalysisService struct {
	db     *gorm.DB
	client inference.Client
	logger *zap.Logger
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(db *gorm.DB, client inference.Client, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{db: db, client: client, logger: logger}
}

// Analyze submits the multipart payload to the model service and persists a
// log row for the requesting user. The payload is streamed through without
// being parsed; the model service validates the images itself.
func (s *AnalysisService) Analyze(ctx context.Context, userID string, sub Submission, contentType string, body io.Reader) (*models.AnalysisLog, error) {
	result, err := s.client.Predict(ctx, contentType, body)
	if err != nil {
		metrics.AnalysisRequests.WithLabelValues("failure").Inc()
		s.logger.Error("model service request failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, apperrors.ErrAnalysisFailed.WithInternal(err)
	}

	params, err := json.Marshal(result.AllParameters)
	if err != nil {
		metrics.AnalysisRequests.WithLabelValues("failure").Inc()
		return nil, apperrors.Wrap(err, "Failed to record analysis")
	}

	log := &models.AnalysisLog{
		UserID:           userID,
		TransformerID:    sub.TransformerID,
		Location:         sub.Location,
		Latitude:         sub.Latitude,
		Longitude:        sub.Longitude,
		InferenceDate:    sub.Date,
		InferenceTime:    sub.Time,
		HealthIndexScore: result.HealthIndex,
		ParamsScores:     datatypes.JSON(params),
		ProvidedImages:   datatypes.JSON(result.ProvidedImages),
		GradCamImages:    datatypes.JSON(result.GradcamImages),
		Status:           models.StatusForScore(result.HealthIndex),
	}

	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		metrics.AnalysisRequests.WithLabelValues("failure").Inc()
		return nil, apperrors.Wrap(err, "Failed to record analysis")
	}

	metrics.AnalysisRequests.WithLabelValues("success").Inc()
	s.logger.Info("analysis recorded",
		zap.String("user_id", userID),
		zap.String("analysis_id", log.ID),
		zap.Float64("health_index", result.HealthIndex))

	return log, nil
}

// HistoryForUser returns the user's analysis logs, newest first.
func (s *AnalysisService) HistoryForUser(ctx context.Context, userID string) ([]models.AnalysisLog, error) {
	var logs []models.AnalysisLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load history")
	}
	return logs, nil
}

// HistoryAll returns every user's analysis logs, newest first.
func (s *AnalysisService) HistoryAll(ctx context.Context) ([]models.AnalysisLog, error) {
	var logs []models.AnalysisLog
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load history")
	}
	return logs, nil
}

// Log looks up a single analysis row, scoped to its owner.
func (s *AnalysisService) Log(ctx context.Context, userID, id string) (*models.AnalysisLog, error) {
	var log models.AnalysisLog
	err := s.db.WithContext(ctx).Take(&log, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load analysis")
	}
	return &log, nil
}
