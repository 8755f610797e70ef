package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mirae/stylegen/internal/domain"
	"gorm.io/gorm"
)

// BatchRepository persists finished batch runs for the history
// endpoints. Writes happen once per batch, after the run is over, so
// the store is never on the hot path.
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// SaveBatch stores the batch summary and its per-job outcomes in one
// transaction.
func (r *BatchRepository) SaveBatch(ctx context.Context, summary *domain.BatchSummary, jobs []domain.Job) error {
	status := domain.BatchStatusCompleted
	if summary.Aborted {
		status = domain.BatchStatusAborted
	}

	now := time.Now()
	startedAt := summary.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	finishedAt := summary.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = now
	}

	record := domain.BatchRecord{
		ID:           uuid.New().String(),
		SessionID:    summary.SessionID,
		Status:       status,
		TotalJobs:    len(jobs),
		SuccessCount: summary.SuccessCount,
		ErrorCount:   summary.ErrorCount,
		AbortedAt:    summary.AbortedAt,
		RelayEnabled: summary.RelayEnabled,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}

	jobRecords := make([]domain.JobRecord, 0, len(summary.Results))
	for i, result := range summary.Results {
		jr := domain.JobRecord{
			ID:          uuid.New().String(),
			BatchID:     record.ID,
			JobID:       result.ID,
			Position:    i,
			Success:     result.Success,
			Prompts:     strings.Join(result.MidjourneyPrompts, "\n"),
			OutfitNames: strings.Join(result.OutfitNames, "\n"),
			CDNImageURL: result.CDNImageURL,
			ArchiveURL:  result.ArchiveURL,
			Error:       result.Error,
			ErrorKind:   string(result.ErrorKind),
		}
		if i < len(jobs) {
			jr.FileName = jobs[i].FileName
			jr.PromptType = string(jobs[i].PromptType)
		}
		jobRecords = append(jobRecords, jr)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save batch record: %w", err)
		}
		if len(jobRecords) > 0 {
			if err := tx.Create(&jobRecords).Error; err != nil {
				return fmt.Errorf("failed to save job records: %w", err)
			}
		}
		return nil
	})
}

// ListBatches returns batch records newest first, with the total count
// for pagination.
func (r *BatchRepository) ListBatches(ctx context.Context, limit, offset int) ([]domain.BatchRecord, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.BatchRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %w", err)
	}

	var records []domain.BatchRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %w", err)
	}

	return records, total, nil
}

// GetBatch returns one batch record with its job outcomes in
// submission order. Returns gorm.ErrRecordNotFound for unknown ids.
func (r *BatchRepository) GetBatch(ctx context.Context, id string) (*domain.BatchRecord, []domain.JobRecord, error) {
	var record domain.BatchRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}

	var jobs []domain.JobRecord
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", record.ID).
		Order("position ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load batch jobs: %w", err)
	}

	return &record, jobs, nil
}
