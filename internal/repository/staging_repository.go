// Package repository contains all database access logic.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

// ErrStagingWrite signals that a batch create or update did not complete
// atomically. Callers must treat the whole batch as failed and resubmit it.
var ErrStagingWrite = errors.New("staging write failed")

// ErrAlreadyResolved signals that a status-update target no longer exists
// in the expected prior state: another actor already approved, rejected or
// deleted it. Callers treat this as a successful no-op.
var ErrAlreadyResolved = errors.New("staging record already resolved")

// StagingRepository defines the persistence operations for staged shards.
type StagingRepository interface {
	CreateOne(record *model.StagingRecord) error
	CreateBatch(records []*model.StagingRecord) error
	FindByCampaign(campaignID string, statusFilter string) ([]model.StagingRecord, error)
	FindByResource(resourceID string) ([]model.StagingRecord, error)
	FindByID(id string) (*model.StagingRecord, error)
	FindByIDs(ids []string) ([]model.StagingRecord, error)
	UpdateStatus(id string, newStatus string) error
	UpdateStatusBatch(ids []string, newStatus string) error
	UpdateContent(id string, content string, metadata string) error
	Delete(id string) error
	DeleteByCampaign(campaignID string) error
	DeleteByResource(resourceID string) error
	SearchApproved(campaignID string, query string) ([]model.StagingRecord, error)
}

type stagingRepository struct {
	db *gorm.DB
}

// NewStagingRepository creates a new StagingRepository instance.
func NewStagingRepository(db *gorm.DB) StagingRepository {
	return &stagingRepository{db: db}
}

// CreateOne inserts a single record, forcing status to staged and
// assigning an id when the caller left it empty.
func (r *stagingRepository) CreateOne(record *model.StagingRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Status = model.StagingStatusStaged
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStagingWrite, err)
	}
	return nil
}

// CreateBatch inserts the records in one transaction: after it returns
// either all records are visible or none are.
func (r *stagingRepository) CreateBatch(records []*model.StagingRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.Status = model.StagingStatusStaged
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(records).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStagingWrite, err)
	}
	return nil
}

// FindByCampaign returns a campaign's records, optionally filtered by
// status. An empty result is not an error.
func (r *stagingRepository) FindByCampaign(campaignID string, statusFilter string) ([]model.StagingRecord, error) {
	var records []model.StagingRecord
	query := r.db.Where("campaign_id = ?", campaignID)
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}
	err := query.Order("created_at asc").Find(&records).Error
	return records, err
}

// FindByResource returns every record extracted from one resource.
func (r *stagingRepository) FindByResource(resourceID string) ([]model.StagingRecord, error) {
	var records []model.StagingRecord
	err := r.db.Where("resource_id = ?", resourceID).Order("created_at asc").Find(&records).Error
	return records, err
}

// FindByID looks up a single record by primary key.
func (r *stagingRepository) FindByID(id string) (*model.StagingRecord, error) {
	var record model.StagingRecord
	err := r.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDs looks up records by a slice of ids.
func (r *stagingRepository) FindByIDs(ids []string) ([]model.StagingRecord, error) {
	var records []model.StagingRecord
	if len(ids) == 0 {
		return records, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&records).Error
	return records, err
}

// UpdateStatus moves one record to a new status. Last write wins; there is
// no optimistic-concurrency token. A record that no longer exists reports
// ErrAlreadyResolved.
func (r *stagingRepository) UpdateStatus(id string, newStatus string) error {
	return r.UpdateStatusBatch([]string{id}, newStatus)
}

// UpdateStatusBatch moves the records to a new status in one transaction.
// When fewer rows are affected than ids were targeted, the missing rows
// were consumed by another actor and the call reports ErrAlreadyResolved;
// a failed transaction reports ErrStagingWrite and must be resubmitted
// whole.
func (r *stagingRepository) UpdateStatusBatch(ids []string, newStatus string) error {
	if len(ids) == 0 {
		return nil
	}
	if !model.ValidStagingStatus(newStatus) {
		return fmt.Errorf("%w: unknown status %q", ErrStagingWrite, newStatus)
	}

	var affected int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.StagingRecord{}).
			Where("id IN ?", ids).
			Update("status", newStatus)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStagingWrite, err)
	}
	if affected < int64(len(ids)) {
		return ErrAlreadyResolved
	}
	return nil
}

// UpdateContent rewrites a record's payload after an edit. Identity fields
// stay untouched.
func (r *stagingRepository) UpdateContent(id string, content string, metadata string) error {
	updates := map[string]interface{}{"content": content}
	if metadata != "" {
		updates["metadata"] = metadata
	}
	result := r.db.Model(&model.StagingRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStagingWrite, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// Delete removes one record. Hard delete, no tombstone.
func (r *stagingRepository) Delete(id string) error {
	return r.db.Delete(&model.StagingRecord{}, "id = ?", id).Error
}

// DeleteByCampaign removes every record belonging to a campaign.
func (r *stagingRepository) DeleteByCampaign(campaignID string) error {
	return r.db.Delete(&model.StagingRecord{}, "campaign_id = ?", campaignID).Error
}

// DeleteByResource removes every record extracted from a resource.
func (r *stagingRepository) DeleteByResource(resourceID string) error {
	return r.db.Delete(&model.StagingRecord{}, "resource_id = ?", resourceID).Error
}

// SearchApproved runs a substring match over content and type tag, scoped
// to approved records of one campaign.
func (r *stagingRepository) SearchApproved(campaignID string, query string) ([]model.StagingRecord, error) {
	var records []model.StagingRecord
	pattern := "%" + escapeLike(query) + "%"
	err := r.db.Where("campaign_id = ? AND status = ?", campaignID, model.StagingStatusApproved).
		Where("content LIKE ? ESCAPE '\\' OR shard_type LIKE ? ESCAPE '\\'", pattern, pattern).
		Order("created_at asc").
		Find(&records).Error
	return records, err
}

// escapeLike escapes LIKE wildcards in user-supplied query text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
