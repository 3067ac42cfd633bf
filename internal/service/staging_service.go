// Package service contains the application's business logic layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/internal/shard"
	"github.com/ofisk/loresmith-ai-sub003/pkg/es"
	"github.com/ofisk/loresmith-ai-sub003/pkg/extraction"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

// StagingService exposes the review operations over staged shards.
type StagingService interface {
	StageCandidates(ctx context.Context, campaignID, resourceID string, candidates []model.ExtractedCandidate) error
	ListGroups(ctx context.Context, campaignID string) ([]model.StagingGroup, error)
	ListByCampaign(ctx context.Context, campaignID, statusFilter string) ([]model.StagingRecord, error)
	ApproveBatch(ctx context.Context, campaignID string, ids []string, actor string) error
	RejectBatch(ctx context.Context, campaignID string, ids []string, reason, actor string) error
	DeleteShard(ctx context.Context, campaignID, id, actor string) error
	ShardProperties(ctx context.Context, id string) ([]shard.Property, error)
	UpdateShardContent(ctx context.Context, campaignID, id, content, actor string) error
	FillField(ctx context.Context, campaignID, shardID, fieldName string) (string, error)
	SearchApproved(ctx context.Context, campaignID, query string) ([]model.StagingRecord, error)
	Activity(ctx context.Context, campaignID string, limit int) ([]repository.ActivityEntry, error)
}

type stagingService struct {
	stagingRepo  repository.StagingRepository
	activityRepo repository.ActivityRepository
	extractor    extraction.Client
	esCfg        config.ElasticsearchConfig
}

// NewStagingService creates a new StagingService instance.
func NewStagingService(stagingRepo repository.StagingRepository, activityRepo repository.ActivityRepository, extractor extraction.Client, esCfg config.ElasticsearchConfig) StagingService {
	return &stagingService{
		stagingRepo:  stagingRepo,
		activityRepo: activityRepo,
		extractor:    extractor,
		esCfg:        esCfg,
	}
}

// StageCandidates persists a batch of extraction candidates as staged
// records. The batch is atomic: a failure leaves nothing behind and the
// caller resubmits the whole batch.
func (s *stagingService) StageCandidates(ctx context.Context, campaignID, resourceID string, candidates []model.ExtractedCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	records := make([]*model.StagingRecord, 0, len(candidates))
	for i := range candidates {
		record, err := candidates[i].ToStagingRecord(campaignID, resourceID)
		if err != nil {
			return fmt.Errorf("%w: %v", repository.ErrStagingWrite, err)
		}
		records = append(records, record)
	}
	if err := s.stagingRepo.CreateBatch(records); err != nil {
		log.Errorf("[StageCandidates] failed to stage %d candidates for campaign %s: %v", len(records), campaignID, err)
		return err
	}
	log.Infof("[StageCandidates] staged %d candidates for campaign %s, resource %s", len(records), campaignID, resourceID)
	return nil
}

// ListGroups returns the campaign's staged records grouped by source
// fragment.
func (s *stagingService) ListGroups(ctx context.Context, campaignID string) ([]model.StagingGroup, error) {
	records, err := s.stagingRepo.FindByCampaign(campaignID, model.StagingStatusStaged)
	if err != nil {
		return nil, err
	}
	return model.GroupStagingRecords(records), nil
}

// ListByCampaign returns a campaign's records with an optional status
// filter.
func (s *stagingService) ListByCampaign(ctx context.Context, campaignID, statusFilter string) ([]model.StagingRecord, error) {
	return s.stagingRepo.FindByCampaign(campaignID, statusFilter)
}

// ApproveBatch moves the records to approved, indexes them into the
// knowledge index and records the action. An already-resolved result is
// passed through for the caller to treat as success.
func (s *stagingService) ApproveBatch(ctx context.Context, campaignID string, ids []string, actor string) error {
	updateErr := s.stagingRepo.UpdateStatusBatch(ids, model.StagingStatusApproved)
	if updateErr != nil && !errors.Is(updateErr, repository.ErrAlreadyResolved) {
		log.Errorf("[ApproveBatch] status update failed for campaign %s: %v", campaignID, updateErr)
		return updateErr
	}

	s.indexApproved(ctx, ids)

	if err := s.activityRepo.Push(ctx, campaignID, repository.ActivityEntry{
		Actor:    actor,
		Action:   "approved",
		ShardIDs: ids,
	}); err != nil {
		log.Warnf("[ApproveBatch] failed to record activity: %v", err)
	}
	return updateErr
}

// RejectBatch moves the records to rejected with a mandatory reason.
func (s *stagingService) RejectBatch(ctx context.Context, campaignID string, ids []string, reason, actor string) error {
	updateErr := s.stagingRepo.UpdateStatusBatch(ids, model.StagingStatusRejected)
	if updateErr != nil && !errors.Is(updateErr, repository.ErrAlreadyResolved) {
		log.Errorf("[RejectBatch] status update failed for campaign %s: %v", campaignID, updateErr)
		return updateErr
	}

	if err := s.activityRepo.Push(ctx, campaignID, repository.ActivityEntry{
		Actor:    actor,
		Action:   "rejected",
		ShardIDs: ids,
		Reason:   reason,
	}); err != nil {
		log.Warnf("[RejectBatch] failed to record activity: %v", err)
	}
	return updateErr
}

// indexApproved pushes the records that actually reached approved status
// into Elasticsearch.
func (s *stagingService) indexApproved(ctx context.Context, ids []string) {
	records, err := s.stagingRepo.FindByIDs(ids)
	if err != nil {
		log.Warnf("[indexApproved] cannot load records for indexing: %v", err)
		return
	}
	for i := range records {
		if records[i].Status != model.StagingStatusApproved {
			continue
		}
		cand := model.CandidateFromRecord(&records[i])
		doc := model.EsShard{
			ShardID:     records[i].ID,
			CampaignID:  records[i].CampaignID,
			ResourceID:  records[i].ResourceID,
			ShardType:   records[i].ShardType,
			TextContent: records[i].Content,
			Confidence:  cand.Metadata.Confidence,
			ApprovedAt:  time.Now(),
		}
		if err := es.IndexShard(ctx, s.esCfg.IndexName, doc); err != nil {
			log.Warnf("[indexApproved] failed to index shard %s: %v", records[i].ID, err)
		}
	}
}

// DeleteShard hard-deletes one record and its search document.
func (s *stagingService) DeleteShard(ctx context.Context, campaignID, id, actor string) error {
	if err := s.stagingRepo.Delete(id); err != nil {
		return err
	}
	if err := es.DeleteShard(ctx, s.esCfg.IndexName, id); err != nil {
		log.Warnf("[DeleteShard] failed to remove shard %s from index: %v", id, err)
	}
	if err := s.activityRepo.Push(ctx, campaignID, repository.ActivityEntry{
		Actor:    actor,
		Action:   "deleted",
		ShardIDs: []string{id},
	}); err != nil {
		log.Warnf("[DeleteShard] failed to record activity: %v", err)
	}
	return nil
}

// ShardProperties classifies a record and flattens it into editable
// key/value triples for the review surface.
func (s *stagingService) ShardProperties(ctx context.Context, id string) ([]shard.Property, error) {
	record, err := s.stagingRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	classified := shard.Classify(model.CandidateFromRecord(record))
	return shard.EditableProperties(classified), nil
}

// UpdateShardContent applies an edited payload to a record. The edit is
// reclassified so the persisted form and confidence stay consistent.
func (s *stagingService) UpdateShardContent(ctx context.Context, campaignID, id, content, actor string) error {
	record, err := s.stagingRepo.FindByID(id)
	if err != nil {
		return err
	}
	original := model.CandidateFromRecord(record)

	edited := *original
	edited.Text = content
	classified := shard.Classify(&edited)
	update, err := shard.ToStorageUpdate(classified, original)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStagingWrite, err)
	}

	metadata, err := metadataWithConfidence(record.Metadata, update.Confidence)
	if err != nil {
		log.Warnf("[UpdateShardContent] cannot rewrite metadata for shard %s: %v", id, err)
		metadata = ""
	}

	if err := s.stagingRepo.UpdateContent(id, update.Content, metadata); err != nil {
		return err
	}

	if err := s.activityRepo.Push(ctx, campaignID, repository.ActivityEntry{
		Actor:    actor,
		Action:   "edited",
		ShardIDs: []string{id},
	}); err != nil {
		log.Warnf("[UpdateShardContent] failed to record activity: %v", err)
	}
	return nil
}

// FillField asks the field-generation service for a value and writes it
// into the shard's payload. Only structured shards carry named fields.
func (s *stagingService) FillField(ctx context.Context, campaignID, shardID, fieldName string) (string, error) {
	record, err := s.stagingRepo.FindByID(shardID)
	if err != nil {
		return "", err
	}
	original := model.CandidateFromRecord(record)
	classified := shard.Classify(original)
	structured, ok := classified.(*shard.Structured)
	if !ok {
		return "", fmt.Errorf("shard %s has no named fields to fill", shardID)
	}

	value, err := s.extractor.GenerateField(ctx, campaignID, shardID, fieldName)
	if err != nil {
		return "", err
	}

	structured.Fields[fieldName] = value
	update, err := shard.ToStorageUpdate(structured, original)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrStagingWrite, err)
	}
	metadata, err := metadataWithConfidence(record.Metadata, update.Confidence)
	if err != nil {
		metadata = ""
	}
	if err := s.stagingRepo.UpdateContent(shardID, update.Content, metadata); err != nil {
		return "", err
	}
	log.Infof("[FillField] filled field %q on shard %s", fieldName, shardID)
	return value, nil
}

// SearchApproved runs the relational substring search over approved
// records.
func (s *stagingService) SearchApproved(ctx context.Context, campaignID, query string) ([]model.StagingRecord, error) {
	return s.stagingRepo.SearchApproved(campaignID, query)
}

// Activity returns the campaign's recent review actions.
func (s *stagingService) Activity(ctx context.Context, campaignID string, limit int) ([]repository.ActivityEntry, error) {
	return s.activityRepo.Recent(ctx, campaignID, limit)
}

// metadataWithConfidence rewrites the confidence carried in a record's
// metadata JSON, preserving everything else.
func metadataWithConfidence(metadata string, confidence float64) (string, error) {
	meta := make(map[string]interface{})
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			return "", err
		}
	}
	meta["confidence"] = confidence
	out, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
