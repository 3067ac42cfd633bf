package service

import (
	"context"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/workflow"
)

// reviewStore adapts the staging service to the workflow controller's
// store surface, pre-scoped to one campaign and one acting reviewer.
type reviewStore struct {
	staging    StagingService
	campaignID string
	actor      string
}

// NewReviewStore binds a campaign and actor to the staging service so a
// workflow controller can drive it.
func NewReviewStore(staging StagingService, campaignID, actor string) workflow.Store {
	return &reviewStore{staging: staging, campaignID: campaignID, actor: actor}
}

func (s *reviewStore) ApproveBatch(ctx context.Context, ids []string) error {
	return s.staging.ApproveBatch(ctx, s.campaignID, ids, s.actor)
}

func (s *reviewStore) RejectBatch(ctx context.Context, ids []string, reason string) error {
	return s.staging.RejectBatch(ctx, s.campaignID, ids, reason, s.actor)
}

func (s *reviewStore) ListStaged(ctx context.Context) ([]model.StagingRecord, error) {
	return s.staging.ListByCampaign(ctx, s.campaignID, model.StagingStatusStaged)
}
