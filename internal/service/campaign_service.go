package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/pkg/es"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/storage"
)

// CampaignService manages campaign lifecycle. Deleting a campaign
// cascades over its documents, staging records, search documents, stored
// objects and activity feed.
type CampaignService interface {
	CreateCampaign(ctx context.Context, name, description string, createdBy uint) (*model.Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, createdBy uint) ([]model.Campaign, error)
	UpdateCampaign(ctx context.Context, campaignID, name, description string) (*model.Campaign, error)
	DeleteCampaign(ctx context.Context, campaignID string) error
}

type campaignService struct {
	campaignRepo repository.CampaignRepository
	uploadRepo   repository.UploadRepository
	stagingRepo  repository.StagingRepository
	activityRepo repository.ActivityRepository
	minioCfg     config.MinIOConfig
	esCfg        config.ElasticsearchConfig
}

// NewCampaignService creates a new CampaignService instance.
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	uploadRepo repository.UploadRepository,
	stagingRepo repository.StagingRepository,
	activityRepo repository.ActivityRepository,
	minioCfg config.MinIOConfig,
	esCfg config.ElasticsearchConfig,
) CampaignService {
	return &campaignService{
		campaignRepo: campaignRepo,
		uploadRepo:   uploadRepo,
		stagingRepo:  stagingRepo,
		activityRepo: activityRepo,
		minioCfg:     minioCfg,
		esCfg:        esCfg,
	}
}

// CreateCampaign inserts a new campaign with a generated id.
func (s *campaignService) CreateCampaign(ctx context.Context, name, description string, createdBy uint) (*model.Campaign, error) {
	campaign := &model.Campaign{
		CampaignID:  uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
	}
	if err := s.campaignRepo.Create(campaign); err != nil {
		return nil, err
	}
	log.Infof("[CreateCampaign] created campaign %s (%s)", campaign.CampaignID, name)
	return campaign, nil
}

// GetCampaign looks up one campaign.
func (s *campaignService) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	return s.campaignRepo.FindByID(campaignID)
}

// ListCampaigns returns the campaigns created by one user.
func (s *campaignService) ListCampaigns(ctx context.Context, createdBy uint) ([]model.Campaign, error) {
	return s.campaignRepo.FindByCreator(createdBy)
}

// UpdateCampaign renames a campaign or changes its description.
func (s *campaignService) UpdateCampaign(ctx context.Context, campaignID, name, description string) (*model.Campaign, error) {
	campaign, err := s.campaignRepo.FindByID(campaignID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		campaign.Name = name
	}
	if description != "" {
		campaign.Description = description
	}
	if err := s.campaignRepo.Update(campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// DeleteCampaign removes the campaign and everything that belongs to it.
// Cleanup of secondary stores is best effort; the relational rows are the
// source of truth and are removed last.
func (s *campaignService) DeleteCampaign(ctx context.Context, campaignID string) error {
	if _, err := s.campaignRepo.FindByID(campaignID); err != nil {
		return err
	}

	if err := es.DeleteByCampaign(ctx, s.esCfg.IndexName, campaignID); err != nil {
		log.Warnf("[DeleteCampaign] failed to remove search documents for %s: %v", campaignID, err)
	}
	storage.RemoveByPrefix(ctx, s.minioCfg.BucketName, campaignID+"/")
	if err := s.activityRepo.Clear(ctx, campaignID); err != nil {
		log.Warnf("[DeleteCampaign] failed to clear activity feed for %s: %v", campaignID, err)
	}

	if err := s.stagingRepo.DeleteByCampaign(campaignID); err != nil {
		return err
	}
	if err := s.uploadRepo.DeleteDocumentsByCampaign(campaignID); err != nil {
		return err
	}
	if err := s.campaignRepo.Delete(campaignID); err != nil {
		return err
	}
	log.Infof("[DeleteCampaign] deleted campaign %s", campaignID)
	return nil
}
