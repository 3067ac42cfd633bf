package repository

import (
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

// CampaignRepository defines the persistence operations for campaigns.
type CampaignRepository interface {
	Create(campaign *model.Campaign) error
	FindByID(campaignID string) (*model.Campaign, error)
	FindByCreator(userID uint) ([]model.Campaign, error)
	FindAll() ([]model.Campaign, error)
	Update(campaign *model.Campaign) error
	Delete(campaignID string) error
}

type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new CampaignRepository instance.
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

// Create inserts a new campaign record.
func (r *campaignRepository) Create(campaign *model.Campaign) error {
	return r.db.Create(campaign).Error
}

// FindByID looks up a campaign by id.
func (r *campaignRepository) FindByID(campaignID string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.Where("campaign_id = ?", campaignID).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// FindByCreator returns the campaigns created by one user.
func (r *campaignRepository) FindByCreator(userID uint) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.Where("created_by = ?", userID).Order("created_at desc").Find(&campaigns).Error
	return campaigns, err
}

// FindAll retrieves every campaign record.
func (r *campaignRepository) FindAll() ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.Find(&campaigns).Error
	return campaigns, err
}

// Update saves changes to an existing campaign record.
func (r *campaignRepository) Update(campaign *model.Campaign) error {
	return r.db.Save(campaign).Error
}

// Delete removes a campaign record.
func (r *campaignRepository) Delete(campaignID string) error {
	return r.db.Delete(&model.Campaign{}, "campaign_id = ?", campaignID).Error
}
