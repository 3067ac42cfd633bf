package model

import "time"

// Campaign is the ORM model for the 'campaigns' table. A campaign owns a
// library of source documents and the knowledge shards extracted from them.
type Campaign struct {
	CampaignID  string    `gorm:"type:varchar(64);primaryKey" json:"campaignId"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedBy   uint      `gorm:"not null" json:"createdBy"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the database table for this model.
func (Campaign) TableName() string {
	return "campaigns"
}
