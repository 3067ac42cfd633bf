package model

import (
	"sort"
	"time"
)

// Staging record status values. staged is the only initial state; the
// others are terminal for this pipeline.
const (
	StagingStatusStaged   = "staged"
	StagingStatusApproved = "approved"
	StagingStatusRejected = "rejected"
	StagingStatusDeleted  = "deleted"
)

// ValidStagingStatus reports whether s is a known status value.
func ValidStagingStatus(s string) bool {
	switch s {
	case StagingStatusStaged, StagingStatusApproved, StagingStatusRejected, StagingStatusDeleted:
		return true
	}
	return false
}

// StagingRecord is the ORM model for the 'staging_shards' table: the
// persisted form of an extraction candidate awaiting review. Identity
// fields (ID, CampaignID, ResourceID) never change after creation; the
// pipeline mutates only Status, except for the dedicated content-edit path.
type StagingRecord struct {
	ID         string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	CampaignID string    `gorm:"type:varchar(64);not null;index" json:"campaignId"`
	ResourceID string    `gorm:"type:varchar(128);not null;index" json:"resourceId"`
	ShardType  string    `gorm:"type:varchar(50);not null" json:"shardType"`
	Content    string    `gorm:"type:text" json:"content"`
	Metadata   string    `gorm:"type:text" json:"metadata"`
	Status     string    `gorm:"type:varchar(20);not null;default:staged;index" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the database table for this model.
func (StagingRecord) TableName() string {
	return "staging_shards"
}

// StagingGroup is a read-time grouping of records that share one source
// file and one extraction run. It is never persisted as its own row; it
// only exists for presentation and bulk-action addressing.
type StagingGroup struct {
	Key       string          `json:"key"`
	SourceRef SourceRef       `json:"sourceRef"`
	CreatedAt time.Time       `json:"createdAt"`
	Records   []StagingRecord `json:"records"`
}

// GroupStagingRecords buckets records by originating fragment key. Groups
// are ordered by creation time, newest first; records keep store order.
func GroupStagingRecords(records []StagingRecord) []StagingGroup {
	byKey := make(map[string]*StagingGroup)
	order := make([]string, 0)
	for _, rec := range records {
		cand := CandidateFromRecord(&rec)
		key := cand.SourceRef.FileKey
		if key == "" {
			key = rec.ResourceID
		}
		group, ok := byKey[key]
		if !ok {
			group = &StagingGroup{Key: key, SourceRef: cand.SourceRef, CreatedAt: rec.CreatedAt}
			byKey[key] = group
			order = append(order, key)
		}
		if rec.CreatedAt.Before(group.CreatedAt) {
			group.CreatedAt = rec.CreatedAt
		}
		group.Records = append(group.Records, rec)
	}

	groups := make([]StagingGroup, 0, len(byKey))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups
}
