package model

import "time"

// SourceDocument is the ORM model for the 'source_documents' table. It
// records each uploaded file in a campaign library. The row is immutable
// once the upload has been merged, apart from the status flag.
type SourceDocument struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5     string     `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	FileName    string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentType string     `gorm:"type:varchar(100)" json:"contentType"`
	TotalSize   int64      `gorm:"not null" json:"totalSize"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: uploading, 1: completed, 2: failed
	UserID      uint       `gorm:"not null" json:"userId"`
	CampaignID  string     `gorm:"type:varchar(64);not null;index" json:"campaignId"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	MergedAt    *time.Time `gorm:"default:null" json:"mergedAt"`
}

// TableName specifies the database table for this model.
func (SourceDocument) TableName() string {
	return "source_documents"
}

// ChunkInfo is the ORM model for the 'chunk_info' table, recording each
// uploaded chunk of an in-progress document upload.
type ChunkInfo struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5     string `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	ChunkIndex  int    `gorm:"not null" json:"chunkIndex"`
	StoragePath string `gorm:"type:varchar(255);not null" json:"storagePath"`
}

// TableName specifies the database table for this model.
func (ChunkInfo) TableName() string {
	return "chunk_info"
}
