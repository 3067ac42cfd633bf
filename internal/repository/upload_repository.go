package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

// UploadRepository defines the persistence operations for chunked document
// uploads.
type UploadRepository interface {
	// SourceDocument operations
	CreateDocumentRecord(record *model.SourceDocument) error
	GetDocumentRecord(fileMD5 string, campaignID string) (*model.SourceDocument, error)
	UpdateDocumentRecord(record *model.SourceDocument) error
	UpdateDocumentStatus(recordID uint, status int) error
	FindDocumentsByCampaign(campaignID string) ([]model.SourceDocument, error)
	DeleteDocumentRecord(fileMD5 string, campaignID string) error
	DeleteDocumentsByCampaign(campaignID string) error

	// ChunkInfo operations (GORM)
	CreateChunkInfoRecord(record *model.ChunkInfo) error
	GetChunkInfoRecords(fileMD5 string) ([]model.ChunkInfo, error)

	// Chunk status operations (Redis bitmap)
	IsChunkUploaded(ctx context.Context, fileMD5 string, campaignID string, chunkIndex int) (bool, error)
	MarkChunkUploaded(ctx context.Context, fileMD5 string, campaignID string, chunkIndex int) error
	GetUploadedChunks(ctx context.Context, fileMD5 string, campaignID string, totalChunks int) ([]int, error)
	DeleteUploadMark(ctx context.Context, fileMD5 string, campaignID string) error
}

// uploadRepository is the GORM+Redis implementation of UploadRepository.
type uploadRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewUploadRepository creates a new UploadRepository instance.
func NewUploadRepository(db *gorm.DB, redisClient *redis.Client) UploadRepository {
	return &uploadRepository{db: db, redisClient: redisClient}
}

// uploadKey generates the Redis key for an upload's chunk bitmap.
func (r *uploadRepository) uploadKey(fileMD5 string, campaignID string) string {
	return "upload:" + campaignID + ":" + fileMD5
}

// CreateDocumentRecord inserts a new source document record.
func (r *uploadRepository) CreateDocumentRecord(record *model.SourceDocument) error {
	return r.db.Create(record).Error
}

// GetDocumentRecord retrieves a document record by file MD5 within a
// campaign.
func (r *uploadRepository) GetDocumentRecord(fileMD5 string, campaignID string) (*model.SourceDocument, error) {
	var record model.SourceDocument
	err := r.db.Where("file_md5 = ? AND campaign_id = ?", fileMD5, campaignID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateDocumentRecord saves changes to an existing document record.
func (r *uploadRepository) UpdateDocumentRecord(record *model.SourceDocument) error {
	return r.db.Save(record).Error
}

// UpdateDocumentStatus updates the status flag of a document record.
func (r *uploadRepository) UpdateDocumentStatus(recordID uint, status int) error {
	return r.db.Model(&model.SourceDocument{}).Where("id = ?", recordID).Update("status", status).Error
}

// FindDocumentsByCampaign returns every document in a campaign's library.
func (r *uploadRepository) FindDocumentsByCampaign(campaignID string) ([]model.SourceDocument, error) {
	var docs []model.SourceDocument
	err := r.db.Where("campaign_id = ?", campaignID).Order("created_at desc").Find(&docs).Error
	return docs, err
}

// DeleteDocumentRecord removes a document record and its chunk records.
func (r *uploadRepository) DeleteDocumentRecord(fileMD5 string, campaignID string) error {
	var errs []error

	if err := r.db.Where("file_md5 = ?", fileMD5).Delete(&model.ChunkInfo{}).Error; err != nil {
		errs = append(errs, err)
	}
	if err := r.db.Where("file_md5 = ? AND campaign_id = ?", fileMD5, campaignID).Delete(&model.SourceDocument{}).Error; err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to fully delete document record (fileMD5=%s, campaignID=%s): %v", fileMD5, campaignID, errors.Join(errs...))
	}
	return nil
}

// DeleteDocumentsByCampaign removes every document record of a campaign.
func (r *uploadRepository) DeleteDocumentsByCampaign(campaignID string) error {
	return r.db.Delete(&model.SourceDocument{}, "campaign_id = ?", campaignID).Error
}

// CreateChunkInfoRecord inserts a new chunk record.
func (r *uploadRepository) CreateChunkInfoRecord(record *model.ChunkInfo) error {
	return r.db.Create(record).Error
}

// GetChunkInfoRecords returns the uploaded chunks of a file, ordered by
// index for merging.
func (r *uploadRepository) GetChunkInfoRecords(fileMD5 string) ([]model.ChunkInfo, error) {
	var chunks []model.ChunkInfo
	err := r.db.Where("file_md5 = ?", fileMD5).Order("chunk_index asc").Find(&chunks).Error
	return chunks, err
}

// IsChunkUploaded checks whether a chunk is marked as uploaded in Redis.
func (r *uploadRepository) IsChunkUploaded(ctx context.Context, fileMD5 string, campaignID string, chunkIndex int) (bool, error) {
	key := r.uploadKey(fileMD5, campaignID)
	val, err := r.redisClient.GetBit(ctx, key, int64(chunkIndex)).Result()
	if err != nil {
		// A missing key is not an error to Redis, it reads as 0.
		return false, err
	}
	return val == 1, nil
}

// MarkChunkUploaded marks a chunk as uploaded in the Redis bitmap.
func (r *uploadRepository) MarkChunkUploaded(ctx context.Context, fileMD5 string, campaignID string, chunkIndex int) error {
	key := r.uploadKey(fileMD5, campaignID)
	return r.redisClient.SetBit(ctx, key, int64(chunkIndex), 1).Err()
}

// GetUploadedChunks reads the bitmap and returns the uploaded chunk
// indexes.
func (r *uploadRepository) GetUploadedChunks(ctx context.Context, fileMD5 string, campaignID string, totalChunks int) ([]int, error) {
	if totalChunks == 0 {
		return []int{}, nil
	}
	key := r.uploadKey(fileMD5, campaignID)
	bitmap, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []int{}, nil
		}
		return nil, err
	}

	uploaded := make([]int, 0)
	for i := 0; i < totalChunks; i++ {
		byteIndex := i / 8
		bitIndex := i % 8
		if byteIndex < len(bitmap) && (bitmap[byteIndex]>>(7-bitIndex))&1 == 1 {
			uploaded = append(uploaded, i)
		}
	}
	return uploaded, nil
}

// DeleteUploadMark removes the upload bitmap from Redis.
func (r *uploadRepository) DeleteUploadMark(ctx context.Context, fileMD5 string, campaignID string) error {
	key := r.uploadKey(fileMD5, campaignID)
	return r.redisClient.Del(ctx, key).Err()
}
