package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/pkg/kafka"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/storage"
	"github.com/ofisk/loresmith-ai-sub003/pkg/tasks"
	"github.com/ofisk/loresmith-ai-sub003/pkg/tika"
)

// DefaultChunkSize is the chunk size clients use when computing the total
// chunk count (5MB).
const DefaultChunkSize = 5 * 1024 * 1024

// supportedExtensions lists the document types the pipeline can process.
var supportedExtensions = []string{".pdf", ".md", ".markdown", ".txt", ".json", ".doc", ".docx", ".html"}

// UploadService defines the chunked-upload operations for campaign
// documents.
type UploadService interface {
	CheckFile(ctx context.Context, fileMD5 string, campaignID string) (bool, []int, error)
	UploadChunk(ctx context.Context, fileMD5, fileName string, totalSize int64, chunkIndex int, file multipart.File, campaignID string, userID uint) (uploadedChunks []int, totalChunks int, err error)
	MergeChunks(ctx context.Context, fileMD5, fileName string, campaignID string, userID uint) (string, error)
	GetUploadStatus(ctx context.Context, fileMD5 string, campaignID string) (fileName string, uploadedChunks []int, totalChunks int, err error)
	FastUpload(ctx context.Context, fileMD5 string, campaignID string) (bool, error)
}

type uploadService struct {
	uploadRepo repository.UploadRepository
	minioCfg   config.MinIOConfig
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(uploadRepo repository.UploadRepository, minioCfg config.MinIOConfig) UploadService {
	return &uploadService{
		uploadRepo: uploadRepo,
		minioCfg:   minioCfg,
	}
}

// CheckFile reports whether a file is already fully uploaded in the
// campaign, and which chunks exist for a partial upload.
func (s *uploadService) CheckFile(ctx context.Context, fileMD5 string, campaignID string) (bool, []int, error) {
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, nil
		}
		log.Errorf("[CheckFile] failed to look up document record: %v", err)
		return false, nil, err
	}

	if record.Status == 1 {
		return true, nil, nil
	}

	totalChunks := s.calculateTotalChunks(record.TotalSize)
	uploadedIndexes, err := s.uploadRepo.GetUploadedChunks(ctx, fileMD5, campaignID, totalChunks)
	if err != nil {
		log.Errorf("[CheckFile] failed to read chunk bitmap: %v", err)
		return false, nil, err
	}
	return false, uploadedIndexes, nil
}

// UploadChunk stores one chunk in the object store and marks it uploaded.
func (s *uploadService) UploadChunk(ctx context.Context, fileMD5, fileName string, totalSize int64, chunkIndex int, file multipart.File, campaignID string, userID uint) ([]int, int, error) {
	log.Infof("[UploadChunk] chunk %d for file %s in campaign %s", chunkIndex, fileMD5, campaignID)

	if chunkIndex == 0 && !hasSupportedExtension(fileName) {
		return nil, 0, fmt.Errorf("unsupported file type for %s", fileName)
	}

	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		newRecord := &model.SourceDocument{
			FileMD5:     fileMD5,
			FileName:    fileName,
			ContentType: tika.DetectMimeType(fileName),
			TotalSize:   totalSize,
			Status:      0,
			UserID:      userID,
			CampaignID:  campaignID,
		}
		if err := s.uploadRepo.CreateDocumentRecord(newRecord); err != nil {
			log.Errorf("[UploadChunk] failed to create document record: %v", err)
			return nil, 0, err
		}
		record = newRecord
	} else if err != nil {
		log.Errorf("[UploadChunk] failed to look up document record: %v", err)
		return nil, 0, err
	}

	isUploaded, err := s.uploadRepo.IsChunkUploaded(ctx, fileMD5, campaignID, chunkIndex)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check chunk status from redis: %w", err)
	}
	if isUploaded {
		totalChunks := s.calculateTotalChunks(record.TotalSize)
		uploadedIndexes, err := s.uploadRepo.GetUploadedChunks(ctx, fileMD5, campaignID, totalChunks)
		if err != nil {
			return nil, 0, err
		}
		return uploadedIndexes, totalChunks, nil
	}

	objectName := fmt.Sprintf("chunks/%s/%d", fileMD5, chunkIndex)
	_, err = storage.MinioClient.PutObject(ctx, s.minioCfg.BucketName, objectName, file, -1, minio.PutObjectOptions{})
	if err != nil {
		log.Errorf("[UploadChunk] failed to store chunk %s: %v", objectName, err)
		return nil, 0, err
	}

	chunkRecord := &model.ChunkInfo{
		FileMD5:     fileMD5,
		ChunkIndex:  chunkIndex,
		StoragePath: objectName,
	}
	if err := s.uploadRepo.CreateChunkInfoRecord(chunkRecord); err != nil {
		log.Errorf("[UploadChunk] failed to record chunk: %v", err)
		return nil, 0, err
	}

	if err := s.uploadRepo.MarkChunkUploaded(ctx, fileMD5, campaignID, chunkIndex); err != nil {
		log.Errorf("[UploadChunk] failed to mark chunk uploaded in redis: %v", err)
		return nil, 0, err
	}

	totalChunks := s.calculateTotalChunks(record.TotalSize)
	uploadedIndexes, err := s.uploadRepo.GetUploadedChunks(ctx, fileMD5, campaignID, totalChunks)
	if err != nil {
		return nil, 0, err
	}

	log.Infof("[UploadChunk] chunk stored, progress %d/%d for file %s", len(uploadedIndexes), totalChunks, fileMD5)
	return uploadedIndexes, totalChunks, nil
}

// MergeChunks composes the uploaded chunks into the final object and
// enqueues the processing task. Returns the merged object key.
func (s *uploadService) MergeChunks(ctx context.Context, fileMD5, fileName string, campaignID string, userID uint) (string, error) {
	log.Infof("[MergeChunks] merging file %s in campaign %s", fileMD5, campaignID)
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		return "", err
	}

	totalChunks := s.calculateTotalChunks(record.TotalSize)
	uploadedIndexes, err := s.uploadRepo.GetUploadedChunks(ctx, fileMD5, campaignID, totalChunks)
	if err != nil {
		return "", fmt.Errorf("failed to get uploaded chunks from redis: %w", err)
	}
	if len(uploadedIndexes) < totalChunks {
		return "", fmt.Errorf("cannot merge, not all chunks uploaded (want %d, have %d)", totalChunks, len(uploadedIndexes))
	}

	destObjectName := fmt.Sprintf("%s/merged/%s", campaignID, fileName)

	if totalChunks == 1 {
		src := minio.CopySrcOptions{
			Bucket: s.minioCfg.BucketName,
			Object: fmt.Sprintf("chunks/%s/0", fileMD5),
		}
		dst := minio.CopyDestOptions{
			Bucket: s.minioCfg.BucketName,
			Object: destObjectName,
		}
		if _, err = storage.MinioClient.CopyObject(ctx, dst, src); err != nil {
			return "", fmt.Errorf("failed to copy single chunk object: %w", err)
		}
	} else {
		var srcs []minio.CopySrcOptions
		for i := 0; i < totalChunks; i++ {
			srcs = append(srcs, minio.CopySrcOptions{
				Bucket: s.minioCfg.BucketName,
				Object: fmt.Sprintf("chunks/%s/%d", fileMD5, i),
			})
		}
		dst := minio.CopyDestOptions{
			Bucket: s.minioCfg.BucketName,
			Object: destObjectName,
		}
		if _, err = storage.MinioClient.ComposeObject(ctx, dst, srcs...); err != nil {
			log.Errorf("[MergeChunks] compose failed: %v", err)
			return "", err
		}
	}

	now := time.Now()
	record.Status = 1
	record.MergedAt = &now
	if err := s.uploadRepo.UpdateDocumentRecord(record); err != nil {
		log.Errorf("[MergeChunks] failed to mark document completed: %v", err)
		return "", err
	}

	task := tasks.DocumentProcessingTask{
		FileMD5:    fileMD5,
		ObjectKey:  destObjectName,
		FileName:   fileName,
		CampaignID: campaignID,
		UserID:     userID,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		log.Errorf("[MergeChunks] failed to enqueue processing task: %v", err)
	} else {
		log.Infof("[MergeChunks] processing task enqueued for %s", fileName)
	}

	// Background cleanup of chunk objects and the Redis bitmap.
	go func() {
		bgCtx := context.Background()
		if err := s.uploadRepo.DeleteUploadMark(bgCtx, fileMD5, campaignID); err != nil {
			log.Warnf("[MergeChunks] cleanup: failed to delete upload mark for %s: %v", fileMD5, err)
		}

		objectsCh := make(chan minio.ObjectInfo)
		go func() {
			defer close(objectsCh)
			for i := 0; i < totalChunks; i++ {
				objectsCh <- minio.ObjectInfo{Key: fmt.Sprintf("chunks/%s/%d", fileMD5, i)}
			}
		}()
		for removeErr := range storage.MinioClient.RemoveObjects(bgCtx, s.minioCfg.BucketName, objectsCh, minio.RemoveObjectsOptions{}) {
			log.Warnf("[MergeChunks] cleanup: failed to remove chunk %s: %v", removeErr.ObjectName, removeErr.Err)
		}
	}()

	return destObjectName, nil
}

// GetUploadStatus reports the upload progress of one file.
func (s *uploadService) GetUploadStatus(ctx context.Context, fileMD5 string, campaignID string) (string, []int, int, error) {
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		return "", nil, 0, err
	}

	totalChunks := s.calculateTotalChunks(record.TotalSize)
	uploadedIndexes, err := s.uploadRepo.GetUploadedChunks(ctx, fileMD5, campaignID, totalChunks)
	if err != nil {
		return "", nil, 0, err
	}
	return record.FileName, uploadedIndexes, totalChunks, nil
}

// FastUpload reports whether the file already exists completed in the
// campaign.
func (s *uploadService) FastUpload(ctx context.Context, fileMD5 string, campaignID string) (bool, error) {
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.Status == 1, nil
}

// calculateTotalChunks derives the chunk count from the file size.
func (s *uploadService) calculateTotalChunks(totalSize int64) int {
	if totalSize == 0 {
		return 0
	}
	return int(math.Ceil(float64(totalSize) / float64(DefaultChunkSize)))
}

func hasSupportedExtension(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, ext := range supportedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
