package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/internal/splitter"
	"github.com/ofisk/loresmith-ai-sub003/pkg/es"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/storage"
)

// ResourceService manages a campaign's document library: listing,
// download links and full removal of a resource with everything derived
// from it.
type ResourceService interface {
	ListResources(ctx context.Context, campaignID string) ([]ResourceSummary, error)
	GetDownloadURL(ctx context.Context, campaignID, fileMD5 string) (string, error)
	DeleteResource(ctx context.Context, campaignID, fileMD5 string) error
}

// ResourceSummary is the library listing shape returned to clients, with
// timestamps in the local display format.
type ResourceSummary struct {
	FileMD5     string           `json:"fileMd5"`
	FileName    string           `json:"fileName"`
	ContentType string           `json:"contentType"`
	TotalSize   int64            `json:"totalSize"`
	Status      int              `json:"status"`
	UploadedAt  model.LocalTime  `json:"uploadedAt"`
	MergedAt    *model.LocalTime `json:"mergedAt,omitempty"`
}

func newResourceSummary(doc model.SourceDocument) ResourceSummary {
	summary := ResourceSummary{
		FileMD5:     doc.FileMD5,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		TotalSize:   doc.TotalSize,
		Status:      doc.Status,
		UploadedAt:  model.LocalTime(doc.CreatedAt),
	}
	if doc.MergedAt != nil {
		merged := model.LocalTime(*doc.MergedAt)
		summary.MergedAt = &merged
	}
	return summary
}

type resourceService struct {
	uploadRepo  repository.UploadRepository
	stagingRepo repository.StagingRepository
	minioCfg    config.MinIOConfig
	esCfg       config.ElasticsearchConfig
}

// NewResourceService creates a new ResourceService instance.
func NewResourceService(uploadRepo repository.UploadRepository, stagingRepo repository.StagingRepository, minioCfg config.MinIOConfig, esCfg config.ElasticsearchConfig) ResourceService {
	return &resourceService{
		uploadRepo:  uploadRepo,
		stagingRepo: stagingRepo,
		minioCfg:    minioCfg,
		esCfg:       esCfg,
	}
}

// ListResources returns every document in the campaign's library.
func (s *resourceService) ListResources(ctx context.Context, campaignID string) ([]ResourceSummary, error) {
	docs, err := s.uploadRepo.FindDocumentsByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	summaries := make([]ResourceSummary, 0, len(docs))
	for i := range docs {
		summaries = append(summaries, newResourceSummary(docs[i]))
	}
	return summaries, nil
}

// GetDownloadURL returns a presigned link to the merged document.
func (s *resourceService) GetDownloadURL(ctx context.Context, campaignID, fileMD5 string) (string, error) {
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("%s/merged/%s", campaignID, record.FileName)
	return storage.GetPresignedURL(s.minioCfg.BucketName, objectName, time.Hour)
}

// DeleteResource removes a document and everything derived from it: the
// merged object, its fragments and manifest, its staging records and its
// search documents.
func (s *resourceService) DeleteResource(ctx context.Context, campaignID, fileMD5 string) error {
	record, err := s.uploadRepo.GetDocumentRecord(fileMD5, campaignID)
	if err != nil {
		return err
	}

	// Search documents first, while the staging records still exist.
	staged, err := s.stagingRepo.FindByResource(fileMD5)
	if err != nil {
		log.Warnf("[DeleteResource] cannot list staging records for %s: %v", fileMD5, err)
	}
	for i := range staged {
		if err := es.DeleteShard(ctx, s.esCfg.IndexName, staged[i].ID); err != nil {
			log.Warnf("[DeleteResource] failed to remove shard %s from index: %v", staged[i].ID, err)
		}
	}

	if err := s.stagingRepo.DeleteByResource(fileMD5); err != nil {
		return err
	}

	// Delete exactly the objects this resource owns. The manifest names
	// the fragment keys; a dotted-prefix sweep would also hit sibling
	// resources whose base name extends this one (deleting "doc.pdf" must
	// not touch "doc.old.p001.pdf").
	objectKeys := []string{fmt.Sprintf("%s/merged/%s", campaignID, record.FileName)}
	manifestFound := false
	for _, manifestKey := range manifestCandidateKeys(campaignID, record.FileName) {
		manifestData, err := storage.GetObjectBytes(ctx, s.minioCfg.BucketName, manifestKey)
		if err != nil {
			continue
		}
		fragKeys := fragmentObjectKeys(manifestData)
		if len(fragKeys) == 0 {
			continue
		}
		objectKeys = append(objectKeys, fragKeys...)
		objectKeys = append(objectKeys, manifestKey)
		manifestFound = true
		break
	}
	if !manifestFound {
		log.Warnf("[DeleteResource] no manifest found for %s, fragment cleanup skipped", record.FileName)
	}
	storage.RemoveObjects(ctx, s.minioCfg.BucketName, objectKeys)

	if err := s.uploadRepo.DeleteDocumentRecord(fileMD5, campaignID); err != nil {
		return err
	}
	log.Infof("[DeleteResource] removed resource %s from campaign %s", record.FileName, campaignID)
	return nil
}

// manifestCandidateKeys lists the object keys a resource's manifest may
// live under. Documents converted to text before splitting carry a ".txt"
// suffix on their fragment base name, so both spellings are tried.
func manifestCandidateKeys(campaignID, fileName string) []string {
	return []string{
		splitter.ManifestKey(campaignID, fileName),
		splitter.ManifestKey(campaignID, fileName+".txt"),
	}
}

// fragmentObjectKeys decodes a stored manifest and returns its fragment
// keys. A corrupt manifest yields no keys.
func fragmentObjectKeys(manifestData []byte) []string {
	var manifest splitter.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil
	}
	keys := make([]string, 0, len(manifest.Fragments))
	for _, frag := range manifest.Fragments {
		keys = append(keys, frag.Key)
	}
	return keys
}
