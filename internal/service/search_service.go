package service

import (
	"context"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/pkg/es"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

// SearchService answers knowledge queries over a campaign's approved
// shards.
type SearchService interface {
	Search(ctx context.Context, campaignID, query string, size int) ([]model.EsShard, error)
}

type searchService struct {
	stagingRepo repository.StagingRepository
	esCfg       config.ElasticsearchConfig
}

// NewSearchService creates a new SearchService instance.
func NewSearchService(stagingRepo repository.StagingRepository, esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{stagingRepo: stagingRepo, esCfg: esCfg}
}

// Search runs a full-text query against the knowledge index. When the
// index is unreachable it degrades to the relational substring search so
// reviewers still get results.
func (s *searchService) Search(ctx context.Context, campaignID, query string, size int) ([]model.EsShard, error) {
	shards, err := es.SearchShards(ctx, s.esCfg.IndexName, campaignID, query, size)
	if err == nil {
		return shards, nil
	}
	log.Warnf("[Search] index query failed, falling back to substring search: %v", err)

	records, err := s.stagingRepo.SearchApproved(campaignID, query)
	if err != nil {
		return nil, err
	}
	shards = make([]model.EsShard, 0, len(records))
	for i := range records {
		cand := model.CandidateFromRecord(&records[i])
		shards = append(shards, model.EsShard{
			ShardID:     records[i].ID,
			CampaignID:  records[i].CampaignID,
			ResourceID:  records[i].ResourceID,
			ShardType:   records[i].ShardType,
			TextContent: records[i].Content,
			Confidence:  cand.Metadata.Confidence,
			ApprovedAt:  records[i].UpdatedAt,
		})
	}
	return shards, nil
}
