// Package es provides the Elasticsearch client for the approved-shard
// knowledge index.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES initializes the Elasticsearch client and ensures the shard index
// exists.
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists checks whether the index exists and creates it
// with the shard mapping if not.
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("failed to check index existence: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("unexpected status code checking index '%s': %d", indexName, res.StatusCode)
		return fmt.Errorf("unexpected status code checking index existence: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"shard_id": { "type": "keyword" },
				"campaign_id": { "type": "keyword" },
				"resource_id": { "type": "keyword" },
				"shard_type": { "type": "keyword" },
				"text_content": { "type": "text" },
				"confidence": { "type": "float" },
				"approved_at": { "type": "date" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("failed to create index '%s': %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("Elasticsearch returned an error creating index '%s': %s", indexName, res.String())
		return errors.New("elasticsearch returned an error creating index")
	}

	log.Infof("index '%s' created", indexName)
	return nil
}

// IndexShard indexes a single approved shard document.
func IndexShard(ctx context.Context, indexName string, doc model.EsShard) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.ShardID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to index shard document: %s", res.String())
		return errors.New("failed to index shard document")
	}

	return nil
}

// DeleteShard removes a shard document from the index. A missing document
// is not an error; the shard may never have been approved.
func DeleteShard(ctx context.Context, indexName, shardID string) error {
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: shardID,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("failed to delete shard document: %s", res.String())
		return errors.New("failed to delete shard document")
	}
	return nil
}

// DeleteByCampaign removes every shard document belonging to a campaign.
func DeleteByCampaign(ctx context.Context, indexName, campaignID string) error {
	query := fmt.Sprintf(`{"query": {"term": {"campaign_id": %q}}}`, campaignID)

	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		strings.NewReader(query),
		ESClient.DeleteByQuery.WithContext(ctx),
		ESClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to delete campaign shards from index: %s", res.String())
		return errors.New("failed to delete campaign shards from index")
	}
	return nil
}

// SearchShards runs a full-text match on shard content, scoped to one
// campaign, and returns matching documents ordered by relevance.
func SearchShards(ctx context.Context, indexName, campaignID, queryText string, size int) ([]model.EsShard, error) {
	if size <= 0 {
		size = 20
	}

	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"match": map[string]interface{}{"text_content": queryText}},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"campaign_id": campaignID}},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("shard search failed: %s", res.String())
		return nil, errors.New("shard search failed")
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Source model.EsShard `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}

	shards := make([]model.EsShard, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		shards = append(shards, hit.Source)
	}
	return shards, nil
}
