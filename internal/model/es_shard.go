package model

import "time"

// EsShard is the Elasticsearch document for one approved knowledge shard.
type EsShard struct {
	ShardID     string    `json:"shard_id"`
	CampaignID  string    `json:"campaign_id"`
	ResourceID  string    `json:"resource_id"`
	ShardType   string    `json:"shard_type"`
	TextContent string    `json:"text_content"`
	Confidence  float64   `json:"confidence"`
	ApprovedAt  time.Time `json:"approved_at"`
}
