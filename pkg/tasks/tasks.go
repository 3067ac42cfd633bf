// Package tasks defines the structures of jobs sent through Kafka.
package tasks

// DocumentProcessingTask describes one merged source document awaiting
// fragmentation and candidate extraction.
type DocumentProcessingTask struct {
	FileMD5    string `json:"file_md5"`
	ObjectKey  string `json:"object_key"`
	FileName   string `json:"file_name"`
	CampaignID string `json:"campaign_id"`
	UserID     uint   `json:"user_id"`
}
