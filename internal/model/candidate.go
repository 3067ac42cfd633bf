package model

import (
	"encoding/json"
	"fmt"
)

// ExtractionMeta carries the extraction-run details of a source reference.
type ExtractionMeta struct {
	FileName   string  `json:"fileName"`
	CampaignID string  `json:"campaignId"`
	ChunkID    string  `json:"chunkId"`
	Score      float64 `json:"score"`
}

// SourceRef points a candidate back at the fragment it was extracted from.
type SourceRef struct {
	FileKey string         `json:"fileKey"`
	Meta    ExtractionMeta `json:"meta"`
}

// CandidateMetadata is the review metadata attached to a candidate.
type CandidateMetadata struct {
	EntityType string  `json:"entityType"`
	Confidence float64 `json:"confidence"`
	SourceFile string  `json:"sourceFile"`
	Provenance string  `json:"provenance,omitempty"`
}

// ExtractedCandidate is one unit of proposed knowledge returned by the
// extraction service. It is never persisted directly; it is converted to a
// StagingRecord before anything touches the database.
type ExtractedCandidate struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  CandidateMetadata `json:"metadata"`
	SourceRef SourceRef         `json:"sourceRef"`
}

// stagedMetadata is the serialized form stored in StagingRecord.Metadata.
type stagedMetadata struct {
	CandidateMetadata
	SourceRef SourceRef `json:"sourceRef"`
}

// ToStagingRecord converts the candidate into its persisted form. The
// returned record always starts in the staged status.
func (c *ExtractedCandidate) ToStagingRecord(campaignID, resourceID string) (*StagingRecord, error) {
	meta := stagedMetadata{CandidateMetadata: c.Metadata, SourceRef: c.SourceRef}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize candidate metadata: %w", err)
	}

	return &StagingRecord{
		ID:         c.ID,
		CampaignID: campaignID,
		ResourceID: resourceID,
		ShardType:  c.Metadata.EntityType,
		Content:    c.Text,
		Metadata:   string(metaBytes),
		Status:     StagingStatusStaged,
	}, nil
}

// CandidateFromRecord rebuilds the in-memory candidate from a staging
// record, for classification during review.
func CandidateFromRecord(rec *StagingRecord) *ExtractedCandidate {
	cand := &ExtractedCandidate{
		ID:   rec.ID,
		Text: rec.Content,
	}
	var meta stagedMetadata
	if err := json.Unmarshal([]byte(rec.Metadata), &meta); err == nil {
		cand.Metadata = meta.CandidateMetadata
		cand.SourceRef = meta.SourceRef
	} else {
		cand.Metadata = CandidateMetadata{EntityType: rec.ShardType}
	}
	return cand
}
