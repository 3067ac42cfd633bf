package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/splitter"
)

func TestManifestCandidateKeys_CoversTextConvertedDocuments(t *testing.T) {
	keys := manifestCandidateKeys("camp-1", "handbook.docx")

	assert.Equal(t, []string{
		"camp-1/handbook.manifest.json",
		"camp-1/handbook.docx.manifest.json",
	}, keys)
}

func TestFragmentObjectKeys_ExactKeysFromManifest(t *testing.T) {
	manifest := splitter.Manifest{
		OriginalFilename: "doc.pdf",
		FragmentCount:    2,
		Fragments: []splitter.FragmentDescriptor{
			{Key: "camp-1/doc.p001.pdf", Size: 10, ContentType: "application/pdf"},
			{Key: "camp-1/doc.p002.pdf", Size: 12, ContentType: "application/pdf"},
		},
	}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)

	keys := fragmentObjectKeys(data)

	assert.Equal(t, []string{"camp-1/doc.p001.pdf", "camp-1/doc.p002.pdf"}, keys)
	// Only the keys the manifest names are deleted, never a sibling
	// resource whose base name extends this one.
	assert.NotContains(t, keys, "camp-1/doc.old.p001.pdf")
}

func TestFragmentObjectKeys_CorruptManifestYieldsNothing(t *testing.T) {
	assert.Empty(t, fragmentObjectKeys([]byte("not a manifest")))
}

func TestNewResourceSummary_RendersLocalTimestamps(t *testing.T) {
	merged := time.Date(2026, 3, 14, 10, 45, 30, 0, time.UTC)
	doc := model.SourceDocument{
		FileMD5:     "abc123",
		FileName:    "doc.pdf",
		ContentType: "application/pdf",
		TotalSize:   2048,
		Status:      1,
		CreatedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		MergedAt:    &merged,
	}

	data, err := json.Marshal(newResourceSummary(doc))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"uploadedAt":"2026-03-14 09:30:00"`)
	assert.Contains(t, string(data), `"mergedAt":"2026-03-14 10:45:30"`)
}

func TestNewResourceSummary_OmitsMergedAtWhenUnmerged(t *testing.T) {
	doc := model.SourceDocument{
		FileMD5:   "abc123",
		FileName:  "doc.pdf",
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(newResourceSummary(doc))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "mergedAt")
}
