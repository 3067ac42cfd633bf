package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

func TestExtract_SendsFragmentTextAndDecodesCandidates(t *testing.T) {
	var got ExtractRequest
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(extractResponse{
			Candidates: []model.ExtractedCandidate{{ID: "cand-1", Text: "payload"}},
		})
	}))
	defer srv.Close()

	client := NewClient(config.ExtractionConfig{BaseURL: srv.URL, APIKey: "secret", TimeoutSeconds: 5})
	candidates, err := client.Extract(context.Background(), ExtractRequest{
		FragmentKey: "camp-1/doc.p001.pdf",
		Text:        "The innkeeper Bram knows the pass.",
		FileName:    "doc.pdf",
		CampaignID:  "camp-1",
		ResourceID:  "md5-1",
	})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "cand-1", candidates[0].ID)

	assert.Equal(t, "/extract", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "camp-1/doc.p001.pdf", got.FragmentKey)
	assert.Equal(t, "The innkeeper Bram knows the pass.", got.Text, "the fragment text travels in the request body")
	assert.Equal(t, "camp-1", got.CampaignID)
	assert.Equal(t, "md5-1", got.ResourceID)
}

func TestExtract_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.ExtractionConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	_, err := client.Extract(context.Background(), ExtractRequest{FragmentKey: "k"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")
}
