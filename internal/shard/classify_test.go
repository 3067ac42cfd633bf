package shard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

func candidateWithText(text string) *model.ExtractedCandidate {
	return &model.ExtractedCandidate{
		ID:   "cand-1",
		Text: text,
		Metadata: model.CandidateMetadata{
			EntityType: "npc",
			Confidence: 0.8,
			SourceFile: "tenant/doc.p001.pdf",
		},
		SourceRef: model.SourceRef{FileKey: "tenant/doc.p001.pdf"},
	}
}

func TestClassify_WhitelistedTypeIsStructured(t *testing.T) {
	cand := candidateWithText(`{"type":"npc","name":"Elara","race":"elf","description":"A ranger."}`)

	s := Classify(cand)

	structured, ok := s.(*Structured)
	require.True(t, ok)
	assert.Equal(t, "cand-1", structured.ID)
	assert.Equal(t, "npc", structured.Type)
	assert.Equal(t, 0.8, structured.Confidence)
	assert.Equal(t, "Elara", structured.Fields["name"])
	assert.Equal(t, "name", structured.Hints.NameField)
	assert.False(t, structured.Stub)
}

func TestClassify_CandidateIDWinsOverPayloadID(t *testing.T) {
	cand := candidateWithText(`{"id":"payload-77","type":"location","name":"Thornkeep","description":"A border fort."}`)

	s := Classify(cand)

	structured, ok := s.(*Structured)
	require.True(t, ok)
	assert.Equal(t, "cand-1", structured.ID)
	assert.Equal(t, "payload-77", structured.ContentID)
	_, inFields := structured.Fields["id"]
	assert.False(t, inFields)
}

func TestClassify_UnknownTypeIsFlexible(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unlisted type", `{"type":"spaceship","name":"Nebula"}`},
		{"type not a string", `{"type":42,"name":"x"}`},
		{"no type field", `{"name":"x"}`},
		{"not json at all", "The ruined tower stands at the crossroads."},
		{"json array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := candidateWithText(tt.text)

			s := Classify(cand)

			flexible, ok := s.(*Flexible)
			require.True(t, ok)
			assert.Equal(t, "cand-1", flexible.ID)
			assert.Equal(t, tt.text, flexible.Text)
			assert.Equal(t, "npc", flexible.Type, "falls back to the declared entity type")
		})
	}
}

func TestClassify_FlexibleFallsBackToCustomTag(t *testing.T) {
	cand := candidateWithText("free text")
	cand.Metadata.EntityType = ""

	s := Classify(cand)

	flexible, ok := s.(*Flexible)
	require.True(t, ok)
	assert.Equal(t, "custom", flexible.Type)
}

func TestClassify_PayloadConfidenceAndStub(t *testing.T) {
	cand := candidateWithText(`{"type":"npc","name":"Bram","confidence":0.95,"stub":true}`)

	s := Classify(cand)

	structured, ok := s.(*Structured)
	require.True(t, ok)
	assert.Equal(t, 0.95, structured.Confidence)
	assert.True(t, structured.Stub)
}

func TestClassify_PayloadDisplayHintsOverrideDefaults(t *testing.T) {
	cand := candidateWithText(`{"type":"npc","name":"Bram","displayHints":{"nameField":"title","primaryTextField":"bio"}}`)

	s := Classify(cand)

	structured, ok := s.(*Structured)
	require.True(t, ok)
	assert.Equal(t, "title", structured.Hints.NameField)
	assert.Equal(t, "bio", structured.Hints.PrimaryTextField)
}

func TestEditableProperties_Structured(t *testing.T) {
	cand := candidateWithText(`{"type":"npc","name":"Elara","age":120,"tags":["ranger","elf"],"stats":{"str":10},"description":"d"}`)
	s := Classify(cand)

	props := EditableProperties(s)

	byKey := make(map[string]Property)
	for _, p := range props {
		byKey[p.Key] = p
	}
	assert.Equal(t, "string", byKey["name"].Type)
	assert.Equal(t, "number", byKey["age"].Type)
	assert.Equal(t, "array", byKey["tags"].Type)
	assert.Equal(t, "object", byKey["stats"].Type)
	_, hasID := byKey["id"]
	assert.False(t, hasID)
	_, hasMeta := byKey["metadata"]
	assert.False(t, hasMeta)
}

func TestEditableProperties_DuplicateKeysFirstWins(t *testing.T) {
	s := &Flexible{ID: "f1", Type: "custom", Text: "body"}
	s.Metadata.EntityType = "custom"

	props := EditableProperties(s)

	seen := make(map[string]int)
	for _, p := range props {
		seen[p.Key]++
	}
	for key, count := range seen {
		assert.Equal(t, 1, count, "key %q appears more than once", key)
	}
}

func TestToStorageUpdate_StructuredRoundTrip(t *testing.T) {
	cand := candidateWithText(`{"id":"c-9","type":"npc","name":"Elara","description":"A ranger."}`)
	s := Classify(cand)
	structured := s.(*Structured)
	structured.Fields["description"] = "An elven ranger."

	update, err := ToStorageUpdate(s, cand)

	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(update.Content), &payload))
	assert.Equal(t, "npc", payload["type"])
	assert.Equal(t, "c-9", payload["id"], "display-only content id is preserved")
	assert.Equal(t, "An elven ranger.", payload["description"])
	assert.Equal(t, 0.8, update.Confidence)
}

func TestToStorageUpdate_FlexibleUsesRawText(t *testing.T) {
	cand := candidateWithText("loose lore text")
	s := Classify(cand)

	update, err := ToStorageUpdate(s, cand)

	require.NoError(t, err)
	assert.Equal(t, "loose lore text", update.Content)
	assert.Equal(t, 0.8, update.Confidence)
}

func TestToStorageUpdate_ZeroConfidenceFallsBackToOriginal(t *testing.T) {
	cand := candidateWithText("text")
	s := Classify(cand)
	s.(*Flexible).Confidence = 0

	update, err := ToStorageUpdate(s, cand)

	require.NoError(t, err)
	assert.Equal(t, 0.8, update.Confidence)
}

func TestToStorageUpdate_ExplicitZeroConfidenceWins(t *testing.T) {
	cand := candidateWithText(`{"type":"npc","name":"Bram","confidence":0,"description":"d"}`)
	s := Classify(cand)

	require.True(t, s.(*Structured).ConfidenceSet)

	update, err := ToStorageUpdate(s, cand)

	require.NoError(t, err)
	assert.Equal(t, 0.0, update.Confidence, "an explicit zero is kept, not replaced by the original's")
}

func TestIsApprovable_StubGating(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		approvable  bool
		wantMissing []string
	}{
		{
			name:        "stub missing required fields",
			text:        `{"type":"npc","stub":true,"name":"Elara"}`,
			approvable:  false,
			wantMissing: []string{"description"},
		},
		{
			name:        "stub with empty string field",
			text:        `{"type":"npc","stub":true,"name":"  ","description":"d"}`,
			approvable:  false,
			wantMissing: []string{"name"},
		},
		{
			name:       "stub with all required fields filled",
			text:       `{"type":"npc","stub":true,"name":"Elara","description":"A ranger."}`,
			approvable: true,
		},
		{
			name:       "non-stub is always approvable",
			text:       `{"type":"npc","name":"Elara"}`,
			approvable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Classify(candidateWithText(tt.text))

			assert.Equal(t, tt.approvable, IsApprovable(s))
			assert.Equal(t, tt.wantMissing, MissingFields(s))
		})
	}
}

func TestIsApprovable_FlexibleAlwaysApprovable(t *testing.T) {
	s := Classify(candidateWithText("free text"))

	assert.True(t, IsApprovable(s))
	assert.Nil(t, MissingFields(s))
}
