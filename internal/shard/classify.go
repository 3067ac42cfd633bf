package shard

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
)

// Shard is the classified form of a staged candidate: either Structured
// (whitelisted entity type with a parsed field map) or Flexible (open
// property bag). Classification happens once; downstream code switches on
// the concrete type instead of re-parsing payloads.
type Shard interface {
	ShardID() string
	TypeTag() string
	ConfidenceScore() float64
}

// Structured is a candidate whose payload parsed as an object with a
// whitelisted entity type.
type Structured struct {
	ID         string                 `json:"id"`
	ContentID  string                 `json:"contentId,omitempty"` // payload's own id, display only
	Type       string                 `json:"type"`
	Confidence float64                `json:"confidence"`
	// ConfidenceSet distinguishes an explicit payload confidence, even a
	// zero one, from the candidate-level default.
	ConfidenceSet bool                   `json:"-"`
	Fields        map[string]interface{} `json:"fields"`
	Hints         DisplayHints           `json:"displayHints"`
	Stub          bool                   `json:"stub"`
}

func (s *Structured) ShardID() string          { return s.ID }
func (s *Structured) TypeTag() string          { return s.Type }
func (s *Structured) ConfidenceScore() float64 { return s.Confidence }

// Flexible is the fallback shape: raw text plus metadata, no field
// guarantees.
type Flexible struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Confidence float64                 `json:"confidence"`
	Text       string                  `json:"text"`
	Metadata   model.CandidateMetadata `json:"metadata"`
	SourceRef  model.SourceRef         `json:"sourceRef"`
}

func (f *Flexible) ShardID() string          { return f.ID }
func (f *Flexible) TypeTag() string          { return f.Type }
func (f *Flexible) ConfidenceScore() float64 { return f.Confidence }

// Classify resolves a candidate into its review shape. A payload that
// parses as a JSON object with a whitelisted type becomes Structured;
// everything else, including parse failures and unknown types, degrades to
// Flexible. Classification never fails.
func Classify(cand *model.ExtractedCandidate) Shard {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(cand.Text), &payload); err == nil {
		if typeTag, ok := payload["type"].(string); ok && KnownType(typeTag) {
			return classifyStructured(cand, typeTag, payload)
		}
	}

	typeTag := cand.Metadata.EntityType
	if typeTag == "" {
		typeTag = "custom"
	}
	return &Flexible{
		ID:         cand.ID,
		Type:       typeTag,
		Confidence: cand.Metadata.Confidence,
		Text:       cand.Text,
		Metadata:   cand.Metadata,
		SourceRef:  cand.SourceRef,
	}
}

func classifyStructured(cand *model.ExtractedCandidate, typeTag string, payload map[string]interface{}) *Structured {
	spec, _ := SpecFor(typeTag)

	s := &Structured{
		ID:         cand.ID, // candidate id wins over any id in the payload
		Type:       typeTag,
		Confidence: cand.Metadata.Confidence,
		Fields:     make(map[string]interface{}, len(payload)),
		Hints:      spec.Hints,
	}

	for key, value := range payload {
		switch key {
		case "id":
			if contentID, ok := value.(string); ok {
				s.ContentID = contentID
			}
		case "type":
			// carried on the shard itself
		case "confidence":
			if conf, ok := value.(float64); ok {
				s.Confidence = conf
				s.ConfidenceSet = true
			}
		case "stub", "isStub":
			if stub, ok := value.(bool); ok {
				s.Stub = stub
			}
		case "displayHints":
			if hints := parseDisplayHints(value); hints != nil {
				s.Hints = *hints
			}
		default:
			s.Fields[key] = value
		}
	}
	return s
}

// parseDisplayHints reads author-supplied hints from the payload. They
// override the per-type defaults wholesale when present.
func parseDisplayHints(value interface{}) *DisplayHints {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var hints DisplayHints
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil
	}
	return &hints
}

// Property is one editable key/value pair exposed to the review surface.
type Property struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Type  string      `json:"type"` // string | number | array | object
}

// identity and audit keys are never editable.
var nonEditableKeys = map[string]bool{
	"id":        true,
	"metadata":  true,
	"createdAt": true,
	"updatedAt": true,
}

// EditableProperties flattens a shard into editable triples. Duplicate
// keys are suppressed, first occurrence wins.
func EditableProperties(s Shard) []Property {
	seen := make(map[string]bool)
	var props []Property
	add := func(key string, value interface{}) {
		if nonEditableKeys[key] || seen[key] {
			return
		}
		seen[key] = true
		props = append(props, Property{Key: key, Value: value, Type: propertyType(value)})
	}

	switch shard := s.(type) {
	case *Structured:
		keys := make([]string, 0, len(shard.Fields))
		for key := range shard.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			add(key, shard.Fields[key])
		}
	case *Flexible:
		add("text", shard.Text)
		add("entityType", shard.Metadata.EntityType)
		add("sourceFile", shard.Metadata.SourceFile)
		if shard.Metadata.Provenance != "" {
			add("provenance", shard.Metadata.Provenance)
		}
	}
	return props
}

func propertyType(value interface{}) string {
	switch value.(type) {
	case float64, int, int64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "string"
	}
}

// StorageUpdate is the payload for writing an edited shard back to the
// staging store.
type StorageUpdate struct {
	Content    string
	Confidence float64
}

// ToStorageUpdate reconstructs the persistable text payload from an edited
// shard. Structured shards re-serialize their field map with the type tag
// and display-only content id; flexible shards write their raw text. The
// recorded confidence is the shard's own when present, else the original
// candidate's. A payload that explicitly carries confidence keeps it even
// when the value is zero.
func ToStorageUpdate(s Shard, original *model.ExtractedCandidate) (StorageUpdate, error) {
	confidence := s.ConfidenceScore()
	explicit := false
	if structured, ok := s.(*Structured); ok {
		explicit = structured.ConfidenceSet
	}
	if !explicit && confidence <= 0 {
		confidence = original.Metadata.Confidence
	}

	switch shard := s.(type) {
	case *Structured:
		payload := make(map[string]interface{}, len(shard.Fields)+2)
		for key, value := range shard.Fields {
			payload[key] = value
		}
		payload["type"] = shard.Type
		if shard.ContentID != "" {
			payload["id"] = shard.ContentID
		}
		if shard.Stub {
			payload["stub"] = true
		}
		content, err := json.Marshal(payload)
		if err != nil {
			return StorageUpdate{}, err
		}
		return StorageUpdate{Content: string(content), Confidence: confidence}, nil
	case *Flexible:
		return StorageUpdate{Content: shard.Text, Confidence: confidence}, nil
	}
	return StorageUpdate{Content: original.Text, Confidence: confidence}, nil
}

// MissingFields lists the required fields a stub has not filled yet. A
// non-stub or flexible shard never has missing fields.
func MissingFields(s Shard) []string {
	structured, ok := s.(*Structured)
	if !ok || !structured.Stub {
		return nil
	}
	spec, ok := SpecFor(structured.Type)
	if !ok {
		return nil
	}

	var missing []string
	for _, field := range spec.Required {
		if isEmptyField(structured.Fields[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsApprovable reports whether the shard may be approved: every required
// field for a stub's entity type must be non-empty.
func IsApprovable(s Shard) bool {
	return len(MissingFields(s)) == 0
}

func isEmptyField(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}
