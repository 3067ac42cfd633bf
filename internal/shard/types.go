// Package shard classifies extraction candidates into their review shape
// and normalizes them for editing and persistence.
package shard

// DisplayHints tells the review surface which fields to feature for a
// structured shard.
type DisplayHints struct {
	NameField        string   `json:"nameField"`
	SubtitleFields   []string `json:"subtitleFields"`
	QuickInfoFields  []string `json:"quickInfoFields"`
	PrimaryTextField string   `json:"primaryTextField"`
}

// TypeSpec declares the per-entity-type contract: which fields a stub must
// fill before approval, and the default display hints.
type TypeSpec struct {
	Required []string
	Hints    DisplayHints
}

// typeSpecs is the closed whitelist of domain entity types. A candidate
// whose declared type is not listed here is always classified as flexible.
var typeSpecs = map[string]TypeSpec{
	"npc": {
		Required: []string{"name", "description"},
		Hints: DisplayHints{
			NameField:        "name",
			SubtitleFields:   []string{"race", "occupation"},
			QuickInfoFields:  []string{"location", "faction", "attitude"},
			PrimaryTextField: "description",
		},
	},
	"location": {
		Required: []string{"name", "description"},
		Hints: DisplayHints{
			NameField:        "name",
			SubtitleFields:   []string{"region", "locationType"},
			QuickInfoFields:  []string{"population", "ruler", "notableFeatures"},
			PrimaryTextField: "description",
		},
	},
	"item": {
		Required: []string{"name", "description"},
		Hints: DisplayHints{
			NameField:        "name",
			SubtitleFields:   []string{"itemType", "rarity"},
			QuickInfoFields:  []string{"value", "attunement", "owner"},
			PrimaryTextField: "description",
		},
	},
	"faction": {
		Required: []string{"name", "description", "goals"},
		Hints: DisplayHints{
			NameField:        "name",
			SubtitleFields:   []string{"alignment", "scope"},
			QuickInfoFields:  []string{"leader", "headquarters", "allies"},
			PrimaryTextField: "description",
		},
	},
	"quest_hook": {
		Required: []string{"title", "summary"},
		Hints: DisplayHints{
			NameField:        "title",
			SubtitleFields:   []string{"questGiver", "difficulty"},
			QuickInfoFields:  []string{"reward", "location", "deadline"},
			PrimaryTextField: "summary",
		},
	},
	"encounter": {
		Required: []string{"title", "description", "difficulty"},
		Hints: DisplayHints{
			NameField:        "title",
			SubtitleFields:   []string{"encounterType", "difficulty"},
			QuickInfoFields:  []string{"location", "creatures", "treasure"},
			PrimaryTextField: "description",
		},
	},
	"deity": {
		Required: []string{"name", "domain"},
		Hints: DisplayHints{
			NameField:        "name",
			SubtitleFields:   []string{"domain", "alignment"},
			QuickInfoFields:  []string{"symbol", "worshippers", "pantheon"},
			PrimaryTextField: "description",
		},
	},
	"lore": {
		Required: []string{"title", "content"},
		Hints: DisplayHints{
			NameField:        "title",
			SubtitleFields:   []string{"era", "loreType"},
			QuickInfoFields:  []string{"relatedFactions", "relatedLocations"},
			PrimaryTextField: "content",
		},
	},
}

// KnownType reports whether t is in the entity-type whitelist.
func KnownType(t string) bool {
	_, ok := typeSpecs[t]
	return ok
}

// SpecFor returns the type contract for a whitelisted entity type.
func SpecFor(t string) (TypeSpec, bool) {
	spec, ok := typeSpecs[t]
	return spec, ok
}

// KnownTypes returns the whitelist for callers that need to enumerate it.
func KnownTypes() []string {
	types := make([]string, 0, len(typeSpecs))
	for t := range typeSpecs {
		types = append(types, t)
	}
	return types
}
