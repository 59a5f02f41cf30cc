// internal/models/playlist.go
package models

import (
	"fmt"
	"time"
)

// MaxRulesetID is the highest legal ruleset id (0 osu, 1 taiko, 2 catch, 3 mania).
const MaxRulesetID = 3

// Mod is a gameplay modifier identified by its acronym.
type Mod struct {
	Acronym  string         `json:"acronym"`
	Settings map[string]any `json:"settings,omitempty"`
}

// PlaylistItem is one entry of a room's queue.
type PlaylistItem struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	BeatmapID       int64      `json:"beatmap_id"`
	BeatmapChecksum string     `json:"beatmap_checksum"`
	RulesetID       int        `json:"ruleset_id"`
	RequiredMods    []Mod      `json:"required_mods"`
	AllowedMods     []Mod      `json:"allowed_mods"`
	Freestyle       bool       `json:"freestyle"`
	Expired         bool       `json:"expired"`
	PlayedAt        *time.Time `json:"played_at,omitempty"`
}

// Clone returns a copy that shares nothing mutable with item.
func (item *PlaylistItem) Clone() *PlaylistItem {
	cp := *item
	cp.RequiredMods = append([]Mod(nil), item.RequiredMods...)
	cp.AllowedMods = append([]Mod(nil), item.AllowedMods...)
	if item.PlayedAt != nil {
		at := *item.PlayedAt
		cp.PlayedAt = &at
	}
	return &cp
}

// Allows reports whether a user may pick mod freely on this item.
func (item *PlaylistItem) Allows(mod Mod) bool {
	for _, m := range item.AllowedMods {
		if m.Acronym == mod.Acronym {
			return true
		}
	}
	return false
}

// ValidateMods checks the item's mod sets are well formed: no duplicates and no mod
// both required and allowed.
func (item *PlaylistItem) ValidateMods() error {
	required := make(map[string]bool, len(item.RequiredMods))
	for _, m := range item.RequiredMods {
		if m.Acronym == "" {
			return fmt.Errorf("empty mod acronym")
		}
		if required[m.Acronym] {
			return fmt.Errorf("duplicate required mod %s", m.Acronym)
		}
		required[m.Acronym] = true
	}
	allowed := make(map[string]bool, len(item.AllowedMods))
	for _, m := range item.AllowedMods {
		if m.Acronym == "" {
			return fmt.Errorf("empty mod acronym")
		}
		if allowed[m.Acronym] {
			return fmt.Errorf("duplicate allowed mod %s", m.Acronym)
		}
		if required[m.Acronym] {
			return fmt.Errorf("mod %s cannot be both required and allowed", m.Acronym)
		}
		allowed[m.Acronym] = true
	}
	return nil
}

// Beatmap is the subset of beatmap metadata the room validates against.
type Beatmap struct {
	ID        int64  `json:"id"`
	SetID     int64  `json:"beatmapset_id"`
	Checksum  string `json:"checksum"`
	RulesetID int    `json:"ruleset_id"`
}

// SupportsRuleset reports whether the beatmap can be played in ruleset.
// Only osu!standard beatmaps convert to other rulesets.
func (b *Beatmap) SupportsRuleset(ruleset int) bool {
	if ruleset < 0 || ruleset > MaxRulesetID {
		return false
	}
	return b.RulesetID == 0 || b.RulesetID == ruleset
}
