package state

import (
	"encoding/json"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"
)

// TextColor is the foreground mode of the presented text.
type TextColor string

const (
	TextColorLight TextColor = "light" // white text on a dark panel
	TextColorDark  TextColor = "dark"  // black text on a light panel
)

// Valid reports whether c is one of the known text color modes.
func (c TextColor) Valid() bool {
	return c == TextColorLight || c == TextColorDark
}

// Settings holds the presentation display parameters shared by operator and
// presenter windows.
type Settings struct {
	FontRem          float64   `json:"fontRem"`
	LineHeight       float64   `json:"lineHeight"`
	MaxWidthPx       int       `json:"maxWidthPx"`
	VersesPerSlide   int       `json:"versesPerSlide"`
	ShowVerseNumbers bool      `json:"showVerseNumbers"`
	ShowRef          bool      `json:"showRef"`
	ShowDock         bool      `json:"showDock"`
	DockAutoHideSec  int       `json:"dockAutoHideSec"`
	BackgroundURL    *string   `json:"backgroundUrl"`
	BackgroundDim    float64   `json:"backgroundDim"`
	BackdropBlurPx   int       `json:"backdropBlurPx"`
	TextColor        TextColor `json:"textColor"`

	// Extra keeps keys this version does not know about so they survive a
	// round trip through storage. Extras are never broadcast.
	Extra map[string]json.RawMessage `json:"-"`
}

// settingsFields has the same layout as Settings without its JSON methods.
type settingsFields Settings

// DisplayKeys are the settings keys that matter to presenter rendering and
// are carried by SETTINGS broadcasts.
var DisplayKeys = mapset.NewSet(
	"fontRem",
	"lineHeight",
	"maxWidthPx",
	"versesPerSlide",
	"showVerseNumbers",
	"showRef",
	"showDock",
	"dockAutoHideSec",
	"backgroundUrl",
	"backgroundDim",
	"backdropBlurPx",
	"textColor",
)

// DefaultSettings returns the settings every window starts from.
func DefaultSettings() Settings {
	return Settings{
		FontRem:          2.2,
		LineHeight:       1.4,
		MaxWidthPx:       1000,
		VersesPerSlide:   1,
		ShowVerseNumbers: true,
		ShowRef:          true,
		ShowDock:         true,
		DockAutoHideSec:  6,
		BackgroundURL:    nil,
		BackgroundDim:    0.35,
		BackdropBlurPx:   8,
		TextColor:        TextColorLight,
	}
}

// SettingsPatch is a partial settings record keyed by JSON field name.
type SettingsPatch map[string]json.RawMessage

// PatchOf builds a single-key patch from a Go value.
func PatchOf(key string, value any) (SettingsPatch, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	return SettingsPatch{key: raw}, nil
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	if s.BackgroundURL != nil {
		u := *s.BackgroundURL
		out.BackgroundURL = &u
	}
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Merge applies patch on top of s key by key and returns the result. Known
// keys overwrite their field when the value decodes into the field type;
// known keys with undecodable values are skipped. Unknown keys are kept in
// Extra.
func (s Settings) Merge(patch SettingsPatch) Settings {
	out := s.Clone()
	for key, value := range patch {
		if !DisplayKeys.Contains(key) {
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[key] = value
			continue
		}

		next := out
		single, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping settings key")
			continue
		}
		if err := json.Unmarshal(single, (*settingsFields)(&next)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping settings key with invalid value")
			continue
		}
		if key == "textColor" && !next.TextColor.Valid() {
			log.Warn().Str("key", key).Str("value", string(next.TextColor)).Msg("skipping unknown text color")
			continue
		}
		out = next
	}
	return out
}

// Display returns the settings restricted to the display keys.
func (s Settings) Display() Settings {
	out := s.Clone()
	out.Extra = nil
	return out
}

// MarshalJSON writes the known fields followed by any extra keys.
func (s Settings) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(settingsFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(known, &record); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, exists := record[k]; !exists {
			record[k] = v
		}
	}
	return json.Marshal(record)
}

// UnmarshalJSON merges a JSON object onto the receiver, so decoding into
// DefaultSettings() yields defaults overlaid with the stored keys.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var patch SettingsPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return err
	}
	*s = s.Merge(patch)
	return nil
}

type stepRule struct {
	step, min, max float64
}

// stepRules are the operator panel increments and bounds.
var stepRules = map[string]stepRule{
	"fontRem":         {step: 0.1, min: 1.0, max: 6},
	"lineHeight":      {step: 0.05, min: 1.2, max: 2},
	"maxWidthPx":      {step: 50, min: 600, max: 1600},
	"versesPerSlide":  {step: 1, min: 1, max: 8},
	"backgroundDim":   {step: 0.05, min: 0, max: 0.9},
	"backdropBlurPx":  {step: 1, min: 0, max: 24},
	"dockAutoHideSec": {step: 1, min: 0, max: 30},
}

// Step nudges a numeric setting one increment up (direction > 0) or down
// (direction < 0), staying within the setting's bounds, and returns the
// single-key patch that produces the new value.
func (s Settings) Step(key string, direction int) (SettingsPatch, error) {
	rule, ok := stepRules[key]
	if !ok {
		return nil, fmt.Errorf("setting %q cannot be stepped", key)
	}

	current := s.numeric(key)
	switch {
	case direction > 0:
		current += rule.step
	case direction < 0:
		current -= rule.step
	}
	current = math.Max(rule.min, math.Min(rule.max, current))
	current = math.Round(current*100) / 100

	if rule.step >= 1 {
		return PatchOf(key, int(math.Round(current)))
	}
	return PatchOf(key, current)
}

func (s Settings) numeric(key string) float64 {
	switch key {
	case "fontRem":
		return s.FontRem
	case "lineHeight":
		return s.LineHeight
	case "maxWidthPx":
		return float64(s.MaxWidthPx)
	case "versesPerSlide":
		return float64(s.VersesPerSlide)
	case "backgroundDim":
		return s.BackgroundDim
	case "backdropBlurPx":
		return float64(s.BackdropBlurPx)
	case "dockAutoHideSec":
		return float64(s.DockAutoHideSec)
	}
	return 0
}
