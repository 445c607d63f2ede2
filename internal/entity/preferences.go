package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PreferencesID is the fixed local id of the per-user preferences singleton
const PreferencesID = "preferences"

// Preferences holds per-user settings. There is exactly one per user.
type Preferences struct {
	UserDietary     []string `json:"userDietary" yaml:"userDietary"`
	UserAvoid       []string `json:"userAvoid" yaml:"userAvoid"`
	UserAvoidOther  string   `json:"userAvoidOther" yaml:"userAvoidOther"`
	UserMeasurement string   `json:"userMeasurement" yaml:"userMeasurement" validate:"omitempty,oneof=metric imperial"`
	ThemeMode       string   `json:"themeMode" yaml:"themeMode" validate:"omitempty,oneof=light dark system"`
	UserLanguage    string   `json:"userLanguage" yaml:"userLanguage"`
	UpdatedAt       Millis   `json:"updatedAt" yaml:"updatedAt" validate:"gte=0"`
}

type preferencesContent struct {
	UserDietary     []string
	UserAvoid       []string
	UserAvoidOther  string
	UserMeasurement string
	ThemeMode       string
	UserLanguage    string
}

// DefaultPreferences returns the settings of a user who never changed anything
func DefaultPreferences() Preferences {
	return Preferences{
		UserDietary:     []string{},
		UserAvoid:       []string{},
		UserMeasurement: "metric",
		ThemeMode:       "system",
		UserLanguage:    "en",
	}
}

// PreferencesKind is the Kind descriptor for the preferences singleton
type PreferencesKind struct{}

func (PreferencesKind) Name() string                   { return "preferences" }
func (PreferencesKind) ID(Preferences) string          { return PreferencesID }
func (PreferencesKind) CreatedAt(Preferences) Millis   { return 0 }
func (PreferencesKind) UpdatedAt(p Preferences) Millis { return p.UpdatedAt }
func (PreferencesKind) IsDeleted(Preferences) bool     { return false }

// Stamp ignores createdAt: preferences carry no creation time
func (PreferencesKind) Stamp(p Preferences, _, updatedAt Millis) Preferences {
	p.UpdatedAt = updatedAt
	return p
}

// MarkDeleted is unsupported: preferences are reset, never deleted
func (PreferencesKind) MarkDeleted(p Preferences) (Preferences, bool) {
	return p, false
}

func (PreferencesKind) Comparable(p Preferences) any {
	return preferencesContent{
		UserDietary:     p.UserDietary,
		UserAvoid:       p.UserAvoid,
		UserAvoidOther:  p.UserAvoidOther,
		UserMeasurement: p.UserMeasurement,
		ThemeMode:       p.ThemeMode,
		UserLanguage:    p.UserLanguage,
	}
}

func (k PreferencesKind) Normalize(raw json.RawMessage) (Preferences, error) {
	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return Preferences{}, fmt.Errorf("%w: preferences: %v", ErrInvalidDocument, err)
	}
	p.UserDietary = orEmpty(p.UserDietary)
	p.UserAvoid = orEmpty(p.UserAvoid)

	if err := validateDoc(k.Name(), p); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// EncodeLegacy writes the singleton as a plain object, or null when absent
func (PreferencesKind) EncodeLegacy(docs []Preferences) (string, error) {
	if len(docs) == 0 {
		return "null", nil
	}
	data, err := json.Marshal(docs[len(docs)-1])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeLegacy accepts the plain object form as well as a one-element array
func (k PreferencesKind) DecodeLegacy(data string) ([]Result[Preferences], error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		return decodeArrayLegacy[Preferences](k, data)
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("failed to parse preferences legacy snapshot: invalid JSON")
	}
	doc, err := k.Normalize(trimmed)
	return []Result[Preferences]{{Doc: doc, Err: err}}, nil
}
