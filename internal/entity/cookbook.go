package entity

import (
	"encoding/json"
	"fmt"
)

// Cookbook is a user-owned collection of recipes
type Cookbook struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Name      string `json:"name" yaml:"name" validate:"required"`
	ImageURL  string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	CreatedAt Millis `json:"createdAt" yaml:"createdAt" validate:"gte=0"`
	UpdatedAt Millis `json:"updatedAt" yaml:"updatedAt" validate:"gte=0"`
	IsDeleted bool   `json:"isDeleted,omitempty" yaml:"isDeleted,omitempty"`
}

type cookbookWire struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ImageURL  *string `json:"imageUrl"`
	Image     *string `json:"image"`
	CreatedAt Millis  `json:"createdAt"`
	UpdatedAt Millis  `json:"updatedAt"`
	IsDeleted bool    `json:"isDeleted"`
}

type cookbookContent struct {
	Name      string
	ImageURL  string
	IsDeleted bool
}

// CookbookKind is the Kind descriptor for cookbooks
type CookbookKind struct{}

func (CookbookKind) Name() string                { return "cookbooks" }
func (CookbookKind) ID(c Cookbook) string        { return c.ID }
func (CookbookKind) CreatedAt(c Cookbook) Millis { return c.CreatedAt }
func (CookbookKind) UpdatedAt(c Cookbook) Millis { return c.UpdatedAt }
func (CookbookKind) IsDeleted(c Cookbook) bool   { return c.IsDeleted }
func (CookbookKind) Comparable(c Cookbook) any   { return cookbookContent{c.Name, c.ImageURL, c.IsDeleted} }

func (CookbookKind) EncodeLegacy(docs []Cookbook) (string, error) {
	return encodeArrayLegacy(docs)
}

func (CookbookKind) Stamp(c Cookbook, createdAt, updatedAt Millis) Cookbook {
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c
}

func (CookbookKind) MarkDeleted(c Cookbook) (Cookbook, bool) {
	c.IsDeleted = true
	return c, true
}

func (k CookbookKind) Normalize(raw json.RawMessage) (Cookbook, error) {
	var w cookbookWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Cookbook{}, fmt.Errorf("%w: cookbooks: %v", ErrInvalidDocument, err)
	}

	c := Cookbook{
		ID:        w.ID,
		Name:      w.Name,
		ImageURL:  pickImageURL(w.ImageURL, w.Image),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
		IsDeleted: w.IsDeleted,
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = c.CreatedAt
	}

	if err := validateDoc(k.Name(), c); err != nil {
		return Cookbook{}, err
	}
	return c, nil
}

func (k CookbookKind) DecodeLegacy(data string) ([]Result[Cookbook], error) {
	return decodeArrayLegacy[Cookbook](k, data)
}
