package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Ingredient is one line of a recipe's ingredient list
type Ingredient struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Quantity string `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare ingredient name
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*i = Ingredient{Name: name}
		return nil
	}
	type plain Ingredient
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Ingredient(p)
	return nil
}

// Recipe is a single recipe, optionally filed into cookbooks
type Recipe struct {
	ID                 string       `json:"id" yaml:"id" validate:"required"`
	Title              string       `json:"title" yaml:"title" validate:"required"`
	ImageURL           string       `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	CreatedAt          Millis       `json:"createdAt" yaml:"createdAt" validate:"gte=0"`
	UpdatedAt          Millis       `json:"updatedAt" yaml:"updatedAt" validate:"gte=0"`
	CookingTimeMinutes *int         `json:"cookingTimeMinutes,omitempty" yaml:"cookingTimeMinutes,omitempty" validate:"omitempty,gte=0"`
	Difficulty         string       `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Servings           *int         `json:"servings,omitempty" yaml:"servings,omitempty" validate:"omitempty,gte=0"`
	Cost               string       `json:"cost,omitempty" yaml:"cost,omitempty"`
	Ingredients        []Ingredient `json:"ingredients" yaml:"ingredients" validate:"dive"`
	Steps              []string     `json:"steps" yaml:"steps"`
	CookbookIDs        []string     `json:"cookbookIds" yaml:"cookbookIds" validate:"dive,required"`
	Tags               []string     `json:"tags" yaml:"tags"`
	IsDeleted          bool         `json:"isDeleted,omitempty" yaml:"isDeleted,omitempty"`
}

type recipeWire struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	ImageURL           *string         `json:"imageUrl"`
	Image              *string         `json:"image"`
	CreatedAt          Millis          `json:"createdAt"`
	UpdatedAt          Millis          `json:"updatedAt"`
	CookingTimeMinutes *int            `json:"cookingTimeMinutes"`
	Difficulty         string          `json:"difficulty"`
	Servings           *int            `json:"servings"`
	Cost               json.RawMessage `json:"cost"`
	Ingredients        []Ingredient    `json:"ingredients"`
	Steps              []string        `json:"steps"`
	CookbookIDs        []string        `json:"cookbookIds"`
	Tags               []string        `json:"tags"`
	IsDeleted          bool            `json:"isDeleted"`
}

type recipeContent struct {
	Title              string
	ImageURL           string
	CookingTimeMinutes *int
	Difficulty         string
	Servings           *int
	Cost               string
	Ingredients        []Ingredient
	Steps              []string
	CookbookIDs        []string
	Tags               []string
	IsDeleted          bool
}

// RecipeKind is the Kind descriptor for recipes
type RecipeKind struct{}

func (RecipeKind) Name() string              { return "recipes" }
func (RecipeKind) ID(r Recipe) string        { return r.ID }
func (RecipeKind) CreatedAt(r Recipe) Millis { return r.CreatedAt }
func (RecipeKind) UpdatedAt(r Recipe) Millis { return r.UpdatedAt }
func (RecipeKind) IsDeleted(r Recipe) bool   { return r.IsDeleted }

func (RecipeKind) Stamp(r Recipe, createdAt, updatedAt Millis) Recipe {
	r.CreatedAt = createdAt
	r.UpdatedAt = updatedAt
	return r
}

func (RecipeKind) MarkDeleted(r Recipe) (Recipe, bool) {
	r.IsDeleted = true
	return r, true
}

func (RecipeKind) Comparable(r Recipe) any {
	return recipeContent{
		Title:              r.Title,
		ImageURL:           r.ImageURL,
		CookingTimeMinutes: r.CookingTimeMinutes,
		Difficulty:         r.Difficulty,
		Servings:           r.Servings,
		Cost:               r.Cost,
		Ingredients:        r.Ingredients,
		Steps:              r.Steps,
		CookbookIDs:        r.CookbookIDs,
		Tags:               r.Tags,
		IsDeleted:          r.IsDeleted,
	}
}

func (k RecipeKind) Normalize(raw json.RawMessage) (Recipe, error) {
	var w recipeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Recipe{}, fmt.Errorf("%w: recipes: %v", ErrInvalidDocument, err)
	}

	cost, err := normalizeCost(w.Cost)
	if err != nil {
		return Recipe{}, fmt.Errorf("%w: recipes: %v", ErrInvalidDocument, err)
	}

	r := Recipe{
		ID:                 w.ID,
		Title:              w.Title,
		ImageURL:           pickImageURL(w.ImageURL, w.Image),
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
		CookingTimeMinutes: w.CookingTimeMinutes,
		Difficulty:         strings.ToLower(strings.TrimSpace(w.Difficulty)),
		Servings:           w.Servings,
		Cost:               cost,
		Ingredients:        orEmpty(w.Ingredients),
		Steps:              orEmpty(w.Steps),
		CookbookIDs:        orEmpty(w.CookbookIDs),
		Tags:               orEmpty(w.Tags),
		IsDeleted:          w.IsDeleted,
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = r.CreatedAt
	}

	if err := validateDoc(k.Name(), r); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

func (RecipeKind) EncodeLegacy(docs []Recipe) (string, error) { return encodeArrayLegacy(docs) }

func (k RecipeKind) DecodeLegacy(data string) ([]Result[Recipe], error) {
	return decodeArrayLegacy[Recipe](k, data)
}

// normalizeCost accepts a cost label ("$$") or a number
func normalizeCost(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("invalid cost %s", string(raw))
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
