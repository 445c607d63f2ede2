package entity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intPtr(v int) *int { return &v }

func TestCookbookNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Cookbook
		wantErr bool
	}{
		{
			name: "imageUrl preferred over image",
			raw:  `{"id":"cb-1","name":"Desserts","imageUrl":"https://a/1.png","image":"https://a/old.png","createdAt":100,"updatedAt":150}`,
			want: Cookbook{ID: "cb-1", Name: "Desserts", ImageURL: "https://a/1.png", CreatedAt: 100, UpdatedAt: 150},
		},
		{
			name: "image used when imageUrl missing",
			raw:  `{"id":"cb-1","name":"Desserts","image":"https://a/old.png","createdAt":100,"updatedAt":150}`,
			want: Cookbook{ID: "cb-1", Name: "Desserts", ImageURL: "https://a/old.png", CreatedAt: 100, UpdatedAt: 150},
		},
		{
			name: "empty imageUrl falls back to image",
			raw:  `{"id":"cb-1","name":"Desserts","imageUrl":"","image":"https://a/old.png"}`,
			want: Cookbook{ID: "cb-1", Name: "Desserts", ImageURL: "https://a/old.png"},
		},
		{
			name: "timestamp objects and missing updatedAt",
			raw:  `{"id":"cb-2","name":"Soups","createdAt":{"seconds":10,"nanoseconds":0},"isDeleted":true}`,
			want: Cookbook{ID: "cb-2", Name: "Soups", CreatedAt: 10000, UpdatedAt: 10000, IsDeleted: true},
		},
		{
			name:    "missing id",
			raw:     `{"name":"Soups"}`,
			wantErr: true,
		},
		{
			name:    "missing name",
			raw:     `{"id":"cb-3"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `"cb-3"`,
			wantErr: true,
		},
		{
			name:    "negative timestamp",
			raw:     `{"id":"cb-3","name":"x","updatedAt":-5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CookbookKind{}.Normalize(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDocument) {
					t.Errorf("error %v should wrap ErrInvalidDocument", err)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecipeNormalize(t *testing.T) {
	raw := `{
		"id": "r-1",
		"title": "Pancakes",
		"image": "https://a/p.png",
		"createdAt": "2024-06-10T06:13:20Z",
		"updatedAt": {"_seconds": 1718000001, "_nanoseconds": 0},
		"cookingTimeMinutes": 20,
		"difficulty": " Easy ",
		"servings": 4,
		"cost": 3.5,
		"ingredients": ["flour", {"name": "milk", "quantity": "250", "unit": "ml"}],
		"steps": ["mix", "fry"],
		"cookbookIds": ["cb-1"]
	}`

	got, err := RecipeKind{}.Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := Recipe{
		ID:                 "r-1",
		Title:              "Pancakes",
		ImageURL:           "https://a/p.png",
		CreatedAt:          1718000000000,
		UpdatedAt:          1718000001000,
		CookingTimeMinutes: intPtr(20),
		Difficulty:         "easy",
		Servings:           intPtr(4),
		Cost:               "3.5",
		Ingredients:        []Ingredient{{Name: "flour"}, {Name: "milk", Quantity: "250", Unit: "ml"}},
		Steps:              []string{"mix", "fry"},
		CookbookIDs:        []string{"cb-1"},
		Tags:               []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecipeNormalizeRejects(t *testing.T) {
	tests := map[string]string{
		"missing title":       `{"id":"r-1"}`,
		"negative servings":   `{"id":"r-1","title":"x","servings":-1}`,
		"empty cookbook id":   `{"id":"r-1","title":"x","cookbookIds":[""]}`,
		"ingredient no name":  `{"id":"r-1","title":"x","ingredients":[{"quantity":"1"}]}`,
		"cost not a number":   `{"id":"r-1","title":"x","cost":{"v":1}}`,
		"bad timestamp value": `{"id":"r-1","title":"x","updatedAt":"soon"}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := (RecipeKind{}).Normalize(json.RawMessage(raw)); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("Normalize() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}

func TestPreferencesNormalize(t *testing.T) {
	got, err := PreferencesKind{}.Normalize(json.RawMessage(`{"themeMode":"dark","userLanguage":"fr","updatedAt":7}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.ThemeMode != "dark" || got.UserLanguage != "fr" || got.UpdatedAt != 7 {
		t.Errorf("Normalize() = %+v", got)
	}
	if got.UserDietary == nil || got.UserAvoid == nil {
		t.Error("list fields should default to empty slices")
	}

	if _, err := (PreferencesKind{}).Normalize(json.RawMessage(`{"themeMode":"neon"}`)); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("invalid theme error = %v, want ErrInvalidDocument", err)
	}
}

func TestSameContent(t *testing.T) {
	base := Recipe{ID: "r-1", Title: "Soup", CreatedAt: 1, UpdatedAt: 2}

	t.Run("timestamps are not content", func(t *testing.T) {
		other := base
		other.CreatedAt, other.UpdatedAt = 50, 60
		if !SameContent[Recipe](RecipeKind{}, base, other) {
			t.Error("docs differing only in timestamps should be the same content")
		}
	})

	t.Run("nil and empty slices are equal", func(t *testing.T) {
		other := base
		other.Tags = []string{}
		other.Steps = []string{}
		if !SameContent[Recipe](RecipeKind{}, base, other) {
			t.Error("nil and empty slices should compare equal")
		}
	})

	t.Run("changed field differs", func(t *testing.T) {
		other := base
		other.Servings = intPtr(2)
		if SameContent[Recipe](RecipeKind{}, base, other) {
			t.Error("changed servings should differ")
		}
	})

	t.Run("deletion differs", func(t *testing.T) {
		a := Cookbook{ID: "cb-1", Name: "x"}
		b, ok := CookbookKind{}.MarkDeleted(a)
		if !ok {
			t.Fatal("cookbooks should support deletion")
		}
		if SameContent[Cookbook](CookbookKind{}, a, b) {
			t.Error("soft-deleted doc should differ")
		}
	})
}

func TestLegacySnapshots(t *testing.T) {
	t.Run("cookbooks round trip", func(t *testing.T) {
		docs := []Cookbook{{ID: "cb-1", Name: "A", UpdatedAt: 1}, {ID: "cb-2", Name: "B", UpdatedAt: 2}}
		data, err := CookbookKind{}.EncodeLegacy(docs)
		if err != nil {
			t.Fatal(err)
		}
		results, err := CookbookKind{}.DecodeLegacy(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 || results[1].Doc.Name != "B" || results[0].Err != nil {
			t.Errorf("DecodeLegacy() = %+v", results)
		}
	})

	t.Run("empty list encodes as array", func(t *testing.T) {
		data, _ := RecipeKind{}.EncodeLegacy(nil)
		if data != "[]" {
			t.Errorf("EncodeLegacy(nil) = %s, want []", data)
		}
	})

	t.Run("bad item is tagged not fatal", func(t *testing.T) {
		results, err := RecipeKind{}.DecodeLegacy(`[{"id":"r-1","title":"ok"},{"id":"r-2"}]`)
		if err != nil {
			t.Fatal(err)
		}
		if results[0].Err != nil || results[1].Err == nil {
			t.Errorf("DecodeLegacy() = %+v", results)
		}
	})

	t.Run("malformed snapshot", func(t *testing.T) {
		if _, err := (CookbookKind{}).DecodeLegacy(`[{"id":`); err == nil {
			t.Error("malformed JSON should fail")
		}
	})

	t.Run("preferences object form", func(t *testing.T) {
		data, err := PreferencesKind{}.EncodeLegacy([]Preferences{DefaultPreferences()})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(data, "{") {
			t.Errorf("preferences snapshot should be an object: %s", data)
		}
		results, err := PreferencesKind{}.DecodeLegacy(data)
		if err != nil || len(results) != 1 || results[0].Doc.ThemeMode != "system" {
			t.Errorf("DecodeLegacy() = %+v, %v", results, err)
		}
	})

	t.Run("preferences null", func(t *testing.T) {
		data, _ := PreferencesKind{}.EncodeLegacy(nil)
		results, err := PreferencesKind{}.DecodeLegacy(data)
		if err != nil || len(results) != 0 {
			t.Errorf("DecodeLegacy(null) = %+v, %v", results, err)
		}
	})
}
