// Package entity defines the synced document types, their local bookkeeping
// wrapper and the per-type descriptors the sync engine is generic over.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ErrInvalidDocument marks a document that failed schema validation
var ErrInvalidDocument = errors.New("invalid document")

var validate = validator.New()

// SyncMeta is the sync bookkeeping carried next to every local document
type SyncMeta struct {
	Dirty        bool    `json:"dirty" yaml:"dirty"`
	LastSyncedAt *Millis `json:"lastSyncedAt" yaml:"lastSyncedAt"`
}

// LocalEntity is one record of a canonical store
type LocalEntity[T any] struct {
	ID   string   `json:"id" yaml:"id"`
	Data T        `json:"data" yaml:"data"`
	Sync SyncMeta `json:"sync" yaml:"sync"`
}

// Result is the outcome of normalizing one raw document: either Doc is
// valid or Err says why it was rejected.
type Result[T any] struct {
	Doc T
	Err error
}

// Kind describes one synced entity type to the generic sync module
type Kind[T any] interface {
	// Name is the entity type as used in endpoint paths and store keys
	Name() string
	ID(doc T) string
	CreatedAt(doc T) Millis
	UpdatedAt(doc T) Millis
	// Stamp returns doc with the given timestamps applied
	Stamp(doc T, createdAt, updatedAt Millis) T
	IsDeleted(doc T) bool
	// MarkDeleted returns the soft-deleted doc, or false if the type cannot be deleted
	MarkDeleted(doc T) (T, bool)
	// Comparable returns the subset of fields whose change makes a doc dirty
	Comparable(doc T) any
	// Normalize decodes and validates one wire document
	Normalize(raw json.RawMessage) (T, error)
	// EncodeLegacy renders the legacy snapshot for the given non-deleted docs
	EncodeLegacy(docs []T) (string, error)
	// DecodeLegacy parses a legacy snapshot into per-document results
	DecodeLegacy(data string) ([]Result[T], error)
}

// SameContent reports whether a and b agree on every comparable field.
// Nil and empty slices are treated as equal.
func SameContent[T any](k Kind[T], a, b T) bool {
	return cmp.Equal(k.Comparable(a), k.Comparable(b), cmpopts.EquateEmpty())
}

// NormalizeAll normalizes a batch of raw documents, one Result per input
func NormalizeAll[T any](k Kind[T], raws []json.RawMessage) []Result[T] {
	results := make([]Result[T], 0, len(raws))
	for _, raw := range raws {
		doc, err := k.Normalize(raw)
		results = append(results, Result[T]{Doc: doc, Err: err})
	}
	return results
}

// validateDoc runs struct-tag validation and tags failures with ErrInvalidDocument
func validateDoc(kind string, doc any) error {
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, kind, err)
	}
	return nil
}

// decodeArrayLegacy parses a flat JSON array snapshot
func decodeArrayLegacy[T any](k Kind[T], data string) ([]Result[T], error) {
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raws); err != nil {
		return nil, fmt.Errorf("failed to parse %s legacy snapshot: %w", k.Name(), err)
	}
	return NormalizeAll(k, raws), nil
}

// encodeArrayLegacy renders docs as a flat JSON array, never null
func encodeArrayLegacy[T any](docs []T) (string, error) {
	if docs == nil {
		docs = []T{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// pickImageURL prefers an explicit imageUrl and falls back to image
func pickImageURL(imageURL, image *string) string {
	if imageURL != nil && *imageURL != "" {
		return *imageURL
	}
	if image != nil {
		return *image
	}
	return ""
}

// orEmpty replaces a nil slice so documents serialize as []
func orEmpty[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
