package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cookbooksync/backend/store"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/utils"
)

var (
	// ErrNotFound is returned for an id that has no local record
	ErrNotFound = errors.New("entity not found")
	// ErrNotDeletable is returned when the entity type has no soft delete
	ErrNotDeletable = errors.New("entity type cannot be deleted")
	// ErrNoUser is returned by remote steps invoked without a user id
	ErrNoUser = errors.New("no signed-in user")
)

// Remote is the backend the modules pull from and push to
type Remote interface {
	Pull(ctx context.Context, entity, uid string) ([]json.RawMessage, error)
	Push(ctx context.Context, entity, uid string, items any) error
}

// Keys are the store keys one entity type persists under
type Keys struct {
	// Canonical holds []LocalEntity with sync bookkeeping
	Canonical string
	// Legacy holds the flat snapshot read by consumers unaware of sync
	Legacy string
}

var (
	CookbookKeys    = Keys{Canonical: "cookbooks_sync_v1", Legacy: "cookbooks"}
	RecipeKeys      = Keys{Canonical: "recipes_sync_v1", Legacy: "recipes"}
	PreferencesKeys = Keys{Canonical: "preferences_sync_v1", Legacy: "userPreferences"}
)

// PullResult summarizes one pull step
type PullResult struct {
	Fetched    int
	Rejected   int
	RemoteWins int
	LocalWins  int
}

// PushResult summarizes one push step
type PushResult struct {
	Pushed int
}

// Stats counts the local records of one entity type
type Stats struct {
	Entity      string `json:"entity" yaml:"entity"`
	Total       int    `json:"total" yaml:"total"`
	Dirty       int    `json:"dirty" yaml:"dirty"`
	Deleted     int    `json:"deleted" yaml:"deleted"`
	NeverSynced int    `json:"neverSynced" yaml:"neverSynced"`
}

// EntitySyncer is the type-erased view of a Module the orchestrator drives
type EntitySyncer interface {
	Name() string
	Pull(ctx context.Context, uid string) (PullResult, error)
	Push(ctx context.Context, uid string) (PushResult, error)
	RepublishLegacy(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Module syncs one entity type between the local store and the remote.
// The mutex guards load-modify-save sequences only and is never held
// across a network call.
type Module[T any] struct {
	kind   entity.Kind[T]
	store  store.Store
	remote Remote
	keys   Keys
	now    func() time.Time

	mu sync.Mutex
}

// NewModule creates a module for kind persisted under keys
func NewModule[T any](kind entity.Kind[T], st store.Store, remote Remote, keys Keys) *Module[T] {
	return &Module[T]{
		kind:   kind,
		store:  st,
		remote: remote,
		keys:   keys,
		now:    time.Now,
	}
}

func NewCookbookModule(st store.Store, remote Remote) *Module[entity.Cookbook] {
	return NewModule[entity.Cookbook](entity.CookbookKind{}, st, remote, CookbookKeys)
}

func NewRecipeModule(st store.Store, remote Remote) *Module[entity.Recipe] {
	return NewModule[entity.Recipe](entity.RecipeKind{}, st, remote, RecipeKeys)
}

func NewPreferencesModule(st store.Store, remote Remote) *Module[entity.Preferences] {
	return NewModule[entity.Preferences](entity.PreferencesKind{}, st, remote, PreferencesKeys)
}

// Name is the entity type, e.g. "cookbooks"
func (m *Module[T]) Name() string {
	return m.kind.Name()
}

func (m *Module[T]) Keys() Keys {
	return m.keys
}

func (m *Module[T]) clock() entity.Millis {
	return entity.MillisOf(m.now())
}

// LoadLocal returns the canonical records, absorbing the legacy snapshot first
func (m *Module[T]) LoadLocal(ctx context.Context) ([]entity.LocalEntity[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

// SaveLocal persists items as the canonical store and republishes the legacy snapshot
func (m *Module[T]) SaveLocal(ctx context.Context, items []entity.LocalEntity[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, items)
}

func (m *Module[T]) loadLocked(ctx context.Context) ([]entity.LocalEntity[T], error) {
	canonicalRaw, hasCanonical, err := m.store.Get(ctx, m.keys.Canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.keys.Canonical, err)
	}
	legacyRaw, hasLegacy, err := m.store.Get(ctx, m.keys.Legacy)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.keys.Legacy, err)
	}

	var items []entity.LocalEntity[T]
	if hasCanonical {
		items = m.parseCanonical(canonicalRaw)
	}
	if !hasLegacy {
		return items, nil
	}

	legacy := m.parseLegacy(legacyRaw)
	merged, changed := m.absorbLegacy(items, legacy)
	if changed {
		utils.Debugf("Absorbed legacy %s snapshot into %s", m.keys.Legacy, m.keys.Canonical)
		if err := m.saveLocked(ctx, merged); err != nil {
			utils.Warnf("Failed to persist absorbed %s: %v", m.Name(), err)
		}
	}
	return merged, nil
}

func (m *Module[T]) parseCanonical(raw string) []entity.LocalEntity[T] {
	var items []entity.LocalEntity[T]
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		utils.Warnf("Ignoring unreadable %s: %v", m.keys.Canonical, err)
		return nil
	}

	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if item.ID == "" || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}

func (m *Module[T]) parseLegacy(raw string) []T {
	results, err := m.kind.DecodeLegacy(raw)
	if err != nil {
		utils.Warnf("Ignoring unreadable %s: %v", m.keys.Legacy, err)
		return nil
	}

	docs := make([]T, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			utils.Warnf("Skipping legacy %s item %d: %v", m.Name(), i, r.Err)
			continue
		}
		docs = append(docs, r.Doc)
	}
	return docs
}

// absorbLegacy merges legacy docs into the canonical records. Ids missing
// from the legacy side are kept: a stale snapshot never implies deletion.
func (m *Module[T]) absorbLegacy(items []entity.LocalEntity[T], legacy []T) ([]entity.LocalEntity[T], bool) {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}

	changed := false
	for _, doc := range legacy {
		id := m.kind.ID(doc)
		i, ok := index[id]
		if !ok {
			items = append(items, entity.LocalEntity[T]{ID: id, Data: doc, Sync: entity.SyncMeta{Dirty: true}})
			index[id] = len(items) - 1
			changed = true
			continue
		}
		// Ties keep canonical, which already carries sync bookkeeping
		if m.kind.UpdatedAt(doc) > m.kind.UpdatedAt(items[i].Data) {
			items[i].Data = doc
			items[i].Sync.Dirty = true
			changed = true
		}
	}
	return items, changed
}

func (m *Module[T]) saveLocked(ctx context.Context, items []entity.LocalEntity[T]) error {
	if items == nil {
		items = []entity.LocalEntity[T]{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", m.keys.Canonical, err)
	}
	if err := m.store.Set(ctx, m.keys.Canonical, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.keys.Canonical, err)
	}
	return m.publishLegacy(ctx, items)
}

func (m *Module[T]) publishLegacy(ctx context.Context, items []entity.LocalEntity[T]) error {
	docs := make([]T, 0, len(items))
	for _, item := range items {
		if !m.kind.IsDeleted(item.Data) {
			docs = append(docs, item.Data)
		}
	}
	snapshot, err := m.kind.EncodeLegacy(docs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", m.keys.Legacy, err)
	}
	if err := m.store.Set(ctx, m.keys.Legacy, snapshot); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.keys.Legacy, err)
	}
	return nil
}

// Pull fetches the remote documents of uid and merges them by last write wins.
// Local data is left untouched when the fetch fails.
func (m *Module[T]) Pull(ctx context.Context, uid string) (PullResult, error) {
	var result PullResult
	if uid == "" {
		return result, ErrNoUser
	}

	raws, err := m.remote.Pull(ctx, m.Name(), uid)
	if err != nil {
		return result, fmt.Errorf("pull %s: %w", m.Name(), err)
	}
	result.Fetched = len(raws)

	remoteByID, order := m.indexRemote(raws, &result)

	m.mu.Lock()
	defer m.mu.Unlock()

	local, err := m.loadLocked(ctx)
	if err != nil {
		return result, err
	}

	now := m.clock()
	merged := make([]entity.LocalEntity[T], 0, len(local)+len(order))
	seen := make(map[string]bool, len(local))

	for _, item := range local {
		seen[item.ID] = true
		remote, ok := remoteByID[item.ID]
		if !ok {
			merged = append(merged, item)
			continue
		}
		winner, doc := Resolve(m.kind, &item, &remote)
		if winner == WinnerRemote {
			item.Data = doc
			item.Sync = entity.SyncMeta{Dirty: false, LastSyncedAt: &now}
			result.RemoteWins++
		} else {
			result.LocalWins++
		}
		merged = append(merged, item)
	}

	for _, id := range order {
		if seen[id] {
			continue
		}
		remote := remoteByID[id]
		_, doc := Resolve(m.kind, nil, &remote)
		merged = append(merged, entity.LocalEntity[T]{
			ID:   id,
			Data: doc,
			Sync: entity.SyncMeta{Dirty: false, LastSyncedAt: &now},
		})
		result.RemoteWins++
	}

	if err := m.saveLocked(ctx, merged); err != nil {
		return result, err
	}
	utils.Debugf("Pulled %s: %d fetched, %d rejected, %d remote wins, %d local wins",
		m.Name(), result.Fetched, result.Rejected, result.RemoteWins, result.LocalWins)
	return result, nil
}

// indexRemote normalizes raw documents, dropping invalid ones. A duplicated
// id keeps the copy with the greater updatedAt.
func (m *Module[T]) indexRemote(raws []json.RawMessage, result *PullResult) (map[string]T, []string) {
	byID := make(map[string]T, len(raws))
	order := make([]string, 0, len(raws))

	for i, r := range entity.NormalizeAll(m.kind, raws) {
		if r.Err != nil {
			utils.Warnf("Rejected remote %s document %d: %v", m.Name(), i, r.Err)
			result.Rejected++
			continue
		}
		id := m.kind.ID(r.Doc)
		prev, dup := byID[id]
		if !dup {
			order = append(order, id)
		} else if m.kind.UpdatedAt(r.Doc) <= m.kind.UpdatedAt(prev) {
			continue
		}
		byID[id] = r.Doc
	}
	return byID, order
}

// Push sends every dirty record to the remote and clears the dirty flag of
// exactly those records once the remote acknowledges them.
func (m *Module[T]) Push(ctx context.Context, uid string) (PushResult, error) {
	var result PushResult
	if uid == "" {
		return result, ErrNoUser
	}

	// Reload so mutations made since the pull are included
	m.mu.Lock()
	items, err := m.loadLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return result, err
	}

	payload := make([]T, 0)
	pushed := make(map[string]entity.Millis)
	for _, item := range items {
		if item.Sync.Dirty {
			payload = append(payload, item.Data)
			pushed[item.ID] = m.kind.UpdatedAt(item.Data)
		}
	}
	if len(payload) == 0 {
		return result, nil
	}

	if err := m.remote.Push(ctx, m.Name(), uid, payload); err != nil {
		return result, fmt.Errorf("push %s: %w", m.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	items, err = m.loadLocked(ctx)
	if err != nil {
		return result, err
	}
	now := m.clock()
	for i := range items {
		sent, ok := pushed[items[i].ID]
		if !ok {
			continue
		}
		if m.kind.UpdatedAt(items[i].Data) != sent {
			utils.Debugf("%s %s changed while its push was in flight", m.Name(), items[i].ID)
		}
		items[i].Sync.Dirty = false
		items[i].Sync.LastSyncedAt = &now
	}
	if err := m.saveLocked(ctx, items); err != nil {
		return result, err
	}

	result.Pushed = len(payload)
	utils.Debugf("Pushed %d %s", result.Pushed, m.Name())
	return result, nil
}

// UpsertLocal writes doc as a dirty local record. It reports false without
// writing when an existing record already has the same comparable content.
// The original createdAt is kept; updatedAt is taken from doc or set to now,
// bumped past the stored updatedAt when the clock lags behind it.
func (m *Module[T]) UpsertLocal(ctx context.Context, doc T) (bool, error) {
	updatedAt := m.kind.UpdatedAt(doc)
	doc, err := m.normalizeLocal(doc)
	if err != nil {
		return false, err
	}
	id := m.kind.ID(doc)

	m.mu.Lock()
	defer m.mu.Unlock()

	items, err := m.loadLocked(ctx)
	if err != nil {
		return false, err
	}

	now := m.clock()
	stampNow := updatedAt.IsZero()
	if stampNow {
		updatedAt = now
	}

	i := indexOf(items, id)
	if i >= 0 {
		existing := items[i].Data
		if entity.SameContent(m.kind, existing, doc) {
			return false, nil
		}
		if prev := m.kind.UpdatedAt(existing); stampNow && updatedAt <= prev {
			updatedAt = prev + 1
		}
		createdAt := m.kind.CreatedAt(existing)
		if createdAt.IsZero() {
			createdAt = m.kind.CreatedAt(doc)
		}
		items[i].Data = m.kind.Stamp(doc, createdAt, updatedAt)
		items[i].Sync.Dirty = true
	} else {
		createdAt := m.kind.CreatedAt(doc)
		if createdAt.IsZero() {
			createdAt = now
		}
		items = append(items, entity.LocalEntity[T]{
			ID:   id,
			Data: m.kind.Stamp(doc, createdAt, updatedAt),
			Sync: entity.SyncMeta{Dirty: true},
		})
	}

	if err := m.saveLocked(ctx, items); err != nil {
		return false, err
	}
	return true, nil
}

// normalizeLocal passes a locally built doc through the wire normalizer so
// local writes obey the same schema as remote documents
func (m *Module[T]) normalizeLocal(doc T) (T, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("failed to encode %s: %w", m.Name(), err)
	}
	return m.kind.Normalize(data)
}

// DeleteLocal soft-deletes id: the record stays, flagged deleted and dirty.
// It reports false when the record was already deleted.
func (m *Module[T]) DeleteLocal(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, err := m.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return false, fmt.Errorf("%s %s: %w", m.Name(), id, ErrNotFound)
	}

	current := items[i].Data
	if m.kind.IsDeleted(current) {
		return false, nil
	}
	deleted, ok := m.kind.MarkDeleted(current)
	if !ok {
		return false, fmt.Errorf("%s: %w", m.Name(), ErrNotDeletable)
	}

	// The bump must order after the previous write even with a lagging clock
	updatedAt := m.clock()
	if prev := m.kind.UpdatedAt(current); updatedAt <= prev {
		updatedAt = prev + 1
	}
	items[i].Data = m.kind.Stamp(deleted, m.kind.CreatedAt(current), updatedAt)
	items[i].Sync.Dirty = true

	if err := m.saveLocked(ctx, items); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the local record of id, deleted or not
func (m *Module[T]) Get(ctx context.Context, id string) (entity.LocalEntity[T], bool, error) {
	items, err := m.LoadLocal(ctx)
	if err != nil {
		return entity.LocalEntity[T]{}, false, err
	}
	if i := indexOf(items, id); i >= 0 {
		return items[i], true, nil
	}
	return entity.LocalEntity[T]{}, false, nil
}

// List returns the documents that are not soft-deleted, in store order
func (m *Module[T]) List(ctx context.Context) ([]T, error) {
	items, err := m.LoadLocal(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]T, 0, len(items))
	for _, item := range items {
		if !m.kind.IsDeleted(item.Data) {
			docs = append(docs, item.Data)
		}
	}
	return docs, nil
}

func (m *Module[T]) Stats(ctx context.Context) (Stats, error) {
	items, err := m.LoadLocal(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Entity: m.Name(), Total: len(items)}
	for _, item := range items {
		if item.Sync.Dirty {
			stats.Dirty++
		}
		if m.kind.IsDeleted(item.Data) {
			stats.Deleted++
		}
		if item.Sync.LastSyncedAt == nil {
			stats.NeverSynced++
		}
	}
	return stats, nil
}

// RepublishLegacy rewrites the legacy snapshot from the canonical records
func (m *Module[T]) RepublishLegacy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, err := m.loadLocked(ctx)
	if err != nil {
		return err
	}
	return m.publishLegacy(ctx, items)
}

func indexOf[T any](items []entity.LocalEntity[T], id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
