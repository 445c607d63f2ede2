package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cookbooksync/backend/store"
)

var fixedNow = time.UnixMilli(1_000_000)

// fakeRemote serves canned documents and records pushes
type fakeRemote struct {
	mu      sync.Mutex
	docs    map[string][]json.RawMessage
	pullErr error
	pushErr error
	pulls   map[string]int
	pushes  map[string][][]byte
	onPush  func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:   make(map[string][]json.RawMessage),
		pulls:  make(map[string]int),
		pushes: make(map[string][][]byte),
	}
}

func (f *fakeRemote) serve(entity string, docs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range docs {
		f.docs[entity] = append(f.docs[entity], json.RawMessage(d))
	}
}

func (f *fakeRemote) Pull(ctx context.Context, entity, uid string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls[entity]++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return append([]json.RawMessage(nil), f.docs[entity]...), nil
}

func (f *fakeRemote) Push(ctx context.Context, entity, uid string, items any) error {
	f.mu.Lock()
	hook := f.onPush
	err := f.pushErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}

	data, _ := json.Marshal(items)
	f.mu.Lock()
	f.pushes[entity] = append(f.pushes[entity], data)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) pushCount(entity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes[entity])
}

func (f *fakeRemote) lastPush(entity string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pushes[entity]
	if len(p) == 0 {
		return ""
	}
	return string(p[len(p)-1])
}

// seed writes v as JSON under key
func seed(t *testing.T, st store.Store, key string, v any) {
	t.Helper()
	var raw string
	if s, ok := v.(string); ok {
		raw = s
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		raw = string(data)
	}
	if err := st.Set(context.Background(), key, raw); err != nil {
		t.Fatal(err)
	}
}
