package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

type testData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestStorage_PutAndGet(t *testing.T) {
	s := New("")
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}

	if err := s.Put(ctx, []string{"items", "item1"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "item1"}, &retrieved); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved != data {
		t.Errorf("Data mismatch: got %+v, want %+v", retrieved, data)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New("")
	ctx := context.Background()

	var data testData
	if err := s.Get(ctx, []string{"nonexistent", "item"}, &data); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_Delete(t *testing.T) {
	s := New("")
	ctx := context.Background()

	data := testData{ID: "123", Name: "test", Value: 42}
	if err := s.Put(ctx, []string{"items", "toDelete"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.Delete(ctx, []string{"items", "toDelete"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "toDelete"}, &retrieved); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStorage_DeleteNonexistent(t *testing.T) {
	s := New("")
	ctx := context.Background()

	if err := s.Delete(ctx, []string{"nonexistent", "item"}); err != nil {
		t.Errorf("Delete of nonexistent item should not error: %v", err)
	}
}

func TestStorage_List(t *testing.T) {
	s := New("")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data := testData{ID: string(rune('a' + i)), Name: "test", Value: i}
		if err := s.Put(ctx, []string{"items", data.ID}, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	items, err := s.List(ctx, []string{"items"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d: %v", len(items), items)
	}
}

func TestStorage_ListEmpty(t *testing.T) {
	s := New("")
	ctx := context.Background()

	items, err := s.List(ctx, []string{"nonexistent"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty list, got: %v", items)
	}
}

func TestStorage_Scan(t *testing.T) {
	s := New("")
	ctx := context.Background()

	expected := map[string]testData{
		"a": {ID: "a", Name: "first", Value: 1},
		"b": {ID: "b", Name: "second", Value: 2},
		"c": {ID: "c", Name: "third", Value: 3},
	}

	for id, data := range expected {
		if err := s.Put(ctx, []string{"items", id}, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	scanned := make(map[string]testData)
	err := s.Scan(ctx, []string{"items"}, func(key string, data json.RawMessage) error {
		var item testData
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		scanned[key] = item
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(scanned) != len(expected) {
		t.Errorf("Expected %d items, got %d", len(expected), len(scanned))
	}
	for id, exp := range expected {
		got, ok := scanned[id]
		if !ok {
			t.Errorf("Missing key %s", id)
			continue
		}
		if got != exp {
			t.Errorf("Mismatch for %s: got %+v, want %+v", id, got, exp)
		}
	}
}

// Scan must not descend into further nested segments: a key two levels
// below the scanned path belongs to a different directory, not a leaf here.
func TestStorage_ScanDoesNotRecurse(t *testing.T) {
	s := New("")
	ctx := context.Background()

	if err := s.Put(ctx, []string{"session", "proj1", "sess1"}, testData{ID: "sess1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var seen []string
	err := s.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		seen = append(seen, key)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("expected no direct leaves under session/, got %v", seen)
	}

	seen = nil
	err = s.Scan(ctx, []string{"session", "proj1"}, func(key string, data json.RawMessage) error {
		seen = append(seen, key)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != "sess1" {
		t.Errorf("expected [sess1], got %v", seen)
	}
}

func TestStorage_Exists(t *testing.T) {
	s := New("")
	ctx := context.Background()

	if s.Exists(ctx, []string{"items", "test"}) {
		t.Error("Item should not exist")
	}

	data := testData{ID: "test", Name: "test", Value: 1}
	if err := s.Put(ctx, []string{"items", "test"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !s.Exists(ctx, []string{"items", "test"}) {
		t.Error("Item should exist")
	}
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	s := New("")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			data := testData{ID: "concurrent", Name: "test", Value: val}
			if err := s.Put(ctx, []string{"items", "concurrent"}, data); err != nil {
				t.Errorf("Concurrent Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "concurrent"}, &retrieved); err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
}

// Put stores a defensive copy: mutating the source value after Put must
// not change what a later Get returns.
func TestStorage_PutCopiesValue(t *testing.T) {
	s := New("")
	ctx := context.Background()

	data := testData{ID: "x", Name: "before", Value: 1}
	if err := s.Put(ctx, []string{"items", "x"}, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data.Name = "after"

	var retrieved testData
	if err := s.Get(ctx, []string{"items", "x"}, &retrieved); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.Name != "before" {
		t.Errorf("expected stored copy unaffected by later mutation, got %+v", retrieved)
	}
}
