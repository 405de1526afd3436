package main

import (
	"testing"
	"time"
)

func TestSessionCacheGetSet(t *testing.T) {
	cache := NewSessionCache(time.Minute)

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	result := &PipelineResult{SessionID: "s1"}
	cache.Set(result)

	got, ok := cache.Get("s1")
	if !ok || got != result {
		t.Errorf("Get(s1) = %v, %v", got, ok)
	}
	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", cache.Size())
	}
}

func TestSessionCacheExpiry(t *testing.T) {
	now := testTime()
	cache := NewSessionCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Set(&PipelineResult{SessionID: "old"})
	now = now.Add(2 * time.Minute)
	cache.Set(&PipelineResult{SessionID: "fresh"})

	if _, ok := cache.Get("old"); ok {
		t.Error("expired entry should miss")
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Error("fresh entry should hit")
	}

	if removed := cache.Prune(); removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if cache.Size() != 1 {
		t.Errorf("Size() after prune = %d, want 1", cache.Size())
	}
}

func TestSessionCacheClear(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	cache.Set(&PipelineResult{SessionID: "a"})
	cache.Set(&PipelineResult{SessionID: "b"})

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", cache.Size())
	}
}
