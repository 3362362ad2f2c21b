package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s missing", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Size != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute).WithClock(clock.now)

	c.Set("k1", "v1")
	clock.advance(30 * time.Second)
	c.Set("k2", "v2")

	if v, ok := c.Get("k1"); !ok || v != "v1" {
		t.Errorf("Get(k1) = %q, %v", v, ok)
	}

	clock.advance(45 * time.Second)
	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("CleanExpired() = %d, want 0 (k1 already dropped by Get)", n)
	}

	clock.advance(time.Minute)
	if n := NewJanitor(c).Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestLRUCache_OverwriteAndDelete(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestJanitor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := NewJanitor(NewLRUCache[int](1, time.Millisecond))
	go j.Run(ctx, time.Millisecond)
	cancel()

	select {
	case <-j.Done():
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
