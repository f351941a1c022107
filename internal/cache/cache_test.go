// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("artist:radiohead", true)
	v, ok := c.Get("artist:radiohead")
	if !ok {
		t.Fatal("expected hit")
	}
	if v != true {
		t.Errorf("got %v", v)
	}

	if _, ok := c.Get("artist:unknown"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("neg", false, 10*time.Millisecond)
	if _, ok := c.Get("neg"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("neg"); ok {
		t.Fatal("entry should have expired")
	}

	stats := c.GetStats()
	if stats.Evictions == 0 {
		t.Error("expired access should count as eviction")
	}
}

func TestCachePerEntryTTL(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	// Negative result with a short lifetime alongside a long-lived positive.
	c.SetWithTTL("short", false, 10*time.Millisecond)
	c.SetWithTTL("long", true, time.Hour)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("short entry should expire independently")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("long entry should survive")
	}
}

func TestCacheEvictionRecheckSparesLiveEntry(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	// The recheck under the write lock must refuse to drop an entry that is
	// no longer expired, as happens when a Set lands between Get's stale read
	// and the eviction.
	c.SetWithTTL("k", "fresh", time.Hour)
	if c.evictIfExpired("k") {
		t.Fatal("unexpired entry evicted")
	}
	if v, ok := c.Get("k"); !ok || v != "fresh" {
		t.Fatalf("Get = %v, %v; want fresh hit", v, ok)
	}

	c.SetWithTTL("k", "stale", -time.Second)
	if !c.evictIfExpired("k") {
		t.Fatal("expired entry not evicted")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("evicted entry still readable")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still present")
	}

	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Error("cleared key still present")
	}
	if keys := c.GetStats().Keys; keys != 0 {
		t.Errorf("Keys = %d after Clear", keys)
	}
}

func TestCacheStats(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.GetStats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 2 hits / 1 miss", stats)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if keys := c.GetStats().Keys; keys != 10 {
		t.Errorf("Keys = %d, want 10", keys)
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	type params struct {
		Artist string
		Album  string
	}

	k1 := GenerateKey("release", params{"Björk", "Homogenic"})
	k2 := GenerateKey("release", params{"Björk", "Homogenic"})
	k3 := GenerateKey("release", params{"Björk", "Post"})

	if k1 != k2 {
		t.Error("equal params should produce equal keys")
	}
	if k1 == k3 {
		t.Error("different params should produce different keys")
	}
	if k1[:8] != "release:" {
		t.Errorf("key missing namespace prefix: %q", k1)
	}
}
