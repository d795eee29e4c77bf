package eventcache

import (
	"fmt"
	"testing"
	"time"
)

func TestFindBeforeAdd(t *testing.T) {
	c := NewCache()
	if c.Find("nope") {
		t.Error("Find on empty cache = true, want false")
	}
}

func TestAddFind(t *testing.T) {
	c := NewCache()
	c.Add("guid-1")
	if !c.Find("guid-1") {
		t.Error("Find after Add = false, want true")
	}
	if c.Find("guid-2") {
		t.Error("Find of absent key = true, want false")
	}
}

func TestPurge(t *testing.T) {
	c := NewCache()
	c.Add("a")
	c.Add("b")
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d, want 0", c.Len())
	}
}

func TestTrimByAge(t *testing.T) {
	c := NewCache()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Add("old")

	// 59 minutes later the key is still retrievable.
	clock = clock.Add(59 * time.Minute)
	if !c.Find("old") {
		t.Fatal("key missing before retention window elapsed")
	}

	// Past the one-hour window the key is trimmed.
	clock = clock.Add(2 * time.Minute)
	if dropped := c.Trim(time.Hour); dropped != 1 {
		t.Errorf("Trim dropped %d, want 1", dropped)
	}
	if c.Find("old") {
		t.Error("key survived Trim past retention window")
	}
}

func TestTrimKeepsFresh(t *testing.T) {
	c := NewCache()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Add("old")
	clock = clock.Add(2 * time.Hour)
	c.Add("fresh")

	c.Trim(time.Hour)
	if c.Find("old") {
		t.Error("old key not trimmed")
	}
	if !c.Find("fresh") {
		t.Error("fresh key trimmed")
	}
}

func TestTrimCount(t *testing.T) {
	c := NewCache()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		c.Add(fmt.Sprintf("key-%d", i))
		clock = clock.Add(time.Second)
	}

	if dropped := c.TrimCount(4); dropped != 6 {
		t.Errorf("TrimCount dropped %d, want 6", dropped)
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	// The newest entries survive.
	for i := 6; i < 10; i++ {
		if !c.Find(fmt.Sprintf("key-%d", i)) {
			t.Errorf("key-%d missing after TrimCount", i)
		}
	}
	for i := 0; i < 6; i++ {
		if c.Find(fmt.Sprintf("key-%d", i)) {
			t.Errorf("key-%d survived TrimCount", i)
		}
	}
}

func TestTrimCountBelowCap(t *testing.T) {
	c := NewCache()
	c.Add("a")
	if dropped := c.TrimCount(10); dropped != 0 {
		t.Errorf("TrimCount dropped %d, want 0", dropped)
	}
}
