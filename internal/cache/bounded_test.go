package cache

import "testing"

func TestBoundedPutGet(t *testing.T) {
	c := NewBounded[string, int](4)
	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("unexpected value for a: %d, ok=%v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}

	c.Put("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("update not applied: %d", v)
	}
	if c.Len() != 2 {
		t.Fatalf("unexpected length: %d", c.Len())
	}
}

func TestBoundedEvictsOldestHalf(t *testing.T) {
	c := NewBounded[int, int](4)
	for i := 0; i < 4; i++ {
		c.Put(i, i)
	}
	c.Put(4, 4)

	if c.Len() != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", c.Len())
	}
	for _, old := range []int{0, 1} {
		if _, ok := c.Get(old); ok {
			t.Fatalf("expected key %d to be evicted", old)
		}
	}
	for _, fresh := range []int{2, 3, 4} {
		if _, ok := c.Get(fresh); !ok {
			t.Fatalf("expected key %d to survive", fresh)
		}
	}
}

func TestBoundedDelete(t *testing.T) {
	c := NewBounded[string, int](8)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	c.Delete("b")
	if _, ok := c.Get("b"); ok {
		t.Fatal("deleted key still present")
	}

	c.DeleteFunc(func(k string) bool { return k == "a" })
	if _, ok := c.Get("a"); ok {
		t.Fatal("DeleteFunc did not remove matching key")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("DeleteFunc removed non-matching key")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge left %d entries", c.Len())
	}
}
