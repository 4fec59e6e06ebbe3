package data_structures

import (
	"fmt"
	"sync"
	"testing"
)

// Basic functionality tests
func TestSafeMapBasicOperations(t *testing.T) {
	sm := NewSafeMap[string, int]()

	// Test Set and Get
	sm.Set("key1", 42)
	value, ok := sm.Get("key1")
	if !ok {
		t.Error("Expected to find key1")
	}
	if value != 42 {
		t.Errorf("Expected value 42, got %d", value)
	}

	// Test non-existent key
	_, ok = sm.Get("nonexistent")
	if ok {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestSafeMapGetOrDefault(t *testing.T) {
	sm := NewSafeMap[string, int]()

	// Test GetOrDefault with non-existent key
	value := sm.GetOrDefault("missing", 100)
	if value != 100 {
		t.Errorf("Expected default value 100, got %d", value)
	}

	// Check if the key was actually set
	storedValue, ok := sm.Get("missing")
	if !ok {
		t.Error("Expected key to be set by GetOrDefault")
	}
	if storedValue != 100 {
		t.Errorf("Expected stored value 100, got %d", storedValue)
	}

	// Test GetOrDefault with existing key
	sm.Set("existing", 50)
	value = sm.GetOrDefault("existing", 200)
	if value != 50 {
		t.Errorf("Expected existing value 50, got %d", value)
	}
}

func TestSafeMapPopAndDelete(t *testing.T) {
	sm := NewSafeMap[string, int]()

	sm.Set("delete_me", 123)

	// Pop returns the value and removes it
	value, ok := sm.Pop("delete_me")
	if !ok {
		t.Error("Expected Pop to find delete_me")
	}
	if value != 123 {
		t.Errorf("Expected popped value 123, got %d", value)
	}
	_, ok = sm.Get("delete_me")
	if ok {
		t.Error("Expected key to be removed by Pop")
	}

	// Delete non-existent key (should not panic)
	sm.Delete("never_existed")

	// Pop non-existent key
	_, ok = sm.Pop("never_existed")
	if ok {
		t.Error("Expected Pop to miss on non-existent key")
	}
}

func TestSafeMapKeysValuesLen(t *testing.T) {
	sm := NewSafeMap[int, string]()

	if !sm.IsEmpty() {
		t.Error("Expected new map to be empty")
	}

	for i := 0; i < 5; i++ {
		sm.Set(i, fmt.Sprintf("value%d", i))
	}

	if sm.Len() != 5 {
		t.Errorf("Expected length 5, got %d", sm.Len())
	}
	if len(sm.GetKeys()) != 5 {
		t.Errorf("Expected 5 keys, got %d", len(sm.GetKeys()))
	}
	if len(sm.GetValues()) != 5 {
		t.Errorf("Expected 5 values, got %d", len(sm.GetValues()))
	}
}

// Concurrency test: many goroutines writing disjoint keys while readers
// iterate. The race detector is the real assertion here.
func TestSafeMapConcurrentAccess(t *testing.T) {
	sm := NewSafeMap[int, int]()

	var wg sync.WaitGroup
	numWriters := 10
	numOpsPerWriter := 100

	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < numOpsPerWriter; i++ {
				key := writer*numOpsPerWriter + i
				sm.Set(key, key*2)
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			sm.GetKeys()
			sm.Len()
		}
	}()

	wg.Wait()

	if sm.Len() != numWriters*numOpsPerWriter {
		t.Errorf("Expected %d entries, got %d", numWriters*numOpsPerWriter, sm.Len())
	}
	for i := 0; i < numWriters*numOpsPerWriter; i++ {
		v, ok := sm.Get(i)
		if !ok || v != i*2 {
			t.Errorf("Expected key %d -> %d, got %d (found=%v)", i, i*2, v, ok)
		}
	}
}
