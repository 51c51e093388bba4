package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// base is an arbitrary start time for the tests, the databases only care about ordering
var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()

// at returns base shifted by d
func at(d time.Duration) int64 {
	return base + int64(d)
}

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory())
		})

		t.Run("DeleteIfValue", func(t *testing.T) {
			testDeleteIfValue(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("MonotonicClock", func(t *testing.T) {
			testMonotonicClock(t, factory())
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentSetEIfUnset", func(t *testing.T) {
			testConcurrentSetEIfUnset(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, at(0))

	result, exists := database.Get(testKey, at(0))
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, at(time.Millisecond))

	result, exists = database.Get(testKey, at(time.Millisecond))
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get("nonexistent-key", at(time.Millisecond)); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// modifying a returned value must not change the stored one
	retrievedValue, _ := database.Get(testKey, at(time.Millisecond))
	retrievedValue[0] = 'X'
	result, _ = database.Get(testKey, at(time.Millisecond))
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Stored value was modified through returned slice: %s", result)
	}

	// modifying the input value after Set must not change the stored one
	input := []byte("input")
	database.Set("input-key", input, at(time.Millisecond))
	input[0] = 'X'
	result, _ = database.Get("input-key", at(time.Millisecond))
	if !bytes.Equal(result, []byte("input")) {
		t.Errorf("Stored value was modified through input slice: %s", result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("key", []byte("value"), at(0))
	database.Delete("key", at(0))

	if _, exists := database.Get("key", at(0)); exists {
		t.Errorf("Expected key to be deleted")
	}

	// deleting a missing key is a no-op
	database.Delete("missing", at(0))

	database.Set("key", []byte("again"), at(0))
	if v, exists := database.Get("key", at(0)); !exists || string(v) != "again" {
		t.Errorf("Expected key to be settable after delete, got %s (exists=%v)", v, exists)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	if database.Has("key", at(0)) {
		t.Errorf("Expected Has to return false for missing key")
	}

	database.Set("key", []byte("value"), at(0))
	if !database.Has("key", at(0)) {
		t.Errorf("Expected Has to return true after Set")
	}

	database.SetE("expiring", []byte("value"), at(0), int64(time.Second))
	if !database.Has("expiring", at(500*time.Millisecond)) {
		t.Errorf("Expected Has to return true before deletion time")
	}
	if database.Has("expiring", at(time.Second)) {
		t.Errorf("Expected Has to return false at deletion time")
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	if !database.SetEIfUnset("key", []byte("first"), at(0), 0) {
		t.Fatalf("Expected first SetEIfUnset to store the value")
	}
	if database.SetEIfUnset("key", []byte("second"), at(0), 0) {
		t.Errorf("Expected second SetEIfUnset to be rejected")
	}
	if v, _ := database.Get("key", at(0)); string(v) != "first" {
		t.Errorf("Expected value first, got %s", v)
	}

	// a logically deleted entry counts as unset
	if !database.SetEIfUnset("lease", []byte("a"), at(0), int64(time.Second)) {
		t.Fatalf("Expected lease to be stored")
	}
	if database.SetEIfUnset("lease", []byte("b"), at(999*time.Millisecond), int64(time.Second)) {
		t.Errorf("Expected live lease to block SetEIfUnset")
	}
	if !database.SetEIfUnset("lease", []byte("b"), at(time.Second), int64(time.Second)) {
		t.Errorf("Expected expired lease to be replaced")
	}
	if v, _ := database.Get("lease", at(time.Second)); string(v) != "b" {
		t.Errorf("Expected value b, got %s", v)
	}
}

func testDeleteIfValue(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("key", []byte("owner-a"), at(0))

	if database.DeleteIfValue("key", []byte("owner-b"), at(0)) {
		t.Errorf("Expected DeleteIfValue with wrong value to fail")
	}
	if !database.Has("key", at(0)) {
		t.Errorf("Expected key to survive DeleteIfValue with wrong value")
	}
	if !database.DeleteIfValue("key", []byte("owner-a"), at(0)) {
		t.Errorf("Expected DeleteIfValue with matching value to succeed")
	}
	if database.Has("key", at(0)) {
		t.Errorf("Expected key to be gone")
	}
	if database.DeleteIfValue("key", []byte("owner-a"), at(0)) {
		t.Errorf("Expected DeleteIfValue on missing key to return false")
	}

	// an expired entry is never reported as deleted
	database.SetE("lease", []byte("owner-a"), at(0), int64(time.Second))
	if database.DeleteIfValue("lease", []byte("owner-a"), at(2*time.Second)) {
		t.Errorf("Expected DeleteIfValue on expired key to return false")
	}
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetE("key", []byte("value"), at(0), int64(100*time.Millisecond))

	if _, exists := database.Get("key", at(99*time.Millisecond)); !exists {
		t.Errorf("Expected key to exist before deletion time")
	}
	if _, exists := database.Get("key", at(100*time.Millisecond)); exists {
		t.Errorf("Expected key to be gone at deletion time")
	}

	// overwriting with Set removes the deletion time
	database.SetE("renew", []byte("v1"), at(time.Second), int64(time.Second))
	database.Set("renew", []byte("v2"), at(time.Second))
	if v, exists := database.Get("renew", at(5*time.Second)); !exists || string(v) != "v2" {
		t.Errorf("Expected Set to clear the deletion time, got %s (exists=%v)", v, exists)
	}
}

func testMonotonicClock(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetE("key", []byte("value"), at(0), int64(time.Second))
	database.Get("key", at(2*time.Second))

	if database.Clock() != at(2*time.Second) {
		t.Errorf("Expected clock %d, got %d", at(2*time.Second), database.Clock())
	}

	// a caller with a lagging clock is evaluated at the database clock
	if _, exists := database.Get("key", at(0)); exists {
		t.Errorf("Expected lagging read to see the key as deleted")
	}
	if database.Clock() != at(2*time.Second) {
		t.Errorf("Expected clock to stay at %d, got %d", at(2*time.Second), database.Clock())
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		database.SetE(fmt.Sprintf("key-%d", i), []byte("value"), at(0), int64(time.Duration(i+1)*time.Millisecond))
	}

	// at 500ms exactly the keys with a lifetime <= 500ms are gone
	alive := 0
	for i := 0; i < n; i++ {
		if database.Has(fmt.Sprintf("key-%d", i), at(500*time.Millisecond)) {
			alive++
		}
	}
	if alive != n-500 {
		t.Errorf("Expected %d keys alive, got %d", n-500, alive)
	}

	// the gc runs in the background, give it a moment before checking the info
	database.Get("key-0", at(2*time.Second))
	deadline := time.Now().Add(2 * time.Second)
	for database.GetInfo().Entries != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if info := database.GetInfo(); info.Entries != 0 {
		t.Errorf("Expected no entries after all keys expired, got %d", info.Entries)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	src := factory()
	defer src.Close()

	src.Set("plain", []byte("plain-value"), at(0))
	src.SetE("expiring", []byte("expiring-value"), at(0), int64(time.Minute))
	src.SetE("expired", []byte("expired-value"), at(0), int64(time.Millisecond))
	src.Get("plain", at(time.Second))

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dst := factory()
	defer dst.Close()
	dst.Set("stale", []byte("removed by load"), at(0))

	if err := dst.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if dst.Clock() < at(time.Second) {
		t.Errorf("Expected clock to be restored, got %d", dst.Clock())
	}
	if v, exists := dst.Get("plain", at(time.Second)); !exists || string(v) != "plain-value" {
		t.Errorf("Expected plain to be restored, got %s (exists=%v)", v, exists)
	}
	if v, exists := dst.Get("expiring", at(time.Second)); !exists || string(v) != "expiring-value" {
		t.Errorf("Expected expiring to be restored, got %s (exists=%v)", v, exists)
	}
	if dst.Has("expiring", at(2*time.Minute)) {
		t.Errorf("Expected expiring to keep its deletion time")
	}
	if dst.Has("expired", at(time.Second)) {
		t.Errorf("Expected expired not to be restored")
	}
	if dst.Has("stale", at(time.Second)) {
		t.Errorf("Expected Load to replace the existing content")
	}

	if err := dst.Load(bytes.NewReader([]byte("NOTMAPLE"))); err == nil {
		t.Errorf("Expected Load to reject invalid data")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	// empty key and empty value are valid
	database.Set("", []byte{}, at(0))
	if v, exists := database.Get("", at(0)); !exists || len(v) != 0 {
		t.Errorf("Expected empty key with empty value, got %v (exists=%v)", v, exists)
	}

	database.Set("nil", nil, at(0))
	if _, exists := database.Get("nil", at(0)); !exists {
		t.Errorf("Expected nil value to be stored")
	}

	large := bytes.Repeat([]byte("x"), 1<<20)
	database.Set("large", large, at(0))
	if v, _ := database.Get("large", at(0)); !bytes.Equal(v, large) {
		t.Errorf("Expected large value to round trip")
	}

	// negative deleteIn means no deletion time
	database.SetE("negative", []byte("value"), at(0), -1)
	if !database.Has("negative", at(time.Hour)) {
		t.Errorf("Expected negative deleteIn to be ignored")
	}
}

func testConcurrentSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	const workers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if database.SetEIfUnset("lock", []byte(fmt.Sprintf("owner-%d", i)), at(0), int64(time.Minute)) {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners.Load())
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	const (
		workers = 8
		ops     = 500
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", w, i%50)
				now := at(time.Duration(i) * time.Millisecond)
				switch i % 5 {
				case 0, 1:
					database.Set(key, []byte(fmt.Sprintf("v%d", i)), now)
				case 2:
					database.SetE(key, []byte("short"), now, int64(time.Millisecond))
				case 3:
					database.Get(key, now)
				case 4:
					database.Delete(key, now)
				}
			}
		}(w)
	}
	wg.Wait()

	database.Set("final", []byte("ok"), at(time.Hour))
	if v, exists := database.Get("final", at(time.Hour)); !exists || string(v) != "ok" {
		t.Errorf("Expected database to be usable after concurrent load")
	}
}
