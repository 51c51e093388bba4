package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"sync/atomic"
	"testing"
	"time"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, factory())
	})

	b.Run("SetEIfUnset", func(b *testing.B) {
		benchmarkSetEIfUnset(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

func benchmarkSet(b *testing.B, database db.KVDB) {
	defer database.Close()
	value := []byte("benchmark-value")

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Set(fmt.Sprintf("key-%d", i%10000), value, base+i)
		}
	})
}

func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	defer database.Close()
	value := []byte("benchmark-value")

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.SetE(fmt.Sprintf("key-%d", i%10000), value, base+i, int64(time.Second))
		}
	})
}

func benchmarkSetEIfUnset(b *testing.B, database db.KVDB) {
	defer database.Close()
	value := []byte("owner")

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("lock-%d", i%100)
			if database.SetEIfUnset(key, value, base+i, int64(time.Second)) {
				database.DeleteIfValue(key, value, base+i)
			}
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	defer database.Close()
	for i := 0; i < 10000; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("value"), base)
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			database.Get(fmt.Sprintf("key-%d", i%10000), base)
		}
	})
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	defer database.Close()
	for i := 0; i < 100000; i++ {
		database.Set(fmt.Sprintf("key-%d", i), []byte("value"), base)
	}

	var buf bytes.Buffer
	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf.Reset()
			if err := database.Save(&buf); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		data := buf.Bytes()
		target := factory()
		defer target.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(data)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	defer database.Close()
	value := []byte("value")

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("key-%d", i%1000)
			switch i % 10 {
			case 0:
				database.Delete(key, base+i)
			case 1, 2:
				database.SetE(key, value, base+i, int64(time.Millisecond))
			case 3, 4:
				database.Set(key, value, base+i)
			default:
				database.Get(key, base+i)
			}
		}
	})
}
