package cache_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gopherforge/compucache"
)

// BenchmarkMemory_Write and its siblings compare this package's Store
// implementations against patrickmn/go-cache, a popular stdlib-only
// alternative, under the same write-heavy access pattern.
func BenchmarkMemory_Write(b *testing.B) {
	s := cache.NewMemory()
	benchmarkStoreWrite(b, s)
}

func BenchmarkRWMutexMap_Write(b *testing.B) {
	s := cache.NewRWMutexMap()
	benchmarkStoreWrite(b, s)
}

func BenchmarkShardedMap_Write(b *testing.B) {
	s := cache.NewShardedMap()
	benchmarkStoreWrite(b, s)
}

func BenchmarkXSyncMap_Write(b *testing.B) {
	s := cache.NewXSyncMap()
	benchmarkStoreWrite(b, s)
}

func BenchmarkGoCache_Write(b *testing.B) {
	c := gocache.New(5*time.Minute, time.Hour)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			c.Set(strconv.Itoa(i%1000), i, gocache.DefaultExpiration)
		}
	})
}

func benchmarkStoreWrite(b *testing.B, s cache.Store) {
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			_ = s.Write(ctx, strconv.Itoa(i%1000), i, cache.Eternal)
		}
	})
}
