/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Account struct {
	Name string
}

type testMetrics struct {
	Amount    int
	Hits      int
	Misses    int
	Evictions int
}

func assertMetrics(t *testing.T, want testMetrics, pm *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(testutil.ToFloat64(pm.EntriesAmount.With(nil))))
	assert.Equal(t, want.Hits, int(testutil.ToFloat64(pm.HitsTotal.With(nil))))
	assert.Equal(t, want.Misses, int(testutil.ToFloat64(pm.MissesTotal.With(nil))))
	assert.Equal(t, want.Evictions, int(testutil.ToFloat64(pm.EvictionsTotal.With(nil))))
}

func makeCache(t *testing.T, maxEntries int) (*LRUCache[string, Account], *PrometheusMetrics) {
	t.Helper()
	pm := NewPrometheusMetrics()
	cache, err := New[string, Account](maxEntries, pm)
	require.NoError(t, err)
	return cache, pm
}

func TestLRUCache(t *testing.T) {
	accounts := map[string]Account{
		"acc:1":   {"Bob"},
		"acc:42":  {"John"},
		"acc:777": {"Ivan"},
	}
	// Keys in a fixed order, so that eviction order is deterministic.
	accountKeys := []string{"acc:1", "acc:42", "acc:777"}

	fillCache := func(cache *LRUCache[string, Account]) {
		for _, key := range accountKeys {
			cache.Add(key, accounts[key])
		}
	}

	tests := []struct {
		name        string
		maxEntries  int
		fn          func(t *testing.T, cache *LRUCache[string, Account])
		wantMetrics testMetrics
	}{
		{
			name:       "get misses on absent keys",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				for key := range accounts {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
			wantMetrics: testMetrics{
				Misses: len(accounts),
			},
		},
		{
			name:       "store entries and read them back",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache)

				for key, wantAccount := range accounts {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantAccount, val)
				}
				require.Equal(t, len(accounts), cache.Len())
			},
			wantMetrics: testMetrics{
				Amount: len(accounts),
				Hits:   len(accounts),
			},
		},
		{
			name:       "store beyond capacity evicts the oldest",
			maxEntries: len(accounts) - 1,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache) // "acc:1" key will be evicted.

				_, found := cache.Get("acc:1")
				require.False(t, found)
				for _, key := range accountKeys[1:] {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, accounts[key], val)
				}
			},
			wantMetrics: testMetrics{
				Amount:    len(accounts) - 1,
				Hits:      len(accounts) - 1,
				Misses:    1,
				Evictions: 1,
			},
		},
		{
			name:       "recently used entries survive eviction",
			maxEntries: 2,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				cache.Add("acc:1", accounts["acc:1"])
				cache.Add("acc:42", accounts["acc:42"])

				// Touch "acc:1" so that "acc:42" becomes the oldest.
				_, found := cache.Get("acc:1")
				require.True(t, found)

				cache.Add("acc:777", accounts["acc:777"])

				_, found = cache.Get("acc:42")
				require.False(t, found)
				_, found = cache.Get("acc:1")
				require.True(t, found)
				_, found = cache.Get("acc:777")
				require.True(t, found)
			},
			wantMetrics: testMetrics{
				Amount:    2,
				Hits:      3,
				Misses:    1,
				Evictions: 1,
			},
		},
		{
			name:       "remove present and absent entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache)

				require.False(t, cache.Remove("acc:100500"))
				require.True(t, cache.Remove("acc:42"))
				require.False(t, cache.Remove("acc:42"))
			},
			wantMetrics: testMetrics{
				Amount: len(accounts) - 1,
			},
		},
		{
			name:       "purge",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache)
				cache.Purge()
				require.Equal(t, 0, cache.Len())
			},
			wantMetrics: testMetrics{},
		},
		{
			name:       "shrink capacity above current size",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache)
				require.Equal(t, 0, cache.Resize(50))
				for key := range accounts {
					_, found := cache.Get(key)
					require.True(t, found)
				}
			},
			wantMetrics: testMetrics{
				Amount: len(accounts),
				Hits:   len(accounts),
			},
		},
		{
			name:       "shrink capacity below current size",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				fillCache(cache)

				require.Equal(t, 1, cache.Resize(2))

				// "acc:1" is the oldest and must be gone.
				_, found := cache.Get("acc:1")
				require.False(t, found)
				_, found = cache.Get("acc:42")
				require.True(t, found)
				_, found = cache.Get("acc:777")
				require.True(t, found)
			},
			wantMetrics: testMetrics{
				Amount:    2,
				Hits:      2,
				Misses:    1,
				Evictions: 1,
			},
		},
		{
			name:       "get or add",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, Account]) {
				val, exists := cache.GetOrAdd("acc:1", func() Account { return accounts["acc:1"] })
				require.False(t, exists)
				require.Equal(t, accounts["acc:1"], val)

				val, exists = cache.GetOrAdd("acc:1", func() Account { return Account{"must not be called"} })
				require.True(t, exists)
				require.Equal(t, accounts["acc:1"], val)
			},
			wantMetrics: testMetrics{
				Amount: 1,
				Hits:   1,
				Misses: 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, pm := makeCache(t, tt.maxEntries)
			tt.fn(t, cache)
			assertMetrics(t, tt.wantMetrics, pm)
		})
	}
}

func TestLRUCacheTTL(t *testing.T) {
	cache, err := NewWithOpts[string, Account](100, nil, Options[string, Account]{DefaultTTL: time.Millisecond * 50})
	require.NoError(t, err)

	cache.Add("acc:1", Account{"Bob"})
	cache.AddWithTTL("acc:42", Account{"John"}, 0) // no expiration

	_, found := cache.Get("acc:1")
	require.True(t, found)

	time.Sleep(time.Millisecond * 60)

	_, found = cache.Get("acc:1")
	require.False(t, found, "entry must expire after the default TTL")
	_, found = cache.Get("acc:42")
	require.True(t, found, "entry with zero TTL must not expire")
}

func TestLRUCachePeriodicCleanup(t *testing.T) {
	cache, err := NewWithOpts[string, Account](100, nil, Options[string, Account]{DefaultTTL: time.Millisecond * 20})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		cache.RunPeriodicCleanup(ctx, time.Millisecond*10)
	}()

	cache.Add("acc:1", Account{"Bob"})
	cache.AddWithTTL("acc:42", Account{"John"}, 0)

	require.Eventually(t, func() bool {
		return cache.Len() == 1
	}, time.Second, time.Millisecond*10, "expired entry must be removed by the periodic cleanup")

	cancel()
	<-done
}

func TestLRUCacheOnEvict(t *testing.T) {
	type evictedEntry struct {
		key   string
		value Account
	}

	var mu sync.Mutex
	var evicted []evictedEntry
	collectEvicted := func(key string, value Account) {
		mu.Lock()
		defer mu.Unlock()
		evicted = append(evicted, evictedEntry{key, value})
	}
	takeEvicted := func() []evictedEntry {
		mu.Lock()
		defer mu.Unlock()
		res := evicted
		evicted = nil
		return res
	}

	t.Run("eviction by capacity", func(t *testing.T) {
		cache, err := NewWithOpts[string, Account](2, nil, Options[string, Account]{OnEvict: collectEvicted})
		require.NoError(t, err)

		cache.Add("acc:1", Account{"Bob"})
		cache.Add("acc:42", Account{"John"})
		cache.Add("acc:777", Account{"Ivan"})

		require.Equal(t, []evictedEntry{{"acc:1", Account{"Bob"}}}, takeEvicted())
	})

	t.Run("remove and purge", func(t *testing.T) {
		cache, err := NewWithOpts[string, Account](10, nil, Options[string, Account]{OnEvict: collectEvicted})
		require.NoError(t, err)

		cache.Add("acc:1", Account{"Bob"})
		cache.Add("acc:42", Account{"John"})

		require.True(t, cache.Remove("acc:1"))
		require.Equal(t, []evictedEntry{{"acc:1", Account{"Bob"}}}, takeEvicted())

		cache.Purge()
		require.Equal(t, []evictedEntry{{"acc:42", Account{"John"}}}, takeEvicted())
	})

	t.Run("resize", func(t *testing.T) {
		cache, err := NewWithOpts[string, Account](10, nil, Options[string, Account]{OnEvict: collectEvicted})
		require.NoError(t, err)

		cache.Add("acc:1", Account{"Bob"})
		cache.Add("acc:42", Account{"John"})
		cache.Add("acc:777", Account{"Ivan"})

		require.Equal(t, 2, cache.Resize(1))
		require.Equal(t, []evictedEntry{{"acc:1", Account{"Bob"}}, {"acc:42", Account{"John"}}}, takeEvicted())
	})

	t.Run("expiration on access", func(t *testing.T) {
		cache, err := NewWithOpts[string, Account](10, nil, Options[string, Account]{
			DefaultTTL: time.Millisecond * 10, OnEvict: collectEvicted,
		})
		require.NoError(t, err)

		cache.Add("acc:1", Account{"Bob"})
		time.Sleep(time.Millisecond * 20)

		_, found := cache.Get("acc:1")
		require.False(t, found)
		require.Equal(t, []evictedEntry{{"acc:1", Account{"Bob"}}}, takeEvicted())
	})

	t.Run("expiration on periodic cleanup", func(t *testing.T) {
		cache, err := NewWithOpts[string, Account](10, nil, Options[string, Account]{
			DefaultTTL: time.Millisecond * 10, OnEvict: collectEvicted,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			cache.RunPeriodicCleanup(ctx, time.Millisecond*10)
		}()

		cache.Add("acc:1", Account{"Bob"})

		require.Eventually(t, func() bool {
			return len(takeEvicted()) == 1
		}, time.Second, time.Millisecond*10)

		cancel()
		<-done
	})
}

func TestLRUCacheGetOrAddCall(t *testing.T) {
	t.Run("concurrent callers share one build", func(t *testing.T) {
		cache, err := New[string, Account](10, nil)
		require.NoError(t, err)

		var buildCount int32
		const numGoroutines = 10
		var wg sync.WaitGroup
		results := make([]Account, numGoroutines)
		errs := make([]error, numGoroutines)

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = cache.GetOrAddCall("acc:1", func() (Account, error) {
					atomic.AddInt32(&buildCount, 1)
					time.Sleep(time.Millisecond * 50)
					return Account{"Bob"}, nil
				})
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), buildCount, "expected a single build to be shared")
		for i := 0; i < numGoroutines; i++ {
			require.NoError(t, errs[i])
			require.Equal(t, Account{"Bob"}, results[i])
		}
	})

	t.Run("different keys are built independently", func(t *testing.T) {
		cache, err := New[string, Account](10, nil)
		require.NoError(t, err)

		var buildCount int32
		const numGoroutines = 5
		var wg sync.WaitGroup
		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				key := "acc:" + strconv.Itoa(i)
				_, err := cache.GetOrAddCall(key, func() (Account, error) {
					atomic.AddInt32(&buildCount, 1)
					return Account{Name: key}, nil
				})
				require.NoError(t, err)
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(numGoroutines), buildCount)
		var keys []string
		for i := 0; i < numGoroutines; i++ {
			keys = append(keys, "acc:"+strconv.Itoa(i))
		}
		sort.Strings(keys)
		for _, key := range keys {
			val, found := cache.Get(key)
			require.True(t, found)
			require.Equal(t, Account{Name: key}, val)
		}
	})

	t.Run("build error is not cached", func(t *testing.T) {
		cache, err := New[string, Account](10, nil)
		require.NoError(t, err)

		buildErr := errors.New("account service unavailable")
		_, err = cache.GetOrAddCall("acc:1", func() (Account, error) {
			return Account{}, buildErr
		})
		require.ErrorIs(t, err, buildErr)

		_, found := cache.Get("acc:1")
		require.False(t, found)

		val, err := cache.GetOrAddCall("acc:1", func() (Account, error) {
			return Account{"Bob"}, nil
		})
		require.NoError(t, err)
		require.Equal(t, Account{"Bob"}, val)
	})

	t.Run("build panic is propagated", func(t *testing.T) {
		cache, err := New[string, Account](10, nil)
		require.NoError(t, err)

		require.Panics(t, func() {
			_, _ = cache.GetOrAddCall("acc:1", func() (Account, error) {
				panic("boom")
			})
		})

		_, found := cache.Get("acc:1")
		require.False(t, found)
	})
}

func ExampleLRUCache() {
	cache, err := New[string, Account](100, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	cache.Add("acc:1", Account{"Bob"})

	if acc, found := cache.Get("acc:1"); found {
		fmt.Println(acc.Name)
	}
	// Output: Bob
}
