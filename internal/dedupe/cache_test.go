// ABOUTME: Tests for the redelivery dedupe cache.
// ABOUTME: Validates TTL expiry, capacity eviction, and atomic check-and-mark.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SeenOrMark(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.SeenOrMark("item-1"), "first delivery is not a duplicate")
	assert.True(t, cache.SeenOrMark("item-1"), "redelivery is a duplicate")
	assert.False(t, cache.SeenOrMark("item-2"))
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.SeenOrMark("item"))
	assert.True(t, cache.Seen("item"))

	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.Seen("item"))
	assert.False(t, cache.SeenOrMark("item"), "expired entry is treated as new")
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	for i := 1; i <= 4; i++ {
		cache.SeenOrMark(fmt.Sprintf("item-%d", i))
	}

	assert.False(t, cache.Seen("item-1"), "oldest entry evicted")
	assert.True(t, cache.Seen("item-2"))
	assert.True(t, cache.Seen("item-3"))
	assert.True(t, cache.Seen("item-4"))
}

func TestCache_ConcurrentSingleWinner(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.SeenOrMark("contested") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one delivery wins the mark")
}

func TestCache_CloseIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
