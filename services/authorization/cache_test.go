package authorization

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/upb/identity-core/models"
)

func newLink(sub string) *models.IdentityLink {
	return models.NewIdentityLink{Provider: "cognito", Sub: sub, UserID: uuid.New()}.Build()
}

func TestLinkCache_GetSet(t *testing.T) {
	cache := NewLinkCache(10, 5*time.Minute)

	assert.Nil(t, cache.Get("cognito", "sub-1"))

	link := newLink("sub-1")
	cache.Set(link)
	assert.Equal(t, link, cache.Get("cognito", "sub-1"))
	assert.Nil(t, cache.Get("fake", "sub-1"), "scoped by provider")

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}

func TestLinkCache_TTL(t *testing.T) {
	cache := NewLinkCache(10, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set(newLink("sub-1"))
	cache.Set(newLink("sub-2"))

	now = now.Add(30 * time.Second)
	assert.NotNil(t, cache.Get("cognito", "sub-1"))

	now = now.Add(time.Minute)
	assert.Nil(t, cache.Get("cognito", "sub-1"))
	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestLinkCache_LRUEviction(t *testing.T) {
	cache := NewLinkCache(2, time.Minute)

	cache.Set(newLink("a"))
	cache.Set(newLink("b"))
	cache.Get("cognito", "a")
	cache.Set(newLink("c"))

	assert.NotNil(t, cache.Get("cognito", "a"))
	assert.Nil(t, cache.Get("cognito", "b"), "least recently used is evicted")
	assert.NotNil(t, cache.Get("cognito", "c"))
}

func TestLinkCache_InvalidateAndClear(t *testing.T) {
	cache := NewLinkCache(10, time.Minute)
	cache.Set(newLink("a"))
	cache.Set(newLink("b"))

	cache.Invalidate("cognito", "a")
	assert.Nil(t, cache.Get("cognito", "a"))
	assert.NotNil(t, cache.Get("cognito", "b"))

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestLinkCache_CleanupWorkerStops(t *testing.T) {
	cache := NewLinkCache(10, time.Millisecond)
	cache.Set(newLink("a"))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(5*time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}

func TestLinkCache_Concurrent(t *testing.T) {
	cache := NewLinkCache(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				link := newLink(uuid.NewString())
				cache.Set(link)
				cache.Get(link.Provider, link.Sub)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Stats().Size, 50)
}
