package triage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownAllowsOncePerWindow(t *testing.T) {
	store := NewCooldownStore(50 * time.Millisecond)

	assert.True(t, store.Allow(ChannelCivilian, "sector-1"))
	assert.False(t, store.Allow(ChannelCivilian, "sector-1"))
	assert.Greater(t, store.Remaining(ChannelCivilian, "sector-1"), time.Duration(0))

	time.Sleep(70 * time.Millisecond)
	assert.True(t, store.Allow(ChannelCivilian, "sector-1"), "window elapsed")
}

func TestCooldownKeysAreIndependent(t *testing.T) {
	store := NewCooldownStore(time.Minute)

	assert.True(t, store.Allow(ChannelCivilian, "sector-1"))
	assert.True(t, store.Allow(ChannelOfficial, "sector-1"), "channels do not share keys")
	assert.True(t, store.Allow(ChannelCivilian, "sector-2"), "locations do not share keys")
	assert.False(t, store.Allow(ChannelCivilian, "sector-1"))
}

func TestCooldownCheckAndSetIsAtomic(t *testing.T) {
	store := NewCooldownStore(time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Allow(ChannelCivilian, "sector-1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load(), "exactly one concurrent caller passes")
}
