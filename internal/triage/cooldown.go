package triage

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Alert channels for cooldown keying.
const (
	ChannelCivilian = "civilian"
	ChannelOfficial = "official"
)

// CooldownStore enforces a minimum interval between alerts for one channel
// and location. The check-then-set is a single atomic step so two concurrent
// detections can never both pass.
type CooldownStore struct {
	mu     sync.Mutex
	cache  *gocache.Cache
	window time.Duration
}

// NewCooldownStore creates a store with the given cooldown window.
func NewCooldownStore(window time.Duration) *CooldownStore {
	return &CooldownStore{
		cache:  gocache.New(window, 2*window),
		window: window,
	}
}

// Allow reports whether an alert may be sent for channel and location now,
// and if so records the send time. Exactly one of N concurrent callers
// within the window gets true.
func (s *CooldownStore) Allow(channel, location string) bool {
	key := fmt.Sprintf("%s_%s", channel, location)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache.Get(key); found {
		return false
	}
	s.cache.Set(key, time.Now(), s.window)
	return true
}

// Remaining returns how long until the next alert is allowed for channel and
// location, zero when none is pending.
func (s *CooldownStore) Remaining(channel, location string) time.Duration {
	key := fmt.Sprintf("%s_%s", channel, location)

	s.mu.Lock()
	defer s.mu.Unlock()

	if lastSent, found := s.cache.Get(key); found {
		elapsed := time.Since(lastSent.(time.Time))
		if elapsed < s.window {
			return s.window - elapsed
		}
	}
	return 0
}
