// utils/ttlmap.go
package utils

import (
	"sync"
	"time"
)

const ttlMapShards = 16

type ttlShard struct {
	mu      sync.RWMutex
	entries map[string]time.Time // key → expiry
}

// TTLMap is a sharded expiring key set used as the dig-gate cooldown cache.
// Keyed and swept so it stays correct (merely less effective) when the
// service runs as multiple instances — the database remains authoritative.
type TTLMap struct {
	shards [ttlMapShards]*ttlShard
}

func NewTTLMap() *TTLMap {
	m := &TTLMap{}
	for i := range m.shards {
		m.shards[i] = &ttlShard{entries: make(map[string]time.Time)}
	}
	return m
}

func (m *TTLMap) shard(key string) *ttlShard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return m.shards[h%ttlMapShards]
}

// Set records key as held until expiry.
func (m *TTLMap) Set(key string, expiry time.Time) {
	s := m.shard(key)
	s.mu.Lock()
	s.entries[key] = expiry
	s.mu.Unlock()
}

// Until returns the expiry for key if it is still in the future.
func (m *TTLMap) Until(key string) (time.Time, bool) {
	s := m.shard(key)
	s.mu.RLock()
	exp, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !exp.After(time.Now()) {
		return time.Time{}, false
	}
	return exp, true
}

// Delete removes key regardless of expiry.
func (m *TTLMap) Delete(key string) {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep drops every expired entry and returns how many were removed.
func (m *TTLMap) Sweep() int {
	now := time.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, exp := range s.entries {
			if !exp.After(now) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
