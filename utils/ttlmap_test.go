package utils

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLMap_SetAndUntil(t *testing.T) {
	m := NewTTLMap()
	expiry := time.Now().Add(time.Hour)

	m.Set("user-1:box-1", expiry)

	got, ok := m.Until("user-1:box-1")
	require.True(t, ok)
	assert.Equal(t, expiry, got)

	_, ok = m.Until("user-1:box-2")
	assert.False(t, ok)
}

func TestTTLMap_ExpiredKeyIsMiss(t *testing.T) {
	m := NewTTLMap()
	m.Set("k", time.Now().Add(-time.Second))

	_, ok := m.Until("k")
	assert.False(t, ok)
}

func TestTTLMap_Delete(t *testing.T) {
	m := NewTTLMap()
	m.Set("k", time.Now().Add(time.Hour))

	m.Delete("k")

	_, ok := m.Until("k")
	assert.False(t, ok)
}

func TestTTLMap_Sweep(t *testing.T) {
	m := NewTTLMap()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	for i := 0; i < 20; i++ {
		m.Set(fmt.Sprintf("expired-%d", i), past)
	}
	for i := 0; i < 5; i++ {
		m.Set(fmt.Sprintf("live-%d", i), future)
	}

	assert.Equal(t, 20, m.Sweep())

	// Live entries survive the sweep.
	for i := 0; i < 5; i++ {
		_, ok := m.Until(fmt.Sprintf("live-%d", i))
		assert.True(t, ok)
	}

	// A second sweep finds nothing.
	assert.Zero(t, m.Sweep())
}

func TestTTLMap_ConcurrentAccess(t *testing.T) {
	m := NewTTLMap()
	expiry := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				m.Set(key, expiry)
				m.Until(key)
				if i%3 == 0 {
					m.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	_, ok := m.Until("g0-k1")
	assert.True(t, ok)
}
