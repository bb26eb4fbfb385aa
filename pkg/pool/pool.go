// Package pool provides object pooling for the Freeform memory engine to
// reduce allocations on hot paths.
//
// Pooled objects:
// - Activation maps (per-round propagation state in recall)
// - ID slices (eviction victim selection)
//
// Usage:
//
//	m := pool.GetActivationMap()
//	defer pool.PutActivationMap(m)
//
//	// Use the map...
//	m[id] = 0.72
package pool

import (
	"sync"

	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

// Config configures pooling behavior.
type Config struct {
	// Enabled controls whether pooling is active.
	Enabled bool

	// MaxSize limits the capacity of objects returned to a pool.
	// Larger objects are dropped instead of pooled.
	MaxSize int
}

var globalConfig = Config{
	Enabled: true,
	MaxSize: 4096,
}

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config Config) {
	globalConfig = config
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Activation Map Pool (recall propagation rounds)
// =============================================================================

var activationMapPool = sync.Pool{
	New: func() any {
		return make(map[store.ID]float64, 64)
	},
}

// GetActivationMap returns an empty activation map from the pool.
// Call PutActivationMap when done.
func GetActivationMap() map[store.ID]float64 {
	if !globalConfig.Enabled {
		return make(map[store.ID]float64, 64)
	}
	return activationMapPool.Get().(map[store.ID]float64)
}

// PutActivationMap clears the map and returns it to the pool.
func PutActivationMap(m map[store.ID]float64) {
	if !globalConfig.Enabled {
		return
	}
	if len(m) > globalConfig.MaxSize {
		return
	}
	for k := range m {
		delete(m, k)
	}
	activationMapPool.Put(m)
}

// =============================================================================
// ID Slice Pool
// =============================================================================

var idSlicePool = sync.Pool{
	New: func() any {
		return make([]store.ID, 0, 64)
	},
}

// GetIDSlice returns an ID slice from the pool.
// The returned slice has length 0 but may have capacity.
func GetIDSlice() []store.ID {
	if !globalConfig.Enabled {
		return make([]store.ID, 0, 64)
	}
	return idSlicePool.Get().([]store.ID)[:0]
}

// PutIDSlice returns an ID slice to the pool.
func PutIDSlice(ids []store.ID) {
	if !globalConfig.Enabled {
		return
	}
	if cap(ids) > globalConfig.MaxSize {
		return
	}
	idSlicePool.Put(ids[:0])
}
