package system

import (
	"encoding/json"
	"fmt"
	"os"
)

// CacheKind selects which of the three cache variants sits on a given
// side of the core.
type CacheKind string

// Recognized cache kinds.
const (
	CachePassThrough CacheKind = "passthrough"
	CacheDirect      CacheKind = "direct"
	CacheSetAssoc    CacheKind = "setassoc"
)

// CacheConfig describes one side (I or D) of the cache hierarchy.
type CacheConfig struct {
	Kind     CacheKind `json:"kind"`
	Size     int       `json:"size_bytes"`
	LineSize int       `json:"line_size"`
	Ways     int       `json:"ways,omitempty"`
}

// Config holds every tunable the system wiring layer needs: the cache
// shape on each side of the core, the backend's port count and
// per-port latency, and the register/memory seeding strategy.
type Config struct {
	ICache       CacheConfig `json:"icache"`
	DCache       CacheConfig `json:"dcache"`
	MemPortDelay int         `json:"mem_port_delay"`
	Seed         int64       `json:"seed"`
}

// DefaultConfig returns the stock configuration: a direct-mapped
// 4KiB/16B-line I-cache, a 4-way 8KiB/16B-line D-cache, and a
// two-port backend with a fixed 4-cycle port delay.
func DefaultConfig() *Config {
	return &Config{
		ICache:       CacheConfig{Kind: CacheDirect, Size: 4096, LineSize: 16},
		DCache:       CacheConfig{Kind: CacheSetAssoc, Size: 8192, LineSize: 16, Ways: 4},
		MemPortDelay: 4,
		Seed:         0xA5A5A5A5,
	}
}

// LoadConfig reads a Config from a JSON file, starting from
// DefaultConfig so a partial file only overrides what it mentions.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize system config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write system config file: %w", err)
	}
	return nil
}

// Validate checks that both cache configs describe a buildable cache.
func (c *Config) Validate() error {
	for name, cc := range map[string]CacheConfig{"icache": c.ICache, "dcache": c.DCache} {
		if cc.Kind == CachePassThrough {
			continue
		}
		if cc.LineSize <= 0 || cc.Size <= 0 || cc.Size%cc.LineSize != 0 {
			return fmt.Errorf("%s: size (%d) must be a positive multiple of line_size (%d)", name, cc.Size, cc.LineSize)
		}
		if cc.Kind == CacheSetAssoc && (cc.Ways <= 0 || (cc.Size/cc.LineSize)%cc.Ways != 0) {
			return fmt.Errorf("%s: ways (%d) must evenly divide the cache's line count", name, cc.Ways)
		}
	}
	return nil
}
