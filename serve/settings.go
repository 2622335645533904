package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"

	fimlet "github.com/michaai/fimlet"
)

const (
	settingsKey = "settings"
	settingsTTL = 5 * time.Second
)

// Settings caches the effective configuration snapshot. Edits on disk are
// picked up once the cached snapshot expires, or immediately after Reload.
type Settings struct {
	cache *ttlcache.Cache[string, fimlet.Config]
	load  func() (*fimlet.Config, error)
}

// NewSettings creates a settings cache that reads the user's config file.
func NewSettings() *Settings {
	return newSettings(fimlet.LoadConfig, settingsTTL)
}

func newSettings(load func() (*fimlet.Config, error), ttl time.Duration) *Settings {
	c := ttlcache.New[string, fimlet.Config](
		ttlcache.WithTTL[string, fimlet.Config](ttl),
		ttlcache.WithDisableTouchOnHit[string, fimlet.Config](),
	)
	go c.Start()
	return &Settings{cache: c, load: load}
}

// Close stops the cache expiration loop.
func (s *Settings) Close() {
	s.cache.Stop()
}

// Snapshot returns a copy of the current settings that the caller owns.
// A config file that fails to load falls back to the defaults so
// completions keep working.
func (s *Settings) Snapshot() fimlet.Config {
	if item := s.cache.Get(settingsKey); item != nil {
		return detach(item.Value())
	}

	cfg, err := s.load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = fimlet.DefaultConfig()
	}
	snap := fimlet.Snapshot(cfg)
	s.cache.Set(settingsKey, snap, ttlcache.DefaultTTL)
	return detach(snap)
}

// detach copies the slices of cfg so the cached value cannot be changed
// through a returned snapshot.
func detach(cfg fimlet.Config) fimlet.Config {
	cfg.ExcludedExtensions = slices.Clone(cfg.ExcludedExtensions)
	return cfg
}

// Reload drops the cached snapshot and reads the config again.
func (s *Settings) Reload() fimlet.Config {
	s.cache.DeleteAll()
	return s.Snapshot()
}
