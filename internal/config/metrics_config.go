package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// MetricsConfig controls the metrics collector. Persisted as
// metrics-config.json under the data dir.
type MetricsConfig struct {
	IntervalMs    int64 `json:"intervalMs"`
	RetentionDays int   `json:"retentionDays"`
	Enabled       bool  `json:"enabled"`
}

// DefaultMetricsConfig returns the collector defaults: one sample per
// minute, seven days of retention.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		IntervalMs:    60_000,
		RetentionDays: 7,
		Enabled:       true,
	}
}

// MetricsConfigStore persists the collector configuration and notifies
// subscribers when the file changes on disk.
type MetricsConfigStore struct {
	mu       sync.RWMutex
	path     string
	current  MetricsConfig
	onChange []func(MetricsConfig)
}

// NewMetricsConfigStore loads the config file, writing defaults when absent.
func NewMetricsConfigStore(path string) (*MetricsConfigStore, error) {
	s := &MetricsConfigStore{path: path, current: DefaultMetricsConfig()}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.current); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("invalid metrics config, using defaults")
			s.current = DefaultMetricsConfig()
		}
	case os.IsNotExist(err):
		if err := s.save(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s, nil
}

// Get returns the current configuration.
func (s *MetricsConfigStore) Get() MetricsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the configuration and persists it.
func (s *MetricsConfigStore) Update(cfg MetricsConfig) error {
	s.mu.Lock()
	s.current = cfg
	err := s.save()
	subs := append([](func(MetricsConfig))(nil), s.onChange...)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}

// OnChange registers a callback invoked after every config change, whether
// through Update or an external file edit.
func (s *MetricsConfigStore) OnChange(fn func(MetricsConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *MetricsConfigStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Watch re-reads the file when it changes on disk, until the context is
// cancelled. External edits (e.g. an operator changing the interval) take
// effect without a restart.
func (s *MetricsConfigStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("metrics config watcher error")
			}
		}
	}()

	return nil
}

func (s *MetricsConfigStore) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("failed to re-read metrics config")
		return
	}
	var cfg MetricsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("ignoring invalid metrics config edit")
		return
	}

	s.mu.Lock()
	changed := cfg != s.current
	s.current = cfg
	subs := append([](func(MetricsConfig))(nil), s.onChange...)
	s.mu.Unlock()

	if !changed {
		return
	}
	log.Info().Int64("intervalMs", cfg.IntervalMs).Bool("enabled", cfg.Enabled).Msg("metrics config reloaded")
	for _, fn := range subs {
		fn(cfg)
	}
}
