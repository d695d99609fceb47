// Package collector samples device resources on a fixed interval, persists
// the samples in date-partitioned files, and serves metric history queries.
package collector

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/config"
	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// failureWarnThreshold is how many consecutive collection failures trigger
// a warning log.
const failureWarnThreshold = 3

// recentWindow bounds the in-memory sample ring used for rate computation.
const recentWindow = 10 * time.Minute

// SampleCallback receives every collected sample set.
type SampleCallback func(set models.SampleSet)

// HistoryPoint is one point of metric history.
type HistoryPoint struct {
	Timestamp models.Millis `json:"timestamp"`
	Value     float64       `json:"value"`
	Label     string        `json:"label,omitempty"`
}

// Collector runs the periodic sampling loop.
type Collector struct {
	mu sync.RWMutex

	client     device.Client
	cfgStore   *config.MetricsConfigStore
	systemDays *storage.DayStore[models.SystemSample]
	ifaceDays  *storage.DayStore[models.InterfaceSample]
	timeout    time.Duration

	latest       *models.SampleSet
	recent       []models.SampleSet // ascending by time, pruned to recentWindow
	consecFails  int
	onSamples    []SampleCallback
	intervalCh   chan time.Duration
	stopOnce     sync.Once
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New creates a collector persisting under the given paths.
func New(client device.Client, cfgStore *config.MetricsConfigStore, paths config.Paths, timeout time.Duration) (*Collector, error) {
	systemDays, err := storage.NewDayStore[models.SystemSample](paths.SystemMetricsDir())
	if err != nil {
		return nil, err
	}
	ifaceDays, err := storage.NewDayStore[models.InterfaceSample](paths.IfaceMetricsDir())
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Collector{
		client:     client,
		cfgStore:   cfgStore,
		systemDays: systemDays,
		ifaceDays:  ifaceDays,
		timeout:    timeout,
		intervalCh: make(chan time.Duration, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	cfgStore.OnChange(func(cfg config.MetricsConfig) {
		select {
		case c.intervalCh <- time.Duration(cfg.IntervalMs) * time.Millisecond:
		default:
		}
	})

	return c, nil
}

// OnSamples registers a callback invoked after every successful collection.
func (c *Collector) OnSamples(cb SampleCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSamples = append(c.onSamples, cb)
}

// Start runs the retention sweep and then the sampling loop until the
// context is cancelled or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.sweepRetention()

	go func() {
		defer close(c.doneCh)

		interval := time.Duration(c.cfgStore.Get().IntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case d := <-c.intervalCh:
				if d > 0 {
					ticker.Reset(d)
				}
			case <-ticker.C:
				if !c.cfgStore.Get().Enabled {
					continue
				}
				if _, err := c.collect(ctx); err != nil {
					c.noteFailure(err)
				}
			}
		}
	}()
}

// Stop terminates the sampling loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// CollectNow bypasses the timer, collects a fresh sample set, persists it,
// and returns it.
func (c *Collector) CollectNow(ctx context.Context) (models.SampleSet, error) {
	set, err := c.collect(ctx)
	if err != nil {
		c.noteFailure(err)
		return models.SampleSet{}, err
	}
	return set, nil
}

// Latest returns the most recently collected sample set, if any.
func (c *Collector) Latest() (models.SampleSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return models.SampleSet{}, false
	}
	return *c.latest, true
}

// TrafficRate returns the average rx+tx rate in bytes/sec for an interface
// over the trailing window, computed from in-memory samples. Counter resets
// invalidate the affected interval. Returns false when fewer than two
// samples cover the window.
func (c *Collector) TrafficRate(name string, window time.Duration) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	type point struct {
		t     time.Time
		total uint64
	}
	var points []point
	for _, set := range c.recent {
		ifc, ok := set.Interface(name)
		if !ok || ifc.Timestamp.Before(cutoff) {
			continue
		}
		points = append(points, point{t: ifc.Timestamp.Time, total: ifc.RxBytes + ifc.TxBytes})
	}
	if len(points) < 2 {
		return 0, false
	}

	var sum float64
	intervals := 0
	for i := 1; i < len(points); i++ {
		if points[i].total < points[i-1].total {
			continue // counter reset
		}
		dt := points[i].t.Sub(points[i-1].t).Seconds()
		if dt <= 0 {
			continue
		}
		sum += float64(points[i].total-points[i-1].total) / dt
		intervals++
	}
	if intervals == 0 {
		return 0, false
	}
	return sum / float64(intervals), true
}

// GetHistory returns persisted history for a metric between from and to,
// ascending by time. System metrics are "cpu", "memory", "disk"; interface
// history uses the key "interface:<name>" and reports rx+tx bytes.
func (c *Collector) GetHistory(metric string, from, to time.Time) ([]HistoryPoint, error) {
	if name, ok := strings.CutPrefix(metric, "interface:"); ok {
		samples, err := c.ifaceDays.Range(from, to)
		if err != nil {
			return nil, models.WrapE(models.KindIO, err, "read interface history")
		}
		var points []HistoryPoint
		for _, s := range samples {
			if s.Name != name || s.Timestamp.Before(from) || s.Timestamp.After(to) {
				continue
			}
			points = append(points, HistoryPoint{
				Timestamp: s.Timestamp,
				Value:     float64(s.RxBytes + s.TxBytes),
				Label:     s.Name,
			})
		}
		sortPoints(points)
		return points, nil
	}

	samples, err := c.systemDays.Range(from, to)
	if err != nil {
		return nil, models.WrapE(models.KindIO, err, "read system history")
	}
	var points []HistoryPoint
	for _, s := range samples {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		var value float64
		switch metric {
		case "cpu":
			value = s.CPUPct
		case "memory":
			value = s.MemUsedPct()
		case "disk":
			value = s.DiskUsedPct()
		default:
			return nil, models.E(models.KindValidation, "unknown metric %q", metric)
		}
		points = append(points, HistoryPoint{Timestamp: s.Timestamp, Value: value})
	}
	sortPoints(points)
	return points, nil
}

func sortPoints(points []HistoryPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp.Time)
	})
}

func (c *Collector) collect(ctx context.Context) (models.SampleSet, error) {
	if !c.client.IsConnected() {
		return models.SampleSet{}, models.E(models.KindDependency, "device not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	now := time.Now()
	var set models.SampleSet

	sysRecords, err := c.client.Print(ctx, "/system/resource")
	if err != nil {
		return models.SampleSet{}, models.WrapE(models.KindDependency, err, "fetch system resource")
	}
	if len(sysRecords) > 0 {
		set.System = parseSystemSample(sysRecords[0], now)
	}

	ifaceRecords, err := c.client.Print(ctx, "/interface")
	if err != nil {
		return models.SampleSet{}, models.WrapE(models.KindDependency, err, "fetch interfaces")
	}
	for _, r := range ifaceRecords {
		set.Interfaces = append(set.Interfaces, parseInterfaceSample(r, now))
	}

	c.persist(set, now)

	c.mu.Lock()
	c.latest = &set
	c.consecFails = 0
	c.recent = append(c.recent, set)
	cutoff := now.Add(-recentWindow)
	for len(c.recent) > 0 && c.sampleTime(c.recent[0]).Before(cutoff) {
		c.recent = c.recent[1:]
	}
	callbacks := append([]SampleCallback(nil), c.onSamples...)
	c.mu.Unlock()

	collectionsTotal.Inc()

	for _, cb := range callbacks {
		cb(set)
	}
	return set, nil
}

func (c *Collector) sampleTime(set models.SampleSet) time.Time {
	if set.System != nil {
		return set.System.Timestamp.Time
	}
	if len(set.Interfaces) > 0 {
		return set.Interfaces[0].Timestamp.Time
	}
	return time.Time{}
}

func (c *Collector) persist(set models.SampleSet, now time.Time) {
	day := storage.DayKey(now)
	if set.System != nil {
		if err := c.systemDays.Append(day, *set.System); err != nil {
			log.Error().Err(err).Msg("failed to persist system sample")
		}
	}
	if len(set.Interfaces) > 0 {
		if err := c.ifaceDays.Append(day, set.Interfaces...); err != nil {
			log.Error().Err(err).Msg("failed to persist interface samples")
		}
	}
}

func (c *Collector) noteFailure(err error) {
	collectionFailures.Inc()

	c.mu.Lock()
	c.consecFails++
	fails := c.consecFails
	c.mu.Unlock()

	if fails >= failureWarnThreshold {
		log.Warn().Err(err).Int("consecutiveFailures", fails).Msg("metrics collection failing repeatedly")
	} else {
		log.Debug().Err(err).Msg("metrics collection failed")
	}
}

func (c *Collector) sweepRetention() {
	days := c.cfgStore.Get().RetentionDays
	if days <= 0 {
		days = config.DefaultMetricsConfig().RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	sysRemoved, err := c.systemDays.Sweep(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("system metrics retention sweep failed")
	}
	ifaceRemoved, err := c.ifaceDays.Sweep(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("interface metrics retention sweep failed")
	}
	if sysRemoved+ifaceRemoved > 0 {
		log.Info().
			Int("system", sysRemoved).
			Int("interfaces", ifaceRemoved).
			Msg("metrics retention sweep completed")
	}
}
