package device

import (
	"context"
	"sync"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// Fake is a scriptable in-memory device used across package tests. Paths are
// primed with records; raw commands are recorded and answered from a map.
type Fake struct {
	mu        sync.Mutex
	connected bool
	records   map[string][]Record
	rawOut    map[string]string
	rawErr    map[string]error
	RawCalls  []string
}

// NewFake returns a connected fake with no primed paths.
func NewFake() *Fake {
	return &Fake{
		connected: true,
		records:   make(map[string][]Record),
		rawOut:    make(map[string]string),
		rawErr:    make(map[string]error),
	}
}

// SetConnected toggles reachability.
func (f *Fake) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// Prime sets the records returned for a path.
func (f *Fake) Prime(path string, records ...Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[path] = records
}

// PrimeRaw sets the output for a raw command path.
func (f *Fake) PrimeRaw(path, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawOut[path] = output
}

// FailRaw makes a raw command path fail.
func (f *Fake) FailRaw(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawErr[path] = err
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Print(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, models.E(models.KindDependency, "device not connected")
	}
	records, ok := f.records[path]
	if !ok {
		return nil, nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (f *Fake) ExecuteRaw(ctx context.Context, path string, params map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RawCalls = append(f.RawCalls, path)
	if !f.connected {
		return "", models.E(models.KindDependency, "device not connected")
	}
	if err, ok := f.rawErr[path]; ok {
		return "", err
	}
	return f.rawOut[path], nil
}
