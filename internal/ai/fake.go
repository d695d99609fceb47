package ai

import (
	"context"
	"sync"
)

// Fake is a scriptable analyzer for tests.
type Fake struct {
	mu       sync.Mutex
	result   Result
	err      error
	enabled  bool
	Requests []Request
}

// NewFake returns an enabled fake answering with the given result.
func NewFake(result Result) *Fake {
	return &Fake{result: result, enabled: true}
}

// Fail makes every Analyze call return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetEnabled toggles availability.
func (f *Fake) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *Fake) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if !f.enabled {
		return Result{}, ErrDisabled
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func (f *Fake) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}
