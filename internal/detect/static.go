package detect

import (
	"context"
	"encoding/json"
	"sync"
)

// StaticDetector returns a scripted result on every call. Used by tests,
// benchmarks and dry-run deployments where no vision backend is configured.
type StaticDetector struct {
	mu     sync.Mutex
	result Result
	err    error
	calls  int
}

// SetResult scripts the result returned by subsequent Detect calls.
func (d *StaticDetector) SetResult(result Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = result
	d.err = nil
}

// SetError scripts a failure for subsequent Detect calls.
func (d *StaticDetector) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls returns how many times Detect ran.
func (d *StaticDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Detect returns the scripted result. The raw blob is synthesized so
// detection records stay inspectable.
func (d *StaticDetector) Detect(_ context.Context, _ []byte) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return Result{}, d.err
	}
	result := d.result
	if result.Raw == "" {
		if blob, err := json.Marshal(result); err == nil {
			result.Raw = string(blob)
		}
	}
	return result, nil
}
