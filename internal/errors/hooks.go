// Package errors - error hooks for cross-cutting consumers
package errors

import (
	"sync"
	"sync/atomic"
)

// ErrorHook is called for every enhanced error built while reporting is active.
// Hooks must be fast and must not build enhanced errors themselves.
type ErrorHook func(ee *EnhancedError)

var (
	errorHooks   []ErrorHook
	errorHooksMu sync.RWMutex

	// hasActiveReporting gates the expensive Build path. It is true when a
	// telemetry reporter or at least one hook is installed.
	hasActiveReporting atomic.Bool
)

// AddErrorHook registers a hook invoked on every built error
func AddErrorHook(hook ErrorHook) {
	errorHooksMu.Lock()
	errorHooks = append(errorHooks, hook)
	errorHooksMu.Unlock()
	updateReportingState()
}

// ClearErrorHooks removes all registered hooks
func ClearErrorHooks() {
	errorHooksMu.Lock()
	errorHooks = nil
	errorHooksMu.Unlock()
	updateReportingState()
}

// runErrorHooks invokes all registered hooks for the given error
func runErrorHooks(ee *EnhancedError) {
	errorHooksMu.RLock()
	hooks := errorHooks
	errorHooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}
}

// updateReportingState recomputes the fast-path gate
func updateReportingState() {
	errorHooksMu.RLock()
	hooksActive := len(errorHooks) > 0
	errorHooksMu.RUnlock()

	reporter := GetTelemetryReporter()
	hasActiveReporting.Store(hooksActive || (reporter != nil && reporter.IsEnabled()))
}
