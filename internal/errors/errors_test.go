package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestFastPathNoTelemetry(t *testing.T) {
	t.Parallel()

	// Ensure no telemetry or hooks
	SetTelemetryReporter(nil)
	ClearErrorHooks()

	// Create an error - should use fast path
	err := fmt.Errorf("test error")
	ee := New(err).Build()

	if ee.Err.Error() != "test error" {
		t.Errorf("Expected error message 'test error', got '%s'", ee.Err.Error())
	}

	if ee.GetComponent() != "unknown" {
		t.Errorf("Expected component 'unknown' in fast path, got '%s'", ee.GetComponent())
	}

	if ee.Category != CategoryGeneric {
		t.Errorf("Expected category 'generic' in fast path, got '%s'", ee.Category)
	}
}

func TestBuilderCarriesContext(t *testing.T) {
	t.Parallel()

	ee := Newf("snapshot fetch failed: %d", 429).
		Component("camera").
		Category(CategoryHTTP).
		Context("status_code", 429).
		CameraContext(7, "barn-east").
		Build()

	if ee.GetComponent() != "camera" {
		t.Errorf("Expected component 'camera', got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryHTTP {
		t.Errorf("Expected category '%s', got '%s'", CategoryHTTP, ee.Category)
	}

	ctx := ee.GetContext()
	if ctx["status_code"] != 429 {
		t.Errorf("Expected status_code 429 in context, got %v", ctx["status_code"])
	}
	if ctx["camera_id"] != uint(7) {
		t.Errorf("Expected camera_id 7 in context, got %v", ctx["camera_id"])
	}
	if ctx["camera_name"] != "barn-east" {
		t.Errorf("Expected camera_name 'barn-east' in context, got %v", ctx["camera_name"])
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	base := NewStd("device not in bootstrap")
	ee := New(base).Category(CategoryNotFound).Build()

	wrapped := fmt.Errorf("listing devices: %w", ee)

	if !IsNotFound(wrapped) {
		t.Error("Expected IsNotFound to see through wrapping")
	}
	if IsCategory(wrapped, CategoryDatabase) {
		t.Error("Did not expect CategoryDatabase match")
	}
	if !Is(wrapped, base) {
		t.Error("Expected Is to reach the base error")
	}
}

func TestRegexPrecompilation(t *testing.T) {
	t.Parallel()

	// Test URL scrubbing
	testMessage1 := "Error at https://api.example.com?api_key=secret123&token=abc"
	scrubbed1 := basicURLScrub(testMessage1)
	expected1 := "Error at https://api.example.com?[REDACTED]"
	if scrubbed1 != expected1 {
		t.Errorf("URL scrubbing failed. Expected: %s, got: %s", expected1, scrubbed1)
	}

	// Test API key scrubbing in non-URL context
	testMessage2 := "Config error: api_key=secret123 is invalid"
	scrubbed2 := basicURLScrub(testMessage2)
	if !strings.Contains(scrubbed2, "[API_KEY_REDACTED]") {
		t.Errorf("API key scrubbing failed. Expected to contain '[API_KEY_REDACTED]', got: %s", scrubbed2)
	}

	// Test multiple patterns
	testMessage3 := "Auth failed with token=abc123 and auth=xyz789"
	scrubbed3 := basicURLScrub(testMessage3)
	if strings.Contains(scrubbed3, "abc123") || strings.Contains(scrubbed3, "xyz789") {
		t.Errorf("Token scrubbing failed. Sensitive data still present: %s", scrubbed3)
	}
}

func TestHookReceivesBuiltErrors(t *testing.T) {
	// Not parallel: mutates global hook state.
	SetTelemetryReporter(nil)
	ClearErrorHooks()
	defer ClearErrorHooks()

	var seen []*EnhancedError
	AddErrorHook(func(ee *EnhancedError) {
		seen = append(seen, ee)
	})

	New(NewStd("boom")).Component("engine").Category(CategoryWorker).Build()

	if len(seen) != 1 {
		t.Fatalf("Expected 1 hooked error, got %d", len(seen))
	}
	if seen[0].Category != CategoryWorker {
		t.Errorf("Expected hooked category '%s', got '%s'", CategoryWorker, seen[0].Category)
	}
}
