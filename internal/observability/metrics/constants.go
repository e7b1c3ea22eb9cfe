// Package metrics provides custom Prometheus metrics for the PestGuard engine components.
package metrics

// Shared histogram bucket parameters so related metrics stay comparable.
const (
	// BucketStart1ms is the smallest latency bucket, 1 millisecond.
	BucketStart1ms = 0.001
	// BucketStart10ms is the smallest bucket for slower network operations.
	BucketStart10ms = 0.01
	// BucketFactor2 doubles each successive bucket.
	BucketFactor2 = 2.0
	// BucketCount10 covers roughly three orders of magnitude.
	BucketCount10 = 10
	// BucketCount15 covers 1ms to ~32s with factor 2.
	BucketCount15 = 15
)
