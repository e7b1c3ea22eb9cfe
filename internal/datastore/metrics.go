// Package datastore provides type aliases and integration with the observability metrics package
package datastore

import (
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// Metrics is a type alias for the metrics.DatastoreMetrics
// This allows us to use the metrics throughout the datastore package
type Metrics = metrics.DatastoreMetrics

// gormMetrics holds the metrics instance handed to the GORM logger.
var gormMetrics *Metrics

// SetMetrics sets the metrics instance for database operation instrumentation.
// Must be called before Open to take effect.
func SetMetrics(m *Metrics) {
	gormMetrics = m
}
