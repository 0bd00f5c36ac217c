package models

import "time"

// SystemMetrics summarises in-process counters for the metrics summary endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CollectionsRejected      uint64    `json:"collections_rejected"`
	SweptPrescriptions       uint64    `json:"swept_prescriptions"`
	SweptSessions            uint64    `json:"swept_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
