package models

import "time"

// ServerStats is a point-in-time summary served on /stats.
type ServerStats struct {
	RequestsTotal     uint64    `json:"requests_total"`
	PushesTotal       uint64    `json:"pushes_total"`
	PushesFailed      uint64    `json:"pushes_failed"`
	DeliveriesTotal   uint64    `json:"deliveries_total"`
	LinksResolved     uint64    `json:"links_resolved"`
	LinkTimeouts      uint64    `json:"link_timeouts"`
	Watchers          int       `json:"watchers"`
	StaffCacheHitRate float64   `json:"staff_cache_hit_rate"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generated_at"`
}
