package cache

import "time"

// Stats is a point-in-time snapshot of one namespace. Hit, miss and eviction
// counts are process-lifetime counters, reset only by Clear; entry and byte
// totals cover live entries at aggregation time.
type Stats struct {
	TotalEntries   int       `json:"total_entries"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	HitRate        float64   `json:"hit_rate"`
	MissRate       float64   `json:"miss_rate"`
	EvictionCount  int64     `json:"eviction_count"`
	OldestEntry    time.Time `json:"oldest_entry"`
	NewestEntry    time.Time `json:"newest_entry"`
}
