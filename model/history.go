package model

import "time"

// HistoryEntry is one persisted analysis outcome.
type HistoryEntry struct {
	Timestamp   time.Time      `json:"timestamp_utc"`
	DumpFile    string         `json:"dump_file"`
	BucketKey   string         `json:"bucket_key"`
	TopSuspect  string         `json:"top_suspect,omitempty"`
	Confidence  ConfidenceTier `json:"confidence"`
	SignatureID string         `json:"signature_id,omitempty"`
	AllSuspects []string       `json:"all_suspects,omitempty"`
	// UnknownFault is set when the fault address resolved to no module.
	UnknownFault bool `json:"unknown_fault_module,omitempty"`
}

// ModuleStats aggregates how often a module was implicated over a window of entries.
type ModuleStats struct {
	Module           string `json:"module"`
	AsTopSuspect     int    `json:"as_top_suspect"`
	TotalAppearances int    `json:"total_appearances"`
	TotalCrashes     int    `json:"total_crashes"`
}

// BucketStats aggregates every entry sharing one fault bucket key.
type BucketStats struct {
	BucketKey string    `json:"bucket_key"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Modules   []string  `json:"associated_modules,omitempty"`
}
