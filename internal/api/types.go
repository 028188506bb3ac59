package api

import "github.com/samcharles93/autoflex/internal/flex"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type StatusResponse struct {
	Object         string  `json:"object"`
	Step           int     `json:"step"`
	FixedPoint     bool    `json:"fixed_point"`
	Entries        int     `json:"entries"`
	UpdatedEntries int     `json:"updated_entries"`
	ClippedTotal   int64   `json:"clipped_total"`
	OverflowsTotal int64   `json:"overflows_total"`
	MinScale       float64 `json:"min_scale,omitempty"`
	MaxScale       float64 `json:"max_scale,omitempty"`
	SnapshotsKept  int     `json:"snapshots_kept"`
	SnapshotsTotal int64   `json:"snapshots_total"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

type EntryList struct {
	Object string            `json:"object"`
	Step   int               `json:"step"`
	Data   []flex.EntryState `json:"data"`
}

type HistoryResponse struct {
	Object string          `json:"object"`
	Data   []flex.Snapshot `json:"data"`
}
