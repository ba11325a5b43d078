package entities

import "time"

//StreamingSample is a telemetry point reported by a continuous pipeline worker
type StreamingSample struct {
	Records   int64     `json:"records"`
	Failed    int64     `json:"failed"`
	LatencyMs float64   `json:"latency_ms"`
	At        time.Time `json:"at"`
}

//StreamingStatus is an aggregated live view of one streaming pipeline
type StreamingStatus struct {
	PipelineID   string  `json:"pipeline_id"`
	Name         string  `json:"name"`
	Active       bool    `json:"active"`
	Throughput   float64 `json:"throughput"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
	Samples      int     `json:"samples"`
}
