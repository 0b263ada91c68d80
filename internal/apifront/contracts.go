// Package apifront is the API Front of spec §4.5: a gorilla/mux router
// exposing the read/write surface over the Portfolio Aggregator, Audit
// Journal, and venue registry (it exposes no Trading Engine endpoint),
// wrapped in a fixed middleware
// chain. Grounded on the teacher's internal/interfaces/http package
// (server/middleware shape) with zerolog replacing log.Printf and a
// Prometheus registry per internal/interfaces/http/metrics.go.
package apifront

import "time"

// ErrorResponse is the fixed error envelope of spec §4.5: "{ code,
// message, requestId, details? }"; details is populated only when the
// server runs in a development profile.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Details   string `json:"details,omitempty"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type ComponentHealth struct {
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// PortfolioResponse is the GET /portfolio payload.
type PortfolioResponse struct {
	TotalGrams string                   `json:"totalGrams"`
	Status     string                   `json:"status"`
	BuiltAt    time.Time                `json:"builtAt"`
	Holdings   []PortfolioHoldingRecord `json:"holdings"`
}

type PortfolioHoldingRecord struct {
	VenueID    string    `json:"venueId"`
	Symbol     string    `json:"symbol"`
	Native     string    `json:"native"`
	Grams      string    `json:"grams"`
	Available  bool      `json:"available"`
	UnknownSym bool      `json:"unknownSymbol,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
}

// ConnectorsResponse is the GET /connectors payload.
type ConnectorsResponse struct {
	Connectors []ConnectorRecord `json:"connectors"`
}

type ConnectorRecord struct {
	VenueID     string  `json:"venueId"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	BreakerState string `json:"breakerState"`
	ErrorRate   float64 `json:"errorRate"`
	LatencyMs   float64 `json:"latencyMs"`
}

// AuditLogsResponse is the GET /audit/logs payload.
type AuditLogsResponse struct {
	Records []AuditRecordView `json:"records"`
}

type AuditRecordView struct {
	Seq        uint64         `json:"seq"`
	Kind       string         `json:"kind"`
	Timestamp  time.Time      `json:"timestamp"`
	VenueID    string         `json:"venueId"`
	Subject    string         `json:"subject"`
	Details    map[string]any `json:"details"`
	PrevHash   string         `json:"prevHash"`
	RecordHash string         `json:"recordHash"`
}

// MetricsResponse is the GET /metrics JSON summary (process metrics
// alongside the Prometheus exposition at the same path's sibling, see
// router.go); spec §4.5 "count, avg latency, error rate, uptime".
type MetricsResponse struct {
	RequestCount   int64   `json:"requestCount"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	ErrorRate      float64 `json:"errorRate"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

// RegisterVenueRequest is the POST /admin/venues body.
type RegisterVenueRequest struct {
	VenueID string `json:"venueId"`
	Kind    string `json:"kind"`
}
