package providers

import (
	"strings"
	"time"
)

// Health is the operational state reported for a provider.
type Health string

const (
	HealthOperational Health = "operational"
	HealthDegraded    Health = "degraded"
	HealthOutage      Health = "outage"
)

// ParseHealth normalizes a health value.
func ParseHealth(value string) (Health, bool) {
	h := Health(strings.ToLower(strings.TrimSpace(value)))
	switch h {
	case HealthOperational, HealthDegraded, HealthOutage:
		return h, true
	}
	return "", false
}

// Status is one row of the provider health table.
type Status struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Health      Health    `json:"status" yaml:"status"`
	LatencyMS   float64   `json:"latency" yaml:"latency_ms"`
	Uptime      float64   `json:"uptime" yaml:"uptime"`
	CostPerUnit float64   `json:"costPerUnit" yaml:"cost_per_unit"`
	QuotaUsed   float64   `json:"quotaUsed" yaml:"quota_used"`
	QuotaTotal  float64   `json:"quotaTotal" yaml:"quota_total"`
	Features    []string  `json:"features" yaml:"features"`
	LastChecked time.Time `json:"lastChecked" yaml:"last_checked"`
}

func (s Status) clone() Status {
	s.Features = append([]string(nil), s.Features...)
	return s
}

// Patch is a partial provider_status payload. Nil fields are kept.
type Patch struct {
	Name        *string    `json:"name,omitempty"`
	Health      *Health    `json:"status,omitempty"`
	LatencyMS   *float64   `json:"latency,omitempty"`
	Uptime      *float64   `json:"uptime,omitempty"`
	CostPerUnit *float64   `json:"costPerUnit,omitempty"`
	QuotaUsed   *float64   `json:"quotaUsed,omitempty"`
	QuotaTotal  *float64   `json:"quotaTotal,omitempty"`
	Features    []string   `json:"features,omitempty"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// ModelType classifies what a model is used for.
type ModelType string

// ModelMetrics describes one model's quality and cost profile.
type ModelMetrics struct {
	ModelID      string    `json:"modelId" yaml:"model_id"`
	Provider     string    `json:"provider" yaml:"provider"`
	Name         string    `json:"name" yaml:"name"`
	Type         ModelType `json:"type" yaml:"type"`
	Accuracy     float64   `json:"accuracy" yaml:"accuracy"`
	LatencyMS    float64   `json:"latency" yaml:"latency_ms"`
	CostPerToken float64   `json:"costPerToken" yaml:"cost_per_token"`
	UsageCount   int64     `json:"usageCount" yaml:"usage_count"`
	ErrorRate    float64   `json:"errorRate" yaml:"error_rate"`
	LastUpdated  time.Time `json:"lastUpdated" yaml:"last_updated"`
}
