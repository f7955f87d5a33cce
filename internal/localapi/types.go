package localapi

import (
	"time"

	"aiwatch/internal/channel"
	"aiwatch/internal/costs"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
)

// StatusResponse summarizes the watcher.
type StatusResponse struct {
	Running              bool                    `json:"running"`
	PID                  int                     `json:"pid"`
	OwnerID              string                  `json:"owner_id"`
	StateDBPath          string                  `json:"state_db_path,omitempty"`
	Channel              channel.Status          `json:"channel"`
	LastRefresh          time.Time               `json:"last_refresh,omitzero"`
	LastRefreshError     string                  `json:"last_refresh_error,omitempty"`
	JobCounts            map[jobs.Status]int     `json:"job_counts"`
	CostRange            costs.DateRange         `json:"cost_range"`
	CostTotal            float64                 `json:"cost_total"`
	CostAlert            bool                    `json:"cost_alert"`
	QuotaRatio           float64                 `json:"quota_ratio"`
	Providers            int                     `json:"providers"`
	OperationalProviders int                     `json:"operational_providers"`
	ErrorCounts          map[errorlog.Status]int `json:"error_counts"`
	PotentialSavings     float64                 `json:"potential_savings"`
}

type JobsResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

type CostsResponse struct {
	Range     costs.DateRange `json:"range"`
	Rollups   []costs.Rollup  `json:"rollups"`
	Total     costs.Micros    `json:"total_micros"`
	Breakdown []costs.Slice   `json:"breakdown"`
	Alert     bool            `json:"alert"`
	Quota     *quota.Usage    `json:"quota,omitempty"`
}

type ErrorsResponse struct {
	Errors []errorlog.Entry        `json:"errors"`
	Counts map[errorlog.Status]int `json:"counts"`
}

type ProvidersResponse struct {
	Providers   []providers.Status       `json:"providers"`
	Operational int                      `json:"operational"`
	Models      []providers.ModelMetrics `json:"models"`
}

type RecommendationsResponse struct {
	Recommendations  []recommendations.Recommendation `json:"recommendations"`
	PotentialSavings float64                          `json:"potential_savings"`
}

type ErrorStatusRequest struct {
	Status string `json:"status"`
}

type RecommendationRequest struct {
	Implemented bool `json:"implemented"`
}

// ActionResponse acknowledges a job action or refresh.
type ActionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
