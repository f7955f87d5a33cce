// Package export serializes the current dashboard view for operators and
// scripts. It never touches the engine's stores; it reads a frozen View.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aiwatch/internal/costs"
	"aiwatch/internal/engine"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/providers"
	"aiwatch/internal/quota"
	"aiwatch/internal/recommendations"
)

var (
	ErrUnknownKind   = errors.New("unknown export kind")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Kind selects which sections are exported.
type Kind string

const (
	KindJobs   Kind = "jobs"
	KindCosts  Kind = "costs"
	KindErrors Kind = "errors"
	KindAll    Kind = "all"
)

// Format is the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseKind normalizes a kind. Empty means all.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch k {
	case "":
		return KindAll, nil
	case KindJobs, KindCosts, KindErrors, KindAll:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
}

// ParseFormat normalizes a format. Empty means json; "yml" is accepted.
func ParseFormat(value string) (Format, error) {
	switch f := strings.ToLower(strings.TrimSpace(value)); f {
	case "", string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
}

// CostSection is the exported spend summary. Amounts are in currency units.
type CostSection struct {
	Range     costs.DateRange `json:"range" yaml:"range"`
	Total     float64         `json:"total" yaml:"total"`
	Alert     bool            `json:"alert" yaml:"alert"`
	Daily     []DailyCost     `json:"daily" yaml:"daily"`
	Breakdown []CategoryCost  `json:"breakdown" yaml:"breakdown"`
}

type DailyCost struct {
	Date      costs.Day          `json:"date" yaml:"date"`
	Subtotals map[string]float64 `json:"subtotals" yaml:"subtotals"`
	Total     float64            `json:"total" yaml:"total"`
}

type CategoryCost struct {
	Category string  `json:"category" yaml:"category"`
	Amount   float64 `json:"amount" yaml:"amount"`
}

// Document is the exported payload. Sections outside the kind are omitted.
type Document struct {
	Kind            Kind                             `json:"kind" yaml:"kind"`
	ExportedAt      time.Time                        `json:"exported_at" yaml:"exported_at"`
	Jobs            []jobs.Job                       `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Costs           *CostSection                     `json:"costs,omitempty" yaml:"costs,omitempty"`
	Quota           *quota.Usage                     `json:"quota,omitempty" yaml:"quota,omitempty"`
	Errors          []errorlog.Entry                 `json:"errors,omitempty" yaml:"errors,omitempty"`
	Providers       []providers.Status               `json:"providers,omitempty" yaml:"providers,omitempty"`
	Models          []providers.ModelMetrics         `json:"models,omitempty" yaml:"models,omitempty"`
	Recommendations []recommendations.Recommendation `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// Build selects the sections for kind from v. Jobs are narrowed by filter.
func Build(v engine.View, kind Kind, filter jobs.Filter, now time.Time) Document {
	doc := Document{Kind: kind, ExportedAt: now.UTC()}
	all := kind == KindAll
	if all || kind == KindJobs {
		doc.Jobs = filter.Select(v.Jobs)
	}
	if all || kind == KindCosts {
		doc.Costs = costSection(v)
		doc.Quota = v.Quota
	}
	if all || kind == KindErrors {
		doc.Errors = v.Errors
	}
	if all {
		doc.Providers = v.Providers
		doc.Models = v.Models
		doc.Recommendations = v.Recommendations
	}
	return doc
}

func costSection(v engine.View) *CostSection {
	section := &CostSection{
		Range: v.CostRange,
		Total: v.CostTotal.Float(),
		Alert: v.CostAlert,
		Daily: make([]DailyCost, 0, len(v.Rollups)),
	}
	for _, roll := range v.Rollups {
		day := DailyCost{Date: roll.Date, Subtotals: make(map[string]float64, len(roll.Subtotals)), Total: roll.Total.Float()}
		for category, amount := range roll.Subtotals {
			day.Subtotals[string(category)] = amount.Float()
		}
		section.Daily = append(section.Daily, day)
	}
	for _, slice := range v.Breakdown {
		section.Breakdown = append(section.Breakdown, CategoryCost{Category: string(slice.Category), Amount: slice.Amount.Float()})
	}
	return section
}

// Write encodes doc to w.
func Write(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json export: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml export: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// ContentType returns the MIME type for format.
func ContentType(format Format) string {
	if format == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}
