// Package costsink writes daily cost rollups to InfluxDB v2 so spend can be
// charted next to other time series.
package costsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"aiwatch/internal/config"
	"aiwatch/internal/costs"
	"aiwatch/internal/logging"
)

// Measurement is the InfluxDB measurement every rollup point is written to.
const Measurement = "ai_cost"

// PointWriter is the subset of api.WriteAPIBlocking the sink uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes rollups as points.
type Sink struct {
	writer PointWriter
	client influxdb2.Client
	logger *slog.Logger
}

// New connects to the configured InfluxDB. It returns nil when the sink is
// disabled.
func New(cfg config.Influx, logger *slog.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("costsink: url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	sink := NewWithWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
	sink.client = client
	sink.logger.Info("cost sink enabled",
		logging.String("influx_url", cfg.URL),
		logging.String("influx_org", cfg.Org),
		logging.String("influx_bucket", cfg.Bucket),
	)
	return sink, nil
}

// NewWithWriter builds a sink around an existing writer.
func NewWithWriter(writer PointWriter, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sink{writer: writer, logger: logger.With(logging.String("component", "costsink"))}
}

// Ready reports whether the InfluxDB server answers its health endpoint.
func (s *Sink) Ready(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("influx health: status %s", health.Status)
	}
	return nil
}

// WriteRollups writes one point per rollup, stamped at the day's midnight
// UTC. Rewriting a day overwrites its point.
func (s *Sink) WriteRollups(ctx context.Context, ownerID string, rollups []costs.Rollup) error {
	if s == nil || len(rollups) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(rollups))
	for _, roll := range rollups {
		if roll.Date.Time().IsZero() {
			continue
		}
		points = append(points, Point(ownerID, roll))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d cost points: %w", len(points), err)
	}
	s.logger.Debug("cost rollups written", logging.Int("points", len(points)))
	return nil
}

// Point converts one rollup. Fields are the category subtotals and total in
// currency units.
func Point(ownerID string, roll costs.Rollup) *write.Point {
	categories := make([]string, 0, len(roll.Subtotals))
	for category := range roll.Subtotals {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)

	fields := make(map[string]interface{}, len(categories)+1)
	for _, category := range categories {
		fields[category] = roll.Subtotals[costs.Category(category)].Float()
	}
	fields["total"] = roll.Total.Float()
	return influxdb2.NewPoint(Measurement, map[string]string{"owner": ownerID}, fields, roll.Date.Time())
}

// Close releases the client.
func (s *Sink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
