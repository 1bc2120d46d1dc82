package threshold

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// Metric names a tracked measurement.
type Metric string

const (
	MetricEngagementRate Metric = "engagement_rate"
	MetricLikes          Metric = "likes"
	MetricComments       Metric = "comments"
	MetricShares         Metric = "shares"
	MetricReach          Metric = "reach"
	MetricImpressions    Metric = "impressions"
	MetricConversions    Metric = "conversions"
	MetricClicks         Metric = "clicks"
	MetricSentiment      Metric = "sentiment"
	MetricFollowerCount  Metric = "follower_count"
)

var metricOwners = map[Metric]worker.Type{
	MetricEngagementRate: worker.TypeEngagement,
	MetricLikes:          worker.TypeEngagement,
	MetricComments:       worker.TypeEngagement,
	MetricShares:         worker.TypeEngagement,
	MetricReach:          worker.TypeAnalytics,
	MetricImpressions:    worker.TypeAnalytics,
	MetricConversions:    worker.TypeAnalytics,
	MetricClicks:         worker.TypeAnalytics,
	MetricSentiment:      worker.TypeCrisis,
	MetricFollowerCount:  worker.TypeContent,
}

// Metrics returns every known metric, sorted.
func Metrics() []Metric {
	return slices.Sorted(maps.Keys(metricOwners))
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	_, ok := metricOwners[m]
	return ok
}

// WorkerType is the worker type that handles a breach of m.
func (m Metric) WorkerType() worker.Type {
	return metricOwners[m]
}

// Comparison is how the rolling mean is tested against the boundary.
type Comparison string

const (
	ComparisonAbove  Comparison = "above"
	ComparisonBelow  Comparison = "below"
	ComparisonEquals Comparison = "equals"
)

// equalsTolerance is the relative tolerance used by ComparisonEquals.
const equalsTolerance = 1e-9

// Valid reports whether c is a known comparison.
func (c Comparison) Valid() bool {
	switch c {
	case ComparisonAbove, ComparisonBelow, ComparisonEquals:
		return true
	}
	return false
}

// Breached reports whether mean violates boundary under c.
func (c Comparison) Breached(mean, boundary float64) bool {
	switch c {
	case ComparisonAbove:
		return mean > boundary
	case ComparisonBelow:
		return mean < boundary
	case ComparisonEquals:
		return math.Abs(mean-boundary) <= equalsTolerance*math.Max(1, math.Abs(boundary))
	default:
		return false
	}
}

// Threshold is a boundary on the rolling mean of one metric on one channel.
type Threshold struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Metric     Metric     `json:"metric"`
	Channel    string     `json:"channel"`
	Value      float64    `json:"value"`
	Comparison Comparison `json:"comparison"`
	// Severity also sets the corrective task priority.
	Severity task.Priority `json:"severity"`
	Enabled  bool          `json:"enabled"`
	TenantID string        `json:"tenant_id"`

	LastBreach time.Time `json:"last_breach,omitzero"`
	LastTaskID string    `json:"last_task_id,omitempty"`
}

// DataPoint is one observed metric value.
type DataPoint struct {
	Channel   string         `json:"channel"`
	Metric    Metric         `json:"metric"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Breach is the result of one threshold failing an evaluation.
type Breach struct {
	Threshold Threshold `json:"threshold"`
	Mean      float64   `json:"mean"`
	Samples   int       `json:"samples"`
	At        time.Time `json:"at"`
}
