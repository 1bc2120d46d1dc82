package threshold

import "testing"

func TestMetric_WorkerType(t *testing.T) {
	tests := []struct {
		metric Metric
		want   string
	}{
		{MetricEngagementRate, "engagement"},
		{MetricLikes, "engagement"},
		{MetricComments, "engagement"},
		{MetricShares, "engagement"},
		{MetricReach, "analytics"},
		{MetricImpressions, "analytics"},
		{MetricConversions, "analytics"},
		{MetricClicks, "analytics"},
		{MetricSentiment, "crisis"},
		{MetricFollowerCount, "content"},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			if got := string(tt.metric.WorkerType()); got != tt.want {
				t.Errorf("WorkerType() = %q, want %q", got, tt.want)
			}
		})
	}
	if len(Metrics()) != len(tests) {
		t.Errorf("Metrics() has %d entries, want %d", len(Metrics()), len(tests))
	}
	if Metric("mood").Valid() {
		t.Error("unknown metric reported valid")
	}
}

func TestComparison_Breached(t *testing.T) {
	tests := []struct {
		name     string
		cmp      Comparison
		mean     float64
		boundary float64
		want     bool
	}{
		{"above", ComparisonAbove, 5.1, 5, true},
		{"above equal", ComparisonAbove, 5, 5, false},
		{"below", ComparisonBelow, 0.01, 0.02, true},
		{"below equal", ComparisonBelow, 0.02, 0.02, false},
		{"equals exact", ComparisonEquals, 100, 100, true},
		{"equals rounding", ComparisonEquals, 0.1 + 0.2, 0.3, true},
		{"equals off", ComparisonEquals, 100.5, 100, false},
		{"unknown", Comparison("near"), 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmp.Breached(tt.mean, tt.boundary); got != tt.want {
				t.Errorf("Breached(%v, %v) = %v, want %v", tt.mean, tt.boundary, got, tt.want)
			}
		})
	}
}
