package rules

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
)

// EventKind classifies an observed platform event.
type EventKind string

const (
	KindEngagementDrop       EventKind = "engagement_drop"
	KindNewComment           EventKind = "new_comment"
	KindNewMessage           EventKind = "new_message"
	KindCompetitorPost       EventKind = "competitor_post"
	KindTrendingHashtag      EventKind = "trending_hashtag"
	KindPerformanceThreshold EventKind = "performance_threshold"
	KindCrisisDetected       EventKind = "crisis_detected"
	KindHighEngagement       EventKind = "high_engagement"
	KindApprovalNeeded       EventKind = "approval_needed"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	KindEngagementDrop,
	KindNewComment,
	KindNewMessage,
	KindCompetitorPost,
	KindTrendingHashtag,
	KindPerformanceThreshold,
	KindCrisisDetected,
	KindHighEngagement,
	KindApprovalNeeded,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return slices.Contains(EventKinds, k)
}

// Direction is how a numeric field is compared against its threshold.
type Direction string

const (
	// DirectionAuto picks the direction from the event kind.
	DirectionAuto Direction = ""
	// DirectionAbove matches values at or above the threshold.
	DirectionAbove Direction = "above"
	// DirectionBelow matches values strictly below the threshold.
	DirectionBelow Direction = "below"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionAuto, DirectionAbove, DirectionBelow:
		return true
	}
	return false
}

// defaultDirection is below for the kinds that signal a drop.
func (k EventKind) defaultDirection() Direction {
	switch k {
	case KindEngagementDrop, KindPerformanceThreshold:
		return DirectionBelow
	default:
		return DirectionAbove
	}
}

// Outcome records what a tick did with an event.
type Outcome string

const (
	OutcomeFired      Outcome = "fired"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeUnmatched  Outcome = "unmatched"
)

// Event is an observed platform signal. Only the processing fields change
// after submission.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Channel   string         `json:"channel"`
	TenantID  string         `json:"tenant_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity,omitempty"`

	Processed   bool      `json:"processed"`
	ProcessedAt time.Time `json:"processed_at,omitzero"`
	Outcome     Outcome   `json:"outcome,omitempty"`
	RuleID      string    `json:"rule_id,omitempty"`
	TaskIDs     []string  `json:"task_ids,omitempty"`
}

// DedupKey identifies events that share a cooldown.
func (e Event) DedupKey() string {
	return string(e.Kind) + ":" + e.Channel
}

func (e Event) clone() Event {
	e.Data = maps.Clone(e.Data)
	e.TaskIDs = slices.Clone(e.TaskIDs)
	return e
}

// Conditions must all hold for a rule to match. Zero values disable a check.
type Conditions struct {
	// Channels is an allow-list; empty allows every channel.
	Channels []string `json:"channels,omitempty"`
	// Window is the maximum event age.
	Window time.Duration `json:"window,omitempty"`
	// Thresholds maps a Data field to the value it is compared against.
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	Direction  Direction          `json:"direction,omitempty"`
}

// Action is one task a matching rule submits.
type Action struct {
	WorkerType string         `json:"worker_type"`
	Name       string         `json:"name"`
	Priority   task.Priority  `json:"priority"`
	Params     map[string]any `json:"params,omitempty"`
}

// Rule maps an event kind and conditions to actions.
type Rule struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Kind       EventKind     `json:"kind"`
	Conditions Conditions    `json:"conditions"`
	Actions    []Action      `json:"actions"`
	Enabled    bool          `json:"enabled"`
	Cooldown   time.Duration `json:"cooldown"`

	LastFired time.Time `json:"last_fired,omitzero"`
	FireCount int       `json:"fire_count"`
}

func (r Rule) clone() Rule {
	r.Conditions.Channels = slices.Clone(r.Conditions.Channels)
	r.Conditions.Thresholds = maps.Clone(r.Conditions.Thresholds)
	actions := make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		a.Params = maps.Clone(a.Params)
		actions[i] = a
	}
	r.Actions = actions
	return r
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %s (%s, %d actions)", r.ID, r.Kind, len(r.Actions))
}
