package rules

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

const (
	defaultTickInterval = 30 * time.Second
	defaultHistoryLimit = 500
)

// Labels set on tasks submitted by a rule.
const (
	LabelRuleID  = "rules.rule_id"
	LabelEventID = "rules.event_id"
)

// Submitter accepts tasks. *coordinator.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) (string, error)
}

// Source produces events from outside the process. It is polled at the
// start of every tick.
type Source interface {
	Poll(ctx context.Context) ([]Event, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Event, error)

// Poll calls f.
func (f SourceFunc) Poll(ctx context.Context) ([]Event, error) { return f(ctx) }

type cooldownKey struct {
	ruleID string
	dedup  string
}

// Engine matches events against rules and submits the resulting tasks.
type Engine struct {
	submitter    Submitter
	events       *event.Bus
	logger       *logging.Logger
	source       Source
	tickInterval time.Duration
	historyLimit int
	now          func() time.Time

	mu        sync.Mutex
	rules     map[string]*Rule
	order     []string
	pending   []Event
	history   []Event
	lastFired map[cooldownKey]time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes RuleFired and RuleSuppressed events.
func WithEventBus(b *event.Bus) Option {
	return func(e *Engine) { e.events = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSource polls src at the start of every tick.
func WithSource(src Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithTickInterval sets the Run loop cadence.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithHistoryLimit bounds how many processed events Events returns.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine that submits to sub.
func New(sub Submitter, opts ...Option) *Engine {
	e := &Engine{
		submitter:    sub,
		logger:       logging.NopLogger(),
		tickInterval: defaultTickInterval,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
		rules:        make(map[string]*Rule),
		lastFired:    make(map[cooldownKey]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tickInterval <= 0 {
		e.tickInterval = defaultTickInterval
	}
	if e.historyLimit <= 0 {
		e.historyLimit = defaultHistoryLimit
	}
	e.logger = e.logger.WithComponent("rules")
	return e
}

// AddRule validates r, enables it, and appends it to the evaluation order.
func (e *Engine) AddRule(r Rule) (string, error) {
	r = r.clone()
	for i := range r.Actions {
		r.Actions[i].Priority = r.Actions[i].Priority.OrDefault()
	}
	if err := validateRule(r); err != nil {
		return "", err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Enabled = true
	r.LastFired = time.Time{}
	r.FireCount = 0

	e.mu.Lock()
	if _, exists := e.rules[r.ID]; exists {
		e.mu.Unlock()
		return "", errors.NewAlreadyExistsError("rule", r.ID)
	}
	e.rules[r.ID] = &r
	e.order = append(e.order, r.ID)
	e.mu.Unlock()

	e.logger.Info("rule added",
		"rule_id", r.ID,
		"name", r.Name,
		"kind", string(r.Kind),
		"actions", len(r.Actions),
		"cooldown", r.Cooldown.String())
	return r.ID, nil
}

func validateRule(r Rule) error {
	if !r.Kind.Valid() {
		return errors.NewValidationError("unknown event kind").WithField("kind").WithValue(string(r.Kind))
	}
	if r.Cooldown < 0 {
		return errors.NewValidationError("cooldown must not be negative").WithField("cooldown")
	}
	if !r.Conditions.Direction.Valid() {
		return errors.NewValidationError("unknown direction").
			WithField("conditions.direction").WithValue(string(r.Conditions.Direction))
	}
	if r.Conditions.Window < 0 {
		return errors.NewValidationError("window must not be negative").WithField("conditions.window")
	}
	if len(r.Actions) == 0 {
		return errors.NewValidationError("at least one action is required").WithField("actions")
	}
	for i, a := range r.Actions {
		if _, err := worker.ParseType(a.WorkerType); err != nil {
			return errors.NewValidationError("unknown worker type").
				WithField(fmt.Sprintf("actions[%d].worker_type", i)).
				WithValue(a.WorkerType).
				WithCause(errors.ErrUnknownWorkerType)
		}
		if !a.Priority.Valid() {
			return errors.NewValidationError("invalid priority").
				WithField(fmt.Sprintf("actions[%d].priority", i)).
				WithValue(int(a.Priority))
		}
	}
	return nil
}

// EnableRule turns a rule on.
func (e *Engine) EnableRule(id string) error {
	return e.setEnabled(id, true)
}

// DisableRule turns a rule off. Its cooldown state is kept.
func (e *Engine) DisableRule(id string) error {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[id]
	if !ok {
		return ruleNotFound(id)
	}
	r.Enabled = enabled
	return nil
}

// DeleteRule removes a rule and forgets its cooldowns.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[id]; !ok {
		return ruleNotFound(id)
	}
	delete(e.rules, id)
	e.order = slices.DeleteFunc(e.order, func(x string) bool { return x == id })
	maps.DeleteFunc(e.lastFired, func(k cooldownKey, _ time.Time) bool { return k.ruleID == id })
	return nil
}

// Rule returns a copy of one rule.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return r.clone(), true
}

// Rules returns every rule in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id].clone())
	}
	return out
}

// SubmitEvent queues evt for the next tick.
func (e *Engine) SubmitEvent(evt Event) (string, error) {
	if !evt.Kind.Valid() {
		return "", errors.NewValidationError("unknown event kind").WithField("kind").WithValue(string(evt.Kind))
	}
	if evt.TenantID == "" {
		return "", errors.NewValidationError("tenant id is required").WithField("tenant_id")
	}

	evt = evt.clone()
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now()
	}
	evt.Processed = false
	evt.ProcessedAt = time.Time{}
	evt.Outcome = ""
	evt.RuleID = ""
	evt.TaskIDs = nil

	e.mu.Lock()
	e.pending = append(e.pending, evt)
	e.mu.Unlock()

	e.logger.Debug("event queued",
		"event_id", evt.ID,
		"kind", string(evt.Kind),
		"channel", evt.Channel,
		"tenant_id", evt.TenantID)
	return evt.ID, nil
}

// Pending returns the number of events waiting for a tick.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Events returns up to limit processed events, newest last. A limit of zero
// or less returns all retained events.
func (e *Engine) Events(limit int) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := 0
	if limit > 0 && len(e.history) > limit {
		start = len(e.history) - limit
	}
	out := make([]Event, 0, len(e.history)-start)
	for _, evt := range e.history[start:] {
		out = append(out, evt.clone())
	}
	return out
}

// Tick polls the source and processes every queued event at now. It returns
// the number of events that fired a rule.
func (e *Engine) Tick(ctx context.Context, now time.Time) int {
	e.poll(ctx)

	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	fired := 0
	for i, evt := range batch {
		if ctx.Err() != nil {
			// requeue what we did not reach
			e.mu.Lock()
			e.pending = append(slices.Clone(batch[i:]), e.pending...)
			e.mu.Unlock()
			break
		}
		if e.process(ctx, evt, now) == OutcomeFired {
			fired++
		}
	}
	return fired
}

func (e *Engine) poll(ctx context.Context) {
	if e.source == nil {
		return
	}
	evts, err := e.source.Poll(ctx)
	if err != nil {
		e.logger.Warn("event source poll failed", "error", err)
		return
	}
	for _, evt := range evts {
		if _, err := e.SubmitEvent(evt); err != nil {
			e.logger.Warn("dropping invalid polled event", "event_id", evt.ID, "kind", string(evt.Kind), "error", err)
		}
	}
}

func (e *Engine) process(ctx context.Context, evt Event, now time.Time) Outcome {
	rule, matched := e.firstMatch(evt, now)
	if !matched {
		e.finish(evt, now, OutcomeUnmatched, "", nil)
		return OutcomeUnmatched
	}

	key := cooldownKey{ruleID: rule.ID, dedup: evt.DedupKey()}

	e.mu.Lock()
	last, seen := e.lastFired[key]
	if seen && now.Sub(last) < rule.Cooldown {
		e.mu.Unlock()
		e.logger.Info("rule suppressed by cooldown",
			"rule_id", rule.ID,
			"event_id", evt.ID,
			"dedup_key", key.dedup,
			"last_fired", last,
			"cooldown", rule.Cooldown.String())
		e.finish(evt, now, OutcomeSuppressed, rule.ID, nil)
		e.publish(event.NewRuleSuppressedEvent(rule.ID, evt.ID, key.dedup))
		return OutcomeSuppressed
	}
	e.lastFired[key] = now
	if r, ok := e.rules[rule.ID]; ok {
		r.LastFired = now
		r.FireCount++
	}
	e.mu.Unlock()

	var taskIDs []string
	for _, action := range rule.Actions {
		id, err := e.submitter.Submit(ctx, actionTask(rule, action, evt))
		if err != nil {
			e.logger.Error("rule action submission failed",
				"rule_id", rule.ID,
				"event_id", evt.ID,
				"action", action.Name,
				"worker_type", action.WorkerType,
				"tenant_id", evt.TenantID,
				"error", err)
			continue
		}
		taskIDs = append(taskIDs, id)
	}

	e.logger.Info("rule fired",
		"rule_id", rule.ID,
		"event_id", evt.ID,
		"dedup_key", key.dedup,
		"tasks", len(taskIDs))
	e.finish(evt, now, OutcomeFired, rule.ID, taskIDs)
	e.publish(event.NewRuleFiredEvent(rule.ID, evt.ID, taskIDs))
	return OutcomeFired
}

// firstMatch returns the first enabled rule in insertion order matching evt.
func (e *Engine) firstMatch(evt Event, now time.Time) (Rule, bool) {
	e.mu.Lock()
	candidates := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		r := e.rules[id]
		if r.Enabled && r.Kind == evt.Kind {
			candidates = append(candidates, r.clone())
		}
	}
	e.mu.Unlock()

	for _, r := range candidates {
		if e.matches(r, evt, now) {
			return r, true
		}
	}
	return Rule{}, false
}

func (e *Engine) matches(r Rule, evt Event, now time.Time) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule evaluation panicked",
				"rule_id", r.ID,
				"event_id", evt.ID,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			ok = false
		}
	}()

	matched, err := r.Conditions.Match(evt, now)
	if err != nil {
		e.logger.Warn("rule condition not evaluable",
			"rule_id", r.ID,
			"event_id", evt.ID,
			"error", err)
		return false
	}
	return matched
}

func (e *Engine) finish(evt Event, now time.Time, outcome Outcome, ruleID string, taskIDs []string) {
	evt.Processed = true
	evt.ProcessedAt = now
	evt.Outcome = outcome
	evt.RuleID = ruleID
	evt.TaskIDs = taskIDs

	e.mu.Lock()
	e.history = append(e.history, evt)
	if over := len(e.history) - e.historyLimit; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}
	e.mu.Unlock()
}

func (e *Engine) publish(ev event.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// actionTask builds the task for one action. The payload is the event data
// overlaid with the action params and the event metadata.
func actionTask(r Rule, a Action, evt Event) task.Task {
	payload := make(map[string]any, len(evt.Data)+len(a.Params)+2)
	maps.Copy(payload, evt.Data)
	maps.Copy(payload, a.Params)
	payload["action"] = a.Name
	payload["event"] = map[string]any{
		"id":        evt.ID,
		"kind":      string(evt.Kind),
		"channel":   evt.Channel,
		"severity":  evt.Severity,
		"timestamp": evt.Timestamp,
	}

	return task.Task{
		WorkerType: a.WorkerType,
		TenantID:   evt.TenantID,
		Payload:    payload,
		Priority:   a.Priority,
		Origin:     task.OriginEvent,
		Labels: map[string]string{
			LabelRuleID:      r.ID,
			LabelEventID:     evt.ID,
			task.LabelAction: a.Name,
		},
	}
}

// Run ticks every tick interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	e.logger.Info("rule engine started", "tick_interval", e.tickInterval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.safeTick(ctx)
		}
	}
}

func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	e.Tick(ctx, e.now())
}

func ruleNotFound(id string) error {
	return errors.NewNotFoundError("rule", id).WithCause(errors.ErrRuleNotFound)
}
