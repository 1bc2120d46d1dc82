package scheduler

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

const defaultTickInterval = time.Minute

// Submitter accepts tasks. *coordinator.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) (string, error)
}

// Template is a task fired on a recurrence.
type Template struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Recurrence Recurrence        `json:"recurrence"`
	WorkerType string            `json:"worker_type"`
	TenantID   string            `json:"tenant_id"`
	Payload    map[string]any    `json:"payload,omitempty"`
	Priority   task.Priority     `json:"priority"`
	Labels     map[string]string `json:"labels,omitempty"`
	Enabled    bool              `json:"enabled"`
	LastRun    time.Time         `json:"last_run,omitzero"`
	NextRun    time.Time         `json:"next_run,omitzero"`
	LastTaskID string            `json:"last_task_id,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
}

func (t Template) clone() Template {
	t.Payload = maps.Clone(t.Payload)
	t.Labels = maps.Clone(t.Labels)
	return t
}

// Scheduler owns the templates and the tick loop.
type Scheduler struct {
	submitter    Submitter
	events       *event.Bus
	logger       *logging.Logger
	loc          *time.Location
	tickInterval time.Duration
	now          func() time.Time

	mu        sync.Mutex
	templates map[string]*Template
	order     []string // insertion order
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEventBus publishes a ScheduleFiredEvent for every fire.
func WithEventBus(b *event.Bus) Option {
	return func(s *Scheduler) { s.events = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithLocation sets the time zone recurrences are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithTickInterval sets the Run loop cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler that submits to sub.
func New(sub Submitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		submitter:    sub,
		logger:       logging.NopLogger(),
		loc:          time.Local,
		tickInterval: defaultTickInterval,
		now:          time.Now,
		templates:    make(map[string]*Template),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tickInterval <= 0 {
		s.tickInterval = defaultTickInterval
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	s.logger = s.logger.WithComponent("scheduler")
	return s
}

// AddTemplate validates tpl, enables it, and computes its first NextRun.
func (s *Scheduler) AddTemplate(tpl Template) (string, error) {
	if tpl.Name == "" {
		return "", errors.NewValidationError("template name is required").WithField("name")
	}
	if tpl.TenantID == "" {
		return "", errors.NewValidationError("tenant id is required").WithField("tenant_id")
	}
	if _, err := worker.ParseType(tpl.WorkerType); err != nil {
		return "", errors.NewValidationError("unknown worker type").
			WithField("worker_type").WithValue(tpl.WorkerType).WithCause(errors.ErrUnknownWorkerType)
	}
	tpl.Priority = tpl.Priority.OrDefault()
	if !tpl.Priority.Valid() {
		return "", errors.NewValidationError("invalid priority").WithField("priority").WithValue(int(tpl.Priority))
	}
	if err := tpl.Recurrence.Validate(); err != nil {
		return "", err
	}

	tpl = tpl.clone()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.Enabled = true
	tpl.LastRun = time.Time{}
	tpl.LastTaskID = ""
	tpl.LastError = ""
	tpl.NextRun = tpl.Recurrence.Next(s.now(), s.loc)

	s.mu.Lock()
	if _, exists := s.templates[tpl.ID]; exists {
		s.mu.Unlock()
		return "", errors.NewAlreadyExistsError("template", tpl.ID)
	}
	s.templates[tpl.ID] = &tpl
	s.order = append(s.order, tpl.ID)
	s.mu.Unlock()

	s.logger.Info("template added",
		"template_id", tpl.ID,
		"name", tpl.Name,
		"recurrence", tpl.Recurrence.String(),
		"next_run", tpl.NextRun)
	return tpl.ID, nil
}

// Enable turns a template on and recomputes NextRun from now.
func (s *Scheduler) Enable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return notFound(id)
	}
	tpl.Enabled = true
	tpl.NextRun = tpl.Recurrence.Next(s.now(), s.loc)
	return nil
}

// Disable turns a template off and clears NextRun.
func (s *Scheduler) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return notFound(id)
	}
	tpl.Enabled = false
	tpl.NextRun = time.Time{}
	return nil
}

// Delete removes a template.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return notFound(id)
	}
	delete(s.templates, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	return nil
}

// Get returns a copy of a template.
func (s *Scheduler) Get(id string) (Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return Template{}, false
	}
	return tpl.clone(), true
}

// List returns every template in insertion order.
func (s *Scheduler) List() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Template, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.templates[id].clone())
	}
	return out
}

// Due returns the enabled templates whose NextRun is at or before now.
func (s *Scheduler) Due(now time.Time) []Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Template
	for _, id := range s.order {
		tpl := s.templates[id]
		if tpl.Enabled && !tpl.NextRun.IsZero() && !tpl.NextRun.After(now) {
			out = append(out, tpl.clone())
		}
	}
	return out
}

// Tick fires every template due at now and returns how many fired. Each
// template is claimed under the lock right before it is submitted, so one
// disabled or deleted by an earlier submission in the same tick does not
// fire. A template whose submission fails still advances to its next
// occurrence.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	fired := 0
	for _, id := range s.dueIDs(now) {
		tpl, next, ok := s.claim(id, now)
		if !ok {
			continue
		}
		fired++
		taskID, err := s.submit(ctx, tpl)

		s.mu.Lock()
		if cur, ok := s.templates[id]; ok {
			cur.LastTaskID = taskID
			cur.LastError = errString(err)
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("scheduled submission failed",
				"template_id", tpl.ID,
				"name", tpl.Name,
				"worker_type", tpl.WorkerType,
				"tenant_id", tpl.TenantID,
				"next_run", next,
				"error", err)
		} else {
			s.logger.Info("template fired",
				"template_id", tpl.ID,
				"task_id", taskID,
				"next_run", next)
		}
		if s.events != nil {
			s.events.Publish(event.NewScheduleFiredEvent(tpl.ID, taskID, errString(err), next))
		}
	}
	return fired
}

func (s *Scheduler) dueIDs(now time.Time) []string {
	due := s.Due(now)
	ids := make([]string, len(due))
	for i, tpl := range due {
		ids[i] = tpl.ID
	}
	return ids
}

// claim rechecks that template id is still enabled and due, then moves its
// NextRun past now and returns a snapshot to submit.
func (s *Scheduler) claim(id string, now time.Time) (Template, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.templates[id]
	if !ok || !cur.Enabled || cur.NextRun.IsZero() || cur.NextRun.After(now) {
		return Template{}, time.Time{}, false
	}
	cur.LastRun = now
	cur.NextRun = cur.Recurrence.Next(now, s.loc)
	return cur.clone(), cur.NextRun, true
}

// RunNow submits a template immediately without moving its NextRun.
func (s *Scheduler) RunNow(ctx context.Context, id string) (string, error) {
	tpl, ok := s.Get(id)
	if !ok {
		return "", notFound(id)
	}
	taskID, err := s.submit(ctx, tpl)

	s.mu.Lock()
	if cur, ok := s.templates[id]; ok {
		cur.LastRun = s.now()
		cur.LastTaskID = taskID
		cur.LastError = errString(err)
	}
	s.mu.Unlock()

	if err != nil {
		return "", err
	}
	s.logger.Info("template run manually", "template_id", id, "task_id", taskID)
	return taskID, nil
}

// Run ticks every tick interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "tick_interval", s.tickInterval.String(), "location", s.loc.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	s.Tick(ctx, s.now())
}

func (s *Scheduler) submit(ctx context.Context, tpl Template) (string, error) {
	labels := maps.Clone(tpl.Labels)
	if labels == nil {
		labels = make(map[string]string, 1)
	}
	labels["schedule.template_id"] = tpl.ID

	return s.submitter.Submit(ctx, task.Task{
		WorkerType: tpl.WorkerType,
		TenantID:   tpl.TenantID,
		Payload:    maps.Clone(tpl.Payload),
		Priority:   tpl.Priority,
		Origin:     task.OriginScheduled,
		Labels:     labels,
	})
}

func notFound(id string) error {
	return errors.NewNotFoundError("template", id).WithCause(errors.ErrTemplateNotFound)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
