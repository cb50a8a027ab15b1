package forms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEditing    Phase = "editing"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
)

// Receipt is what the backend returns for a created record.
type Receipt struct {
	ID string
}

// Backend is the REST API the backend-target forms talk to.
type Backend interface {
	Create(ctx context.Context, endpoint string, payload map[string]any) (Receipt, error)
	Exists(ctx context.Context, endpoint, param, value string) (bool, error)
	Options(ctx context.Context, endpoint string) ([]string, error)
}

// Notifier posts a formatted text message to a chat webhook.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Attempt describes one finished submit call, for auditing.
type Attempt struct {
	SessionID string
	FormID    string
	Outcome   Outcome
	Message   string
	ServerID  string
	Payload   map[string]any
	Err       error
	Duration  time.Duration
}

type Deps struct {
	Backend  Backend
	Notifier Notifier
	// Hook, when set, is called after every submit attempt.
	Hook func(context.Context, Attempt)
}

type SubmissionResult struct {
	Success  bool              `json:"success"`
	Outcome  Outcome           `json:"outcome"`
	Message  string            `json:"message"`
	ServerID string            `json:"serverId,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// Controller owns the state of one form instance.
type Controller struct {
	id     string
	schema *Schema
	deps   Deps
	now    func() time.Time

	mu         sync.Mutex
	phase      Phase
	submitting bool
	values     Values
	defaults   Values
	errors     map[string]string
	result     *SubmissionResult
	locked     map[string]bool
	options    map[string][]Option
	lastActive time.Time
}

// NewController creates a controller in the idle phase. Hidden fields take
// the first non-empty prefill entry among their query params, but only if
// the value passes the field's rules.
func NewController(schema *Schema, deps Deps, prefill map[string]string) *Controller {
	c := &Controller{
		id:      uuid.NewString(),
		schema:  schema,
		deps:    deps,
		now:     time.Now,
		phase:   PhaseIdle,
		errors:  make(map[string]string),
		locked:  make(map[string]bool),
		options: make(map[string][]Option),
	}
	values := defaultValues(schema)
	for _, f := range schema.Fields {
		if f.Kind != KindHidden {
			continue
		}
		for _, p := range f.QueryParams {
			v := strings.TrimSpace(prefill[p])
			if v == "" {
				continue
			}
			if hiddenValueAllowed(f, v) {
				values[f.Name] = v
			}
			break
		}
	}
	c.defaults = values
	c.values = values.clone()
	c.applyDependencies()
	c.lastActive = c.now()
	return c
}

func (c *Controller) ID() string      { return c.id }
func (c *Controller) Schema() *Schema { return c.schema }

func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Submitting reports whether a submission is in flight.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Set replaces the value of one field.
func (c *Controller) Set(name string, raw any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := c.editable(name)
	if err != nil {
		return err
	}
	v, err := coerce(f, c.optionsFor(f), raw)
	if err != nil {
		return &FieldError{Field: name, Err: err}
	}
	c.commit(f, v)
	return nil
}

// Toggle flips a checkbox, or adds/removes option from a multi-select.
func (c *Controller) Toggle(name, option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := c.editable(name)
	if err != nil {
		return err
	}
	v, err := toggled(f, c.optionsFor(f), c.values[name], option)
	if err != nil {
		return &FieldError{Field: name, Err: err}
	}
	c.commit(f, v)
	return nil
}

func (c *Controller) editable(name string) (*Field, error) {
	if c.submitting {
		return nil, ErrSubmitting
	}
	f := c.schema.Field(name)
	if f == nil {
		return nil, &FieldError{Field: name, Err: ErrUnknownField}
	}
	if f.Kind == KindHidden {
		return nil, &FieldError{Field: name, Err: ErrReadOnlyField}
	}
	if c.locked[name] {
		return nil, &FieldError{Field: name, Err: ErrFieldLocked}
	}
	return f, nil
}

// commit stores v, clears only that field's error and re-applies
// dependency rules. Caller holds mu.
func (c *Controller) commit(f *Field, v any) {
	c.values[f.Name] = v
	delete(c.errors, f.Name)
	c.applyDependencies()
	c.phase = PhaseEditing
	c.lastActive = c.now()
}

// applyDependencies forces every matching target to its sentinel and
// restores targets whose trigger no longer matches. Caller holds mu.
func (c *Controller) applyDependencies() {
	forced := make(map[string]string)
	for _, d := range c.schema.Dependencies {
		if d.matches(c.values.Text(d.When)) {
			if _, already := forced[d.Target]; !already {
				forced[d.Target] = d.Value
			}
		}
	}
	for name := range c.locked {
		if _, still := forced[name]; !still {
			c.values[name] = c.defaults[name]
			delete(c.locked, name)
		}
	}
	for name, v := range forced {
		c.values[name] = v
		c.locked[name] = true
		delete(c.errors, name)
	}
}

// optionsFor returns nil for a dynamic list that is not loaded yet.
func (c *Controller) optionsFor(f *Field) []Option {
	if f.OptionsFrom != "" {
		return c.options[f.Name]
	}
	return f.Options
}

// Submit validates the form and, when it is valid, sends it. Only
// ErrSubmissionInFlight is returned as an error; every other outcome is
// reported in the result.
func (c *Controller) Submit(ctx context.Context) (SubmissionResult, error) {
	started := c.now()

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return SubmissionResult{}, ErrSubmissionInFlight
	}
	c.phase = PhaseValidating
	errs := validateValues(c.schema, c.values, c.locked, c.optionsFor)
	if len(errs) > 0 {
		c.errors = errs
		c.phase = PhaseEditing
		res := SubmissionResult{
			Outcome: OutcomeInvalid,
			Message: c.schema.Messages.Invalid,
			Details: copyErrors(errs),
		}
		c.result = &res
		c.lastActive = c.now()
		c.mu.Unlock()
		c.report(ctx, Attempt{Outcome: res.Outcome, Message: res.Message, Duration: c.now().Sub(started)})
		return res, nil
	}
	c.errors = make(map[string]string)
	c.submitting = true
	c.phase = PhaseSubmitting
	values := c.values.clone()
	options := make(map[string][]Option, len(c.options))
	for k, v := range c.options {
		options[k] = v
	}
	c.mu.Unlock()

	res, payload, sendErr := c.send(ctx, values, options)

	c.mu.Lock()
	c.submitting = false
	if res.Success {
		c.values = c.defaults.clone()
		c.locked = make(map[string]bool)
		c.applyDependencies()
		c.errors = make(map[string]string)
		c.phase = PhaseSuccess
	} else {
		for k, v := range res.Details {
			c.errors[k] = v
		}
		c.phase = PhaseEditing
	}
	c.result = &res
	c.lastActive = c.now()
	c.mu.Unlock()

	c.report(ctx, Attempt{
		Outcome:  res.Outcome,
		Message:  res.Message,
		ServerID: res.ServerID,
		Payload:  payload,
		Err:      sendErr,
		Duration: c.now().Sub(started),
	})
	return res, nil
}

func (c *Controller) report(ctx context.Context, a Attempt) {
	if c.deps.Hook == nil {
		return
	}
	a.SessionID = c.id
	a.FormID = c.schema.ID
	c.deps.Hook(ctx, a)
}

// send runs pre-checks and the final call without holding mu.
func (c *Controller) send(ctx context.Context, values Values, options map[string][]Option) (SubmissionResult, map[string]any, error) {
	s := c.schema
	lookup := func(f *Field) []Option {
		if f.OptionsFrom != "" {
			return options[f.Name]
		}
		return f.Options
	}

	switch s.Target.Kind {
	case TargetWebhook:
		entries := Entries(s, values)
		payload := make(map[string]any, len(entries))
		for _, e := range entries {
			payload[e.Key] = e.Value
		}
		if c.deps.Notifier == nil {
			err := errors.New("no notifier configured")
			return c.failure(err), payload, err
		}
		if err := c.deps.Notifier.Send(ctx, FormatMessage(s.Target.FormType, entries)); err != nil {
			return c.failure(err), payload, err
		}
		return SubmissionResult{Success: true, Outcome: OutcomeSuccess, Message: s.Messages.Success}, payload, nil

	default:
		payload := BuildPayload(s, values, lookup)
		if c.deps.Backend == nil {
			err := errors.New("no backend configured")
			return c.failure(err), payload, err
		}
		for _, pc := range s.PreChecks {
			exists, err := c.deps.Backend.Exists(ctx, pc.Endpoint, pc.Param, values.Text(pc.Field))
			if err != nil {
				err = fmt.Errorf("pre-check %s: %w", pc.Field, err)
				return c.failure(err), payload, err
			}
			if exists {
				return SubmissionResult{
					Outcome: OutcomeConflict,
					Message: pc.Message,
					Details: map[string]string{pc.Field: pc.Message},
				}, payload, nil
			}
		}
		receipt, err := c.deps.Backend.Create(ctx, s.Target.Endpoint, payload)
		if err != nil {
			return c.failure(err), payload, err
		}
		return SubmissionResult{
			Success:  true,
			Outcome:  OutcomeSuccess,
			Message:  strings.ReplaceAll(s.Messages.Success, "{id}", receipt.ID),
			ServerID: receipt.ID,
		}, payload, nil
	}
}

// failure maps a transport error onto a result. Rejections keep the
// server's message and field errors, renamed back from wire names.
func (c *Controller) failure(err error) SubmissionResult {
	var rej Rejection
	if errors.As(err, &rej) {
		msg := rej.UserMessage()
		if msg == "" {
			msg = c.schema.Messages.Failure
		}
		var details map[string]string
		if fe := rej.FieldErrors(); len(fe) > 0 {
			details = make(map[string]string, len(fe))
			for k, v := range fe {
				details[c.fieldForWire(k)] = v
			}
		}
		return SubmissionResult{Outcome: OutcomeRejected, Message: msg, Details: details}
	}
	return SubmissionResult{Outcome: OutcomeTransport, Message: c.schema.Messages.Failure}
}

func (c *Controller) fieldForWire(key string) string {
	for _, f := range c.schema.Fields {
		if f.wireName() == key {
			return f.Name
		}
	}
	return key
}

// Acknowledge returns a successful form to idle ("submit another response").
func (c *Controller) Acknowledge() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseSuccess {
		return false
	}
	c.phase = PhaseIdle
	c.result = nil
	c.lastActive = c.now()
	return true
}

// LoadOptions fetches every backend-sourced option list concurrently. If
// any load fails nothing is applied.
func (c *Controller) LoadOptions(ctx context.Context) error {
	var fields []*Field
	for _, f := range c.schema.Fields {
		if f.OptionsFrom != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	if c.deps.Backend == nil {
		return errors.New("no backend configured")
	}

	loaded := make([][]Option, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fields {
		i, f := i, f
		g.Go(func() error {
			values, err := c.deps.Backend.Options(gctx, f.OptionsFrom)
			if err != nil {
				return fmt.Errorf("load %s options: %w", f.Name, err)
			}
			opts := make([]Option, 0, len(values))
			for _, v := range values {
				opts = append(opts, Option{Value: v, Label: v})
			}
			loaded[i] = opts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range fields {
		c.options[f.Name] = loaded[i]
	}
	return nil
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	ID         string              `json:"id"`
	Form       string              `json:"form"`
	Phase      Phase               `json:"phase"`
	Submitting bool                `json:"submitting"`
	Values     Values              `json:"values"`
	Errors     map[string]string   `json:"errors"`
	Result     *SubmissionResult   `json:"result,omitempty"`
	Locked     []string            `json:"locked,omitempty"`
	Options    map[string][]Option `json:"options,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		ID:         c.id,
		Form:       c.schema.ID,
		Phase:      c.phase,
		Submitting: c.submitting,
		Values:     c.values.clone(),
		Errors:     copyErrors(c.errors),
	}
	if c.result != nil {
		r := *c.result
		r.Details = copyErrors(r.Details)
		snap.Result = &r
	}
	for name := range c.locked {
		snap.Locked = append(snap.Locked, name)
	}
	sort.Strings(snap.Locked)
	if len(c.options) > 0 {
		snap.Options = make(map[string][]Option, len(c.options))
		for k, v := range c.options {
			snap.Options[k] = append([]Option(nil), v...)
		}
	}
	return snap
}

func copyErrors(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
