package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/events"
	"github.com/fyrsmithlabs/govern/internal/metrics"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/fyrsmithlabs/govern/internal/store"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/govern/internal/governance"

// Engine owns the action state machine and the learning loop of rules.
// All methods are safe for concurrent use.
type Engine struct {
	store    store.Store
	cfg      Config
	logger   *zap.Logger
	cache    *rules.CachedSource
	matcher  *rules.Matcher
	recorder *OutcomeRecorder
	events   events.Broadcaster
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBroadcaster sets where transition events are published.
func WithBroadcaster(b events.Broadcaster) Option {
	return func(e *Engine) {
		if b != nil {
			e.events = b
		}
	}
}

// WithMetrics sets the Prometheus collectors. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine over st.
func NewEngine(st store.Store, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid governance config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := rules.NewCachedSource(st, cfg.RuleCacheTTL)
	e := &Engine{
		store:    st,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		matcher:  rules.NewMatcher(cache, logger.Named("matcher")),
		recorder: NewOutcomeRecorder(logger),
		events:   events.Nop{},
		tracer:   otel.Tracer(InstrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine policy.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// SubmitRequest is an agent's proposal.
type SubmitRequest struct {
	CompanyID      string
	ActionType     action.Type
	Agent          string
	Title          string
	Description    string
	DraftContent   string
	Reasoning      string
	EntitySnapshot map[string]any
	// ExpiresAt nil falls back to Config.DefaultExpiry.
	ExpiresAt *time.Time
}

func (r SubmitRequest) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(r.CompanyID) == "":
		return invalid(action.ErrEmptyCompanyID)
	case strings.TrimSpace(r.Agent) == "":
		return invalid(action.ErrEmptyAgent)
	case strings.TrimSpace(r.Title) == "":
		return invalid(action.ErrEmptyTitle)
	case !r.ActionType.Valid():
		return invalid(fmt.Errorf("%w: %q", action.ErrInvalidActionType, r.ActionType))
	case r.ExpiresAt != nil && !r.ExpiresAt.After(now):
		return ErrExpiryInPast
	}
	return nil
}

// Submit records a proposal, resolves its risk and either auto-executes it or
// leaves it pending for review. The returned proposal is pending or
// auto_executed.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (_ *action.Proposal, err error) {
	ctx, span := e.tracer.Start(ctx, "governance.submit", trace.WithAttributes(
		attribute.String("company.id", req.CompanyID),
		attribute.String("action.type", string(req.ActionType)),
		attribute.String("agent", req.Agent),
	))
	defer func() { endSpan(span, err) }()

	now := e.clock()
	if err := req.validate(now); err != nil {
		return nil, err
	}

	scope := rules.Scope{CompanyID: req.CompanyID, ActionType: req.ActionType, Agent: req.Agent}
	res, err := e.matcher.Resolve(ctx, scope, req.EntitySnapshot)
	if err != nil {
		return nil, fmt.Errorf("resolving risk: %w", err)
	}

	p := &action.Proposal{
		ID:             uuid.NewString(),
		CompanyID:      req.CompanyID,
		ActionType:     req.ActionType,
		Agent:          req.Agent,
		Title:          req.Title,
		Description:    req.Description,
		DraftContent:   req.DraftContent,
		Reasoning:      req.Reasoning,
		EntitySnapshot: req.EntitySnapshot,
		RiskLevel:      res.Risk,
		Status:         action.StatusPending,
		CreatedAt:      now,
	}
	if res.Rule != nil {
		p.RuleID = res.Rule.ID
	}
	switch {
	case req.ExpiresAt != nil:
		at := req.ExpiresAt.UTC()
		p.ExpiresAt = &at
	case e.cfg.DefaultExpiry > 0:
		at := now.Add(e.cfg.DefaultExpiry)
		p.ExpiresAt = &at
	}

	result := p
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertAction(ctx, p); err != nil {
			return fmt.Errorf("inserting proposal: %w", err)
		}
		if err := tx.AppendAudit(ctx, audit.ForAction(audit.EventSubmitted, req.Agent, p, now)); err != nil {
			return fmt.Errorf("auditing submission: %w", err)
		}
		if p.RuleID == "" {
			return nil
		}

		// The cached rule may be stale; the level-3 flag is re-read here.
		rule, err := tx.GetRule(ctx, p.RuleID)
		if err != nil {
			return fmt.Errorf("reloading rule %s: %w", p.RuleID, err)
		}
		if !e.autonomous(p.RiskLevel, rule) {
			return nil
		}

		next, err := p.Transition(action.StatusAutoExecuted)
		if err != nil {
			return err
		}
		next.ExecutedAt = &now
		if err := tx.UpdateActionIfStatus(ctx, next, action.StatusPending); err != nil {
			return fmt.Errorf("auto-executing: %w", err)
		}
		if _, _, err := e.recorder.Record(ctx, tx, next); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.ForAction(audit.EventAutoExecute, audit.SystemActor, next, now)); err != nil {
			return fmt.Errorf("auditing auto-execution: %w", err)
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("action.id", result.ID),
		attribute.String("risk", string(result.RiskLevel)),
		attribute.String("status", string(result.Status)),
	)
	e.metrics.RecordSubmitted(string(result.ActionType), string(result.RiskLevel))
	if result.Status == action.StatusAutoExecuted {
		e.metrics.RecordDecision(string(result.Status))
	}
	e.logger.Info("proposal submitted",
		zap.String("action_id", result.ID),
		zap.String("company_id", result.CompanyID),
		zap.String("action_type", string(result.ActionType)),
		zap.String("agent", result.Agent),
		zap.String("risk", string(result.RiskLevel)),
		zap.String("rule_id", result.RuleID),
		zap.String("status", string(result.Status)),
	)
	e.publish(ctx, events.ActionEvent(result, req.Agent, now))
	return result.Clone(), nil
}

// autonomous decides whether a proposal at risk may skip review under rule.
// Critical never qualifies.
func (e *Engine) autonomous(risk action.RiskLevel, rule *rules.Rule) bool {
	if risk == action.RiskCritical {
		return false
	}
	if rule == nil || !rule.Active || !rule.Level3Enabled {
		return false
	}
	return risk.AtMost(e.cfg.MaxAutonomousRisk)
}

// Get returns one proposal.
func (e *Engine) Get(ctx context.Context, id string) (*action.Proposal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrActionIDRequired
	}
	p, err := e.store.GetAction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting action %s: %w", id, err)
	}
	return p, nil
}

// ListPending returns pending proposals, oldest first. Any status in f is
// ignored.
func (e *Engine) ListPending(ctx context.Context, f store.ActionFilter) ([]*action.Proposal, error) {
	f.Status = action.StatusPending
	return e.ListActions(ctx, f)
}

// ListActions returns proposals matching f.
func (e *Engine) ListActions(ctx context.Context, f store.ActionFilter) ([]*action.Proposal, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", action.ErrInvalidStatus, f.Status))
	}
	if f.RiskLevel != "" && !f.RiskLevel.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", action.ErrInvalidRiskLevel, f.RiskLevel))
	}
	if f.ActionType != "" && !f.ActionType.Valid() {
		return nil, invalid(fmt.Errorf("%w: %q", action.ErrInvalidActionType, f.ActionType))
	}
	list, err := e.store.ListActions(ctx, f.Normalized())
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	return list, nil
}

// Assign routes a pending proposal to reviewer.
func (e *Engine) Assign(ctx context.Context, id, reviewer, actor string) (*action.Proposal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrActionIDRequired
	}
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, ErrReviewerRequired
	}
	if actor == "" {
		actor = reviewer
	}

	now := e.clock()
	var assigned *action.Proposal
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.AssignReviewer(ctx, id, reviewer); err != nil {
			return err
		}
		p, err := tx.GetAction(ctx, id)
		if err != nil {
			return err
		}
		assigned = p
		return tx.AppendAudit(ctx, audit.ForAction(audit.EventAssigned, actor, p, now))
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metrics.RecordConflict("assign")
			return nil, notPending(id)
		}
		return nil, fmt.Errorf("assigning action %s: %w", id, err)
	}

	e.logger.Info("proposal assigned",
		zap.String("action_id", id),
		zap.String("reviewer", reviewer),
		zap.String("actor", actor),
	)
	return assigned, nil
}

// ListAudit queries the audit trail.
func (e *Engine) ListAudit(ctx context.Context, q audit.Query) ([]*audit.Entry, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, invalid(err)
	}
	entries, err := e.store.ListAudit(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, nil
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("publishing event failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("action_id", ev.ActionID),
			zap.String("rule_id", ev.RuleID),
			zap.Error(err),
		)
	}
}

func notPending(id string) error {
	return fmt.Errorf("action %s: %w: %w", id, ErrNotPending, store.ErrConflict)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
