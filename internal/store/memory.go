package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/rules"
)

// MemoryStore keeps everything in process memory behind one mutex.
// Transactions hold the mutex for their duration and undo their writes on
// error, so they are serializable.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*action.Proposal
	rules   map[string]*rules.Rule
	audit   []*audit.Entry
	seq     int64
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]*action.Proposal),
		rules:   make(map[string]*rules.Rule),
	}
}

var _ Store = (*MemoryStore)(nil)

// memTx applies writes directly to the store and records how to revert
// them. Callers must hold s.mu.
type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) record(fn func()) {
	if t.undo != nil {
		t.undo = append(t.undo, fn)
	}
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memTx) InsertAction(_ context.Context, p *action.Proposal) error {
	if _, ok := t.s.actions[p.ID]; ok {
		return fmt.Errorf("action %s: %w", p.ID, ErrDuplicate)
	}
	t.s.actions[p.ID] = p.Clone()
	id := p.ID
	t.record(func() { delete(t.s.actions, id) })
	return nil
}

func (t *memTx) GetAction(_ context.Context, id string) (*action.Proposal, error) {
	p, ok := t.s.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (t *memTx) UpdateActionIfStatus(_ context.Context, p *action.Proposal, expected action.Status) error {
	cur, ok := t.s.actions[p.ID]
	if !ok {
		return fmt.Errorf("action %s: %w", p.ID, ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("action %s is %s, expected %s: %w", p.ID, cur.Status, expected, ErrConflict)
	}
	next := p.Clone()
	next.AssignedReviewer = cur.AssignedReviewer
	t.s.actions[p.ID] = next
	t.record(func() { t.s.actions[cur.ID] = cur })
	return nil
}

func (t *memTx) AssignReviewer(_ context.Context, id, reviewer string) error {
	cur, ok := t.s.actions[id]
	if !ok {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if cur.Status != action.StatusPending {
		return fmt.Errorf("action %s is %s, expected %s: %w", id, cur.Status, action.StatusPending, ErrConflict)
	}
	next := cur.Clone()
	next.AssignedReviewer = reviewer
	t.s.actions[id] = next
	t.record(func() { t.s.actions[cur.ID] = cur })
	return nil
}

func (t *memTx) InsertRule(_ context.Context, r *rules.Rule) error {
	if _, ok := t.s.rules[r.ID]; ok {
		return fmt.Errorf("rule %s: %w", r.ID, ErrDuplicate)
	}
	t.s.rules[r.ID] = r.Clone()
	id := r.ID
	t.record(func() { delete(t.s.rules, id) })
	return nil
}

func (t *memTx) GetRule(_ context.Context, id string) (*rules.Rule, error) {
	r, ok := t.s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (t *memTx) UpdateRuleDefinition(_ context.Context, r *rules.Rule) error {
	cur, ok := t.s.rules[r.ID]
	if !ok {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
	}
	next := cur.Clone()
	next.CompanyID = r.CompanyID
	next.ActionType = r.ActionType
	next.Agent = r.Agent
	next.Name = r.Name
	next.Description = r.Description
	next.Condition = r.Clone().Condition
	next.RiskLevel = r.RiskLevel
	next.Priority = r.Priority
	next.PromotionThreshold = r.PromotionThreshold
	next.Active = r.Active
	next.UpdatedAt = r.UpdatedAt
	t.s.rules[r.ID] = next
	t.record(func() { t.s.rules[cur.ID] = cur })
	return nil
}

func (t *memTx) IncrementRuleOutcome(_ context.Context, ruleID string, o rules.Outcome) error {
	cur, ok := t.s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	next := cur.Clone()
	next.Apply(o)
	t.s.rules[ruleID] = next
	t.record(func() { t.s.rules[cur.ID] = cur })
	return nil
}

func (t *memTx) SetLevel3(_ context.Context, ruleID string, enabled bool, at time.Time) (bool, error) {
	cur, ok := t.s.rules[ruleID]
	if !ok {
		return false, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if cur.Level3Enabled == enabled {
		return false, nil
	}
	next := cur.Clone()
	next.Level3Enabled = enabled
	next.Level3ChangedAt = &at
	t.s.rules[ruleID] = next
	t.record(func() { t.s.rules[cur.ID] = cur })
	return true, nil
}

func (t *memTx) AppendAudit(_ context.Context, e *audit.Entry) error {
	t.s.seq++
	stored := *e
	stored.Seq = t.s.seq
	stored.Payload = cloneAny(e.Payload).(map[string]any)
	t.s.audit = append(t.s.audit, &stored)
	e.Seq = stored.Seq
	n := len(t.s.audit) - 1
	t.record(func() {
		t.s.audit = t.s.audit[:n]
		t.s.seq--
	})
	return nil
}

// InTx runs fn while holding the store lock. Writes made by fn are undone if
// it returns an error or panics.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s, undo: make([]func(), 0, 4)}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) single(fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTx{s: s})
}

func (s *MemoryStore) InsertAction(ctx context.Context, p *action.Proposal) error {
	return s.single(func(tx *memTx) error { return tx.InsertAction(ctx, p) })
}

func (s *MemoryStore) GetAction(ctx context.Context, id string) (p *action.Proposal, err error) {
	err = s.single(func(tx *memTx) error {
		p, err = tx.GetAction(ctx, id)
		return err
	})
	return p, err
}

func (s *MemoryStore) UpdateActionIfStatus(ctx context.Context, p *action.Proposal, expected action.Status) error {
	return s.single(func(tx *memTx) error { return tx.UpdateActionIfStatus(ctx, p, expected) })
}

func (s *MemoryStore) AssignReviewer(ctx context.Context, id, reviewer string) error {
	return s.single(func(tx *memTx) error { return tx.AssignReviewer(ctx, id, reviewer) })
}

func (s *MemoryStore) InsertRule(ctx context.Context, r *rules.Rule) error {
	return s.single(func(tx *memTx) error { return tx.InsertRule(ctx, r) })
}

func (s *MemoryStore) GetRule(ctx context.Context, id string) (r *rules.Rule, err error) {
	err = s.single(func(tx *memTx) error {
		r, err = tx.GetRule(ctx, id)
		return err
	})
	return r, err
}

func (s *MemoryStore) UpdateRuleDefinition(ctx context.Context, r *rules.Rule) error {
	return s.single(func(tx *memTx) error { return tx.UpdateRuleDefinition(ctx, r) })
}

func (s *MemoryStore) IncrementRuleOutcome(ctx context.Context, ruleID string, o rules.Outcome) error {
	return s.single(func(tx *memTx) error { return tx.IncrementRuleOutcome(ctx, ruleID, o) })
}

func (s *MemoryStore) SetLevel3(ctx context.Context, ruleID string, enabled bool, at time.Time) (changed bool, err error) {
	err = s.single(func(tx *memTx) error {
		changed, err = tx.SetLevel3(ctx, ruleID, enabled, at)
		return err
	})
	return changed, err
}

func (s *MemoryStore) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return s.single(func(tx *memTx) error { return tx.AppendAudit(ctx, e) })
}

// ListActions returns matching proposals ordered by creation time.
func (s *MemoryStore) ListActions(_ context.Context, f ActionFilter) ([]*action.Proposal, error) {
	f = f.Normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	matched := make([]*action.Proposal, 0)
	for _, p := range s.actions {
		if f.Matches(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return pageClone(matched, f.Offset, f.Limit), nil
}

// ListExpiredPending returns overdue pending proposals, oldest expiry first.
func (s *MemoryStore) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*action.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	overdue := make([]*action.Proposal, 0)
	for _, p := range s.actions {
		if p.IsOverdue(now) {
			overdue = append(overdue, p)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].ExpiresAt.Equal(*overdue[j].ExpiresAt) {
			return overdue[i].ExpiresAt.Before(*overdue[j].ExpiresAt)
		}
		return overdue[i].ID < overdue[j].ID
	})
	if limit <= 0 {
		limit = len(overdue)
	}
	return pageClone(overdue, 0, limit), nil
}

// ListRules returns matching rules ordered by id.
func (s *MemoryStore) ListRules(_ context.Context, f RuleFilter) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*rules.Rule, 0)
	for _, r := range s.rules {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ActiveRules returns active rules whose scope covers scope.
func (s *MemoryStore) ActiveRules(_ context.Context, scope rules.Scope) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*rules.Rule, 0)
	for _, r := range s.rules {
		if r.Active && r.Applies(scope) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAudit returns matching entries ordered by timestamp then sequence.
func (s *MemoryStore) ListAudit(_ context.Context, q audit.Query) ([]*audit.Entry, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*audit.Entry, 0)
	for _, e := range s.audit {
		if q.Matches(e) {
			c := *e
			c.Payload = cloneAny(e.Payload).(map[string]any)
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func pageClone(in []*action.Proposal, offset, limit int) []*action.Proposal {
	if offset >= len(in) {
		return []*action.Proposal{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	out := make([]*action.Proposal, 0, end-offset)
	for _, p := range in[offset:end] {
		out = append(out, p.Clone())
	}
	return out
}

func cloneAny(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		if tv == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = cloneAny(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
