package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"github.com/fyrsmithlabs/govern/internal/rules"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Drivers accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLConfig configures an SQL store.
type SQLConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	queries
	db      *sqlx.DB
	dialect dialect
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects, applies pending migrations and returns a ready store.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	var d dialect
	switch cfg.Driver {
	case DriverSQLite:
		d = sqliteDialect
	case DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("store dsn is required")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	if d == sqliteDialect {
		// A single connection serializes writers instead of surfacing
		// SQLITE_BUSY to callers.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			`PRAGMA journal_mode=WAL`,
			`PRAGMA foreign_keys=ON`,
			fmt.Sprintf(`PRAGMA busy_timeout=%d`, cfg.BusyTimeout.Milliseconds()),
		}
		for _, p := range pragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if err := migrate(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLStore{queries: queries{ext: db}, db: db, dialect: d}, nil
}

// InTx runs fn inside a database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&queries{ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

// ListActions returns matching proposals ordered by creation time.
func (s *SQLStore) ListActions(ctx context.Context, f ActionFilter) ([]*action.Proposal, error) {
	f = f.Normalized()
	where, args := []string{"1=1"}, []any{}
	add := func(col, val string) {
		if val != "" {
			where = append(where, col+" = ?")
			args = append(args, val)
		}
	}
	add("company_id", f.CompanyID)
	add("status", string(f.Status))
	add("action_type", string(f.ActionType))
	add("agent", f.Agent)
	add("risk_level", string(f.RiskLevel))
	add("assigned_reviewer", f.AssignedReviewer)
	args = append(args, f.Limit, f.Offset)

	query := `SELECT ` + actionColumns + ` FROM action_proposals WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	return s.selectActions(ctx, query, args...)
}

// ListExpiredPending returns overdue pending proposals, oldest expiry first.
func (s *SQLStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*action.Proposal, error) {
	if limit <= 0 {
		limit = MaxListLimit
	}
	query := `SELECT ` + actionColumns + ` FROM action_proposals
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC LIMIT ?`
	return s.selectActions(ctx, query, string(action.StatusPending), now.UnixNano(), limit)
}

func (s *SQLStore) selectActions(ctx context.Context, query string, args ...any) ([]*action.Proposal, error) {
	var rows []actionRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]*action.Proposal, 0, len(rows))
	for i := range rows {
		p, err := rows[i].proposal()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListRules returns matching rules ordered by id.
func (s *SQLStore) ListRules(ctx context.Context, f RuleFilter) ([]*rules.Rule, error) {
	where, args := []string{"1=1"}, []any{}
	if !f.IncludeInactive {
		where = append(where, "active = 1")
	}
	if f.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(f.ActionType))
	}
	if f.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, f.Agent)
	}
	query := `SELECT ` + ruleColumns + ` FROM autonomy_rules WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	return s.selectRules(ctx, query, args...)
}

// ActiveRules returns active rules for the scope, including wildcard
// company and wildcard agent rules.
func (s *SQLStore) ActiveRules(ctx context.Context, scope rules.Scope) ([]*rules.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM autonomy_rules
		WHERE active = 1 AND action_type = ?
		AND company_id IN (?, ?) AND agent IN (?, ?)
		ORDER BY id ASC`
	return s.selectRules(ctx, query,
		string(scope.ActionType),
		scope.CompanyID, rules.Wildcard,
		scope.Agent, rules.Wildcard)
}

func (s *SQLStore) selectRules(ctx context.Context, query string, args ...any) ([]*rules.Rule, error) {
	var rows []ruleRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]*rules.Rule, 0, len(rows))
	for i := range rows {
		r, err := rows[i].rule()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListAudit returns matching entries ordered by timestamp then sequence.
func (s *SQLStore) ListAudit(ctx context.Context, q audit.Query) ([]*audit.Entry, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	where, args := []string{"1=1"}, []any{}
	if q.ActionID != "" {
		where = append(where, "action_id = ?")
		args = append(args, q.ActionID)
	}
	if q.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, q.RuleID)
	}
	if q.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, q.CompanyID)
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.To.UnixNano())
	}
	args = append(args, q.Limit)

	query := `SELECT seq, id, action_id, rule_id, company_id, event_type, actor, ts, payload
		FROM audit_entries WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ts ASC, seq ASC LIMIT ?`

	var rows []auditRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	out := make([]*audit.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// queries implements Tx over either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

const actionColumns = `id, company_id, action_type, agent, title, description, draft_content, reasoning,
	entity_snapshot, risk_level, rule_id, status, assigned_reviewer, reviewed_by, edited_content,
	rejection_reason, edit_similarity, created_at, expires_at, reviewed_at, executed_at`

const ruleColumns = `id, company_id, action_type, agent, name, description, condition_json, risk_level,
	priority, promotion_threshold, active, level3_enabled, level3_changed_at, total_actions,
	approved_without_edits, approved_with_edits, rejected, auto_executed, created_at, updated_at`

func (q *queries) InsertAction(ctx context.Context, p *action.Proposal) error {
	row, err := newActionRow(p)
	if err != nil {
		return err
	}
	query := `INSERT INTO action_proposals (` + actionColumns + `) VALUES (
		:id, :company_id, :action_type, :agent, :title, :description, :draft_content, :reasoning,
		:entity_snapshot, :risk_level, :rule_id, :status, :assigned_reviewer, :reviewed_by, :edited_content,
		:rejection_reason, :edit_similarity, :created_at, :expires_at, :reviewed_at, :executed_at)`
	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("action %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (q *queries) GetAction(ctx context.Context, id string) (*action.Proposal, error) {
	var row actionRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`SELECT `+actionColumns+` FROM action_proposals WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return row.proposal()
}

func (q *queries) UpdateActionIfStatus(ctx context.Context, p *action.Proposal, expected action.Status) error {
	row, err := newActionRow(p)
	if err != nil {
		return err
	}
	query := `UPDATE action_proposals SET
		status = :status, risk_level = :risk_level, rule_id = :rule_id, reviewed_by = :reviewed_by,
		edited_content = :edited_content, rejection_reason = :rejection_reason,
		edit_similarity = :edit_similarity, expires_at = :expires_at,
		reviewed_at = :reviewed_at, executed_at = :executed_at
		WHERE id = :id AND status = :expected_status`
	arg := struct {
		actionRow
		ExpectedStatus string `db:"expected_status"`
	}{row, string(expected)}

	res, err := sqlx.NamedExecContext(ctx, q.ext, query, arg)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	if n == 1 {
		return nil
	}

	cur, err := q.GetAction(ctx, p.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("action %s is %s, expected %s: %w", p.ID, cur.Status, expected, ErrConflict)
}

func (q *queries) AssignReviewer(ctx context.Context, id, reviewer string) error {
	res, err := q.ext.ExecContext(ctx,
		q.ext.Rebind(`UPDATE action_proposals SET assigned_reviewer = ? WHERE id = ? AND status = ?`),
		reviewer, id, string(action.StatusPending))
	if err != nil {
		return fmt.Errorf("assign reviewer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign reviewer: %w", err)
	}
	if n == 1 {
		return nil
	}
	cur, err := q.GetAction(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("action %s is %s, expected %s: %w", id, cur.Status, action.StatusPending, ErrConflict)
}

func (q *queries) InsertRule(ctx context.Context, r *rules.Rule) error {
	row, err := newRuleRow(r)
	if err != nil {
		return err
	}
	query := `INSERT INTO autonomy_rules (` + ruleColumns + `) VALUES (
		:id, :company_id, :action_type, :agent, :name, :description, :condition_json, :risk_level,
		:priority, :promotion_threshold, :active, :level3_enabled, :level3_changed_at, :total_actions,
		:approved_without_edits, :approved_with_edits, :rejected, :auto_executed, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s: %w", r.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (q *queries) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	var row ruleRow
	err := sqlx.GetContext(ctx, q.ext, &row, q.ext.Rebind(`SELECT `+ruleColumns+` FROM autonomy_rules WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return row.rule()
}

func (q *queries) UpdateRuleDefinition(ctx context.Context, r *rules.Rule) error {
	row, err := newRuleRow(r)
	if err != nil {
		return err
	}
	query := `UPDATE autonomy_rules SET
		company_id = :company_id, action_type = :action_type, agent = :agent,
		name = :name, description = :description, condition_json = :condition_json,
		risk_level = :risk_level, priority = :priority,
		promotion_threshold = :promotion_threshold, active = :active, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, q.ext, query, row)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireOne(res, "rule", r.ID)
}

// outcomeColumn names the counter credited by each outcome.
var outcomeColumn = map[rules.Outcome]string{
	rules.OutcomeApproved:          "approved_without_edits",
	rules.OutcomeApprovedWithEdits: "approved_with_edits",
	rules.OutcomeRejected:          "rejected",
	rules.OutcomeAutoExecuted:      "auto_executed",
}

func (q *queries) IncrementRuleOutcome(ctx context.Context, ruleID string, o rules.Outcome) error {
	col, ok := outcomeColumn[o]
	if !ok {
		return fmt.Errorf("unknown outcome %q", o)
	}
	set := col + " = " + col + " + 1"
	if o != rules.OutcomeAutoExecuted {
		set = "total_actions = total_actions + 1, " + set
	}
	res, err := q.ext.ExecContext(ctx, q.ext.Rebind(`UPDATE autonomy_rules SET `+set+` WHERE id = ?`), ruleID)
	if err != nil {
		return fmt.Errorf("increment rule outcome: %w", err)
	}
	return requireOne(res, "rule", ruleID)
}

func (q *queries) SetLevel3(ctx context.Context, ruleID string, enabled bool, at time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		q.ext.Rebind(`UPDATE autonomy_rules SET level3_enabled = ?, level3_changed_at = ? WHERE id = ? AND level3_enabled <> ?`),
		boolInt(enabled), at.UnixNano(), ruleID, boolInt(enabled))
	if err != nil {
		return false, fmt.Errorf("set level3: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set level3: %w", err)
	}
	if n == 0 {
		if _, err := q.GetRule(ctx, ruleID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (q *queries) AppendAudit(ctx context.Context, e *audit.Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	query := q.ext.Rebind(`INSERT INTO audit_entries (id, action_id, rule_id, company_id, event_type, actor, ts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := q.ext.ExecContext(ctx, query,
		e.ID, e.ActionID, e.RuleID, e.CompanyID, string(e.EventType), e.Actor, e.Timestamp.UnixNano(), string(payload)); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &e.Seq, q.ext.Rebind(`SELECT seq FROM audit_entries WHERE id = ?`), e.ID); err != nil {
		return fmt.Errorf("read audit seq: %w", err)
	}
	return nil
}

func requireOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Row types mirror the tables; conversions live next to them.

type actionRow struct {
	ID               string          `db:"id"`
	CompanyID        string          `db:"company_id"`
	ActionType       string          `db:"action_type"`
	Agent            string          `db:"agent"`
	Title            string          `db:"title"`
	Description      string          `db:"description"`
	DraftContent     string          `db:"draft_content"`
	Reasoning        string          `db:"reasoning"`
	EntitySnapshot   string          `db:"entity_snapshot"`
	RiskLevel        string          `db:"risk_level"`
	RuleID           string          `db:"rule_id"`
	Status           string          `db:"status"`
	AssignedReviewer string          `db:"assigned_reviewer"`
	ReviewedBy       string          `db:"reviewed_by"`
	EditedContent    string          `db:"edited_content"`
	RejectionReason  string          `db:"rejection_reason"`
	EditSimilarity   sql.NullFloat64 `db:"edit_similarity"`
	CreatedAt        int64           `db:"created_at"`
	ExpiresAt        sql.NullInt64   `db:"expires_at"`
	ReviewedAt       sql.NullInt64   `db:"reviewed_at"`
	ExecutedAt       sql.NullInt64   `db:"executed_at"`
}

func newActionRow(p *action.Proposal) (actionRow, error) {
	snapshot := []byte("{}")
	if p.EntitySnapshot != nil {
		var err error
		if snapshot, err = json.Marshal(p.EntitySnapshot); err != nil {
			return actionRow{}, fmt.Errorf("encode entity snapshot: %w", err)
		}
	}
	row := actionRow{
		ID:               p.ID,
		CompanyID:        p.CompanyID,
		ActionType:       string(p.ActionType),
		Agent:            p.Agent,
		Title:            p.Title,
		Description:      p.Description,
		DraftContent:     p.DraftContent,
		Reasoning:        p.Reasoning,
		EntitySnapshot:   string(snapshot),
		RiskLevel:        string(p.RiskLevel),
		RuleID:           p.RuleID,
		Status:           string(p.Status),
		AssignedReviewer: p.AssignedReviewer,
		ReviewedBy:       p.ReviewedBy,
		EditedContent:    p.EditedContent,
		RejectionReason:  p.RejectionReason,
		CreatedAt:        p.CreatedAt.UnixNano(),
		ExpiresAt:        nullTime(p.ExpiresAt),
		ReviewedAt:       nullTime(p.ReviewedAt),
		ExecutedAt:       nullTime(p.ExecutedAt),
	}
	if p.EditSimilarity != nil {
		row.EditSimilarity = sql.NullFloat64{Float64: *p.EditSimilarity, Valid: true}
	}
	return row, nil
}

func (r actionRow) proposal() (*action.Proposal, error) {
	p := &action.Proposal{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		ActionType:       action.Type(r.ActionType),
		Agent:            r.Agent,
		Title:            r.Title,
		Description:      r.Description,
		DraftContent:     r.DraftContent,
		Reasoning:        r.Reasoning,
		RiskLevel:        action.RiskLevel(r.RiskLevel),
		RuleID:           r.RuleID,
		Status:           action.Status(r.Status),
		AssignedReviewer: r.AssignedReviewer,
		ReviewedBy:       r.ReviewedBy,
		EditedContent:    r.EditedContent,
		RejectionReason:  r.RejectionReason,
		CreatedAt:        time.Unix(0, r.CreatedAt).UTC(),
		ExpiresAt:        timePtr(r.ExpiresAt),
		ReviewedAt:       timePtr(r.ReviewedAt),
		ExecutedAt:       timePtr(r.ExecutedAt),
	}
	if r.EntitySnapshot != "" && r.EntitySnapshot != "{}" {
		if err := json.Unmarshal([]byte(r.EntitySnapshot), &p.EntitySnapshot); err != nil {
			return nil, fmt.Errorf("decode entity snapshot for %s: %w", r.ID, err)
		}
	}
	if r.EditSimilarity.Valid {
		v := r.EditSimilarity.Float64
		p.EditSimilarity = &v
	}
	return p, nil
}

type ruleRow struct {
	ID                   string        `db:"id"`
	CompanyID            string        `db:"company_id"`
	ActionType           string        `db:"action_type"`
	Agent                string        `db:"agent"`
	Name                 string        `db:"name"`
	Description          string        `db:"description"`
	ConditionJSON        string        `db:"condition_json"`
	RiskLevel            string        `db:"risk_level"`
	Priority             int           `db:"priority"`
	PromotionThreshold   float64       `db:"promotion_threshold"`
	Active               int           `db:"active"`
	Level3Enabled        int           `db:"level3_enabled"`
	Level3ChangedAt      sql.NullInt64 `db:"level3_changed_at"`
	TotalActions         int64         `db:"total_actions"`
	ApprovedWithoutEdits int64         `db:"approved_without_edits"`
	ApprovedWithEdits    int64         `db:"approved_with_edits"`
	Rejected             int64         `db:"rejected"`
	AutoExecuted         int64         `db:"auto_executed"`
	CreatedAt            int64         `db:"created_at"`
	UpdatedAt            int64         `db:"updated_at"`
}

func newRuleRow(r *rules.Rule) (ruleRow, error) {
	var cond string
	if r.Condition != nil {
		b, err := json.Marshal(r.Condition)
		if err != nil {
			return ruleRow{}, fmt.Errorf("encode rule condition: %w", err)
		}
		cond = string(b)
	}
	return ruleRow{
		ID:                   r.ID,
		CompanyID:            r.CompanyID,
		ActionType:           string(r.ActionType),
		Agent:                r.Agent,
		Name:                 r.Name,
		Description:          r.Description,
		ConditionJSON:        cond,
		RiskLevel:            string(r.RiskLevel),
		Priority:             r.Priority,
		PromotionThreshold:   r.PromotionThreshold,
		Active:               boolInt(r.Active),
		Level3Enabled:        boolInt(r.Level3Enabled),
		Level3ChangedAt:      nullTime(r.Level3ChangedAt),
		TotalActions:         r.TotalActions,
		ApprovedWithoutEdits: r.ApprovedWithoutEdits,
		ApprovedWithEdits:    r.ApprovedWithEdits,
		Rejected:             r.Rejected,
		AutoExecuted:         r.AutoExecuted,
		CreatedAt:            r.CreatedAt.UnixNano(),
		UpdatedAt:            r.UpdatedAt.UnixNano(),
	}, nil
}

func (row ruleRow) rule() (*rules.Rule, error) {
	r := &rules.Rule{
		ID:                   row.ID,
		CompanyID:            row.CompanyID,
		ActionType:           action.Type(row.ActionType),
		Agent:                row.Agent,
		Name:                 row.Name,
		Description:          row.Description,
		RiskLevel:            action.RiskLevel(row.RiskLevel),
		Priority:             row.Priority,
		PromotionThreshold:   row.PromotionThreshold,
		Active:               row.Active != 0,
		Level3Enabled:        row.Level3Enabled != 0,
		Level3ChangedAt:      timePtr(row.Level3ChangedAt),
		TotalActions:         row.TotalActions,
		ApprovedWithoutEdits: row.ApprovedWithoutEdits,
		ApprovedWithEdits:    row.ApprovedWithEdits,
		Rejected:             row.Rejected,
		AutoExecuted:         row.AutoExecuted,
		CreatedAt:            time.Unix(0, row.CreatedAt).UTC(),
		UpdatedAt:            time.Unix(0, row.UpdatedAt).UTC(),
	}
	if row.ConditionJSON != "" {
		var c condition.Condition
		if err := json.Unmarshal([]byte(row.ConditionJSON), &c); err != nil {
			return nil, fmt.Errorf("decode condition for rule %s: %w", row.ID, err)
		}
		r.Condition = &c
	}
	return r, nil
}

type auditRow struct {
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	ActionID  string `db:"action_id"`
	RuleID    string `db:"rule_id"`
	CompanyID string `db:"company_id"`
	EventType string `db:"event_type"`
	Actor     string `db:"actor"`
	TS        int64  `db:"ts"`
	Payload   string `db:"payload"`
}

func (row auditRow) entry() (*audit.Entry, error) {
	e := &audit.Entry{
		ID:        row.ID,
		Seq:       row.Seq,
		ActionID:  row.ActionID,
		RuleID:    row.RuleID,
		CompanyID: row.CompanyID,
		EventType: audit.EventType(row.EventType),
		Actor:     row.Actor,
		Timestamp: time.Unix(0, row.TS).UTC(),
	}
	if row.Payload != "" && row.Payload != "null" {
		if err := json.Unmarshal([]byte(row.Payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode audit payload %s: %w", row.ID, err)
		}
	}
	return e, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
