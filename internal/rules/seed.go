package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/condition"
	"gopkg.in/yaml.v3"
)

// Seed file errors.
var (
	ErrUnsupportedSeedFormat = errors.New("unsupported seed file format")
	ErrDuplicateSeedRule     = errors.New("duplicate rule id in seed file")
)

// maxSeedFileSize caps seed files at 1MB.
const maxSeedFileSize = 1 << 20

// SeedFile is the on-disk layout of a rule seed file.
//
//	rules:
//	  - id: outreach-small-loads
//	    company_id: acme
//	    action_type: outreach
//	    agent: sourcing-agent
//	    condition: {field: amount, operator: less_than, value: 5000}
//	    risk_level: low
//	    priority: 10
type SeedFile struct {
	Rules []SeedRule `yaml:"rules" toml:"rules"`
}

// SeedRule declares one rule definition. Learning state is never seeded.
type SeedRule struct {
	ID                 string               `yaml:"id" toml:"id"`
	CompanyID          string               `yaml:"company_id" toml:"company_id"`
	ActionType         string               `yaml:"action_type" toml:"action_type"`
	Agent              string               `yaml:"agent" toml:"agent"`
	Name               string               `yaml:"name" toml:"name"`
	Description        string               `yaml:"description" toml:"description"`
	Condition          *condition.Condition `yaml:"condition" toml:"condition"`
	RiskLevel          string               `yaml:"risk_level" toml:"risk_level"`
	Priority           int                  `yaml:"priority" toml:"priority"`
	PromotionThreshold float64              `yaml:"promotion_threshold" toml:"promotion_threshold"`
	Active             *bool                `yaml:"active" toml:"active"`
}

// ToRule converts the declaration into a validated rule definition. Empty
// company and agent default to the wildcard.
func (s SeedRule) ToRule(now time.Time) (*Rule, error) {
	actionType, err := action.ParseType(s.ActionType)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.ID, err)
	}
	risk, err := action.ParseRiskLevel(s.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.ID, err)
	}

	r := &Rule{
		ID:                 strings.TrimSpace(s.ID),
		CompanyID:          orWildcard(s.CompanyID),
		ActionType:         actionType,
		Agent:              orWildcard(s.Agent),
		Name:               s.Name,
		Description:        s.Description,
		Condition:          s.Condition,
		RiskLevel:          risk,
		Priority:           s.Priority,
		PromotionThreshold: s.PromotionThreshold,
		Active:             s.Active == nil || *s.Active,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if r.PromotionThreshold == 0 {
		r.PromotionThreshold = DefaultPromotionThreshold
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", s.ID, err)
	}
	return r, nil
}

func orWildcard(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Wildcard
	}
	return s
}

// ParseSeed decodes seed data in the given format ("yaml" or "toml").
func ParseSeed(data []byte, format string, now time.Time) ([]*Rule, error) {
	var file SeedFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml seed: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("decoding toml seed: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decoding toml seed: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSeedFormat, format)
	}

	seen := make(map[string]bool, len(file.Rules))
	out := make([]*Rule, 0, len(file.Rules))
	for _, sr := range file.Rules {
		r, err := sr.ToRule(now)
		if err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSeedRule, r.ID)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

// LoadSeedFile reads and parses path, choosing the format by extension.
func LoadSeedFile(path string, now time.Time) ([]*Rule, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "yaml" && format != "yml" && format != "toml" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSeedFormat, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat seed file: %w", err)
	}
	if info.Size() > maxSeedFileSize {
		return nil, fmt.Errorf("seed file %s exceeds %d bytes", path, maxSeedFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data, format, now)
}

// UpsertResult reports what an upsert did.
type UpsertResult int

const (
	UpsertUnchanged UpsertResult = iota
	UpsertCreated
	UpsertUpdated
)

// Upserter creates a rule or updates its definition, leaving learning state
// untouched.
type Upserter interface {
	UpsertRule(ctx context.Context, r *Rule, actor string) (UpsertResult, error)
}

// ImportSummary counts the effect of one import.
type ImportSummary struct {
	Created   int
	Updated   int
	Unchanged int
}

// Import upserts every rule, stopping at the first failure.
func Import(ctx context.Context, u Upserter, defs []*Rule, actor string) (ImportSummary, error) {
	var sum ImportSummary
	for _, r := range defs {
		res, err := u.UpsertRule(ctx, r, actor)
		if err != nil {
			return sum, fmt.Errorf("importing rule %q: %w", r.ID, err)
		}
		switch res {
		case UpsertCreated:
			sum.Created++
		case UpsertUpdated:
			sum.Updated++
		default:
			sum.Unchanged++
		}
	}
	return sum, nil
}

// SameScope reports whether r and o cover the same company, action type and
// agent. Learned counters only mean something within one scope.
func (r *Rule) SameScope(o *Rule) bool {
	return r.CompanyID == o.CompanyID && r.ActionType == o.ActionType && r.Agent == o.Agent
}

// SameDefinition reports whether r and o declare the same rule, ignoring
// learning state and timestamps. Condition values are compared through
// their JSON form so 5000 and 5000.0 are equal.
func (r *Rule) SameDefinition(o *Rule) bool {
	if !r.SameScope(o) || r.Name != o.Name || r.Description != o.Description || r.RiskLevel != o.RiskLevel ||
		r.Priority != o.Priority || r.PromotionThreshold != o.PromotionThreshold || r.Active != o.Active {
		return false
	}
	a, errA := json.Marshal(r.Condition)
	b, errB := json.Marshal(o.Condition)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
