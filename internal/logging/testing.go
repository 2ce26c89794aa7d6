package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a Logger backed by an observer core with the
// default config.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{Logger: wrap(zap.New(core), NewDefaultConfig()), observed: observed}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message is exactly msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// Field returns the value of key on the first entry with message msg.
func (t *TestLogger) Field(msg, key string) (any, bool) {
	for _, e := range t.observed.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if t.count(level, substr) == 0 {
		tb.Errorf("no %s entry containing %q among %d entries", levelName(level), substr, t.observed.Len())
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if n := t.count(level, substr); n > 0 {
		tb.Errorf("found %d %s entries containing %q", n, levelName(level), substr)
	}
}

func (t *TestLogger) count(level zapcore.Level, substr string) int {
	n := 0
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// AssertField fails tb unless an entry with message msg has key == want.
// Integers compare as int64, as zap's ContextMap reports them.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	got, ok := t.Field(msg, key)
	if !ok {
		tb.Errorf("entry %q has no field %q", msg, key)
		return
	}
	if !reflect.DeepEqual(got, want) {
		tb.Errorf("entry %q field %q = %v, want %v", msg, key, got, want)
	}
}

// AssertNoSecrets fails tb if a string field named like a redacted field
// holds a clear value, or if a message or string value matches a
// redaction pattern. It checks against the default redaction config.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	rc := NewDefaultConfig().Redaction
	patterns := make([]*regexp.Regexp, 0, len(rc.Patterns))
	for _, p := range rc.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, e := range t.observed.All() {
		if leaks(e.Message) {
			tb.Errorf("entry %q: message matches a redaction pattern", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if sensitiveKey(f.Key, rc.Fields) && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("entry %q: field %q is not redacted", e.Message, f.Key)
			}
			if leaks(f.String) {
				tb.Errorf("entry %q: field %q matches a redaction pattern", e.Message, f.Key)
			}
		}
	}
}

func sensitiveKey(key string, names []string) bool {
	key = strings.ToLower(key)
	for _, n := range names {
		if strings.Contains(key, n) {
			return true
		}
	}
	return false
}

// AssertTraceCorrelation fails tb unless entry msg carries a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	if _, ok := t.Field(msg, "trace_id"); !ok {
		tb.Errorf("entry %q has no trace_id", msg)
	}
}
