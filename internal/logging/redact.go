package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/govern/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redacted        = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
)

// secretMarshaler logs a config.Secret as its length only.
type secretMarshaler struct {
	key string
	val config.Secret
}

func (s *secretMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(s.key, fmt.Sprintf("[REDACTED:%d]", len(s.val.Value())))
	return nil
}

// Secret logs val under key without revealing it.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, &secretMarshaler{key: key, val: val})
}

// RedactedString logs only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder masks fields whose key names a sensitive value, and
// string values or messages matching a redaction pattern. A key is sensitive
// when it equals a configured name or ends in one after a "_" or "."
// separator, so payee.account_number and vendor_routing_number are masked.
type RedactingEncoder struct {
	zapcore.Encoder
	names    []string
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base. It fails if a pattern does not compile or
// exceeds maxPatternLen.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	e := &RedactingEncoder{Encoder: base}
	if !cfg.Enabled {
		return e, nil
	}
	for _, n := range cfg.Fields {
		e.names = append(e.names, strings.ToLower(n))
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars)", maxPatternLen)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, n := range e.names {
		if key == n || strings.HasSuffix(key, "_"+n) || strings.HasSuffix(key, "."+n) {
			return true
		}
	}
	return false
}

func (e *RedactingEncoder) matches(s string) bool {
	for _, re := range e.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.sensitive(key):
		val = redacted
	case e.matches(val):
		val = redactedPattern
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redacted)
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected masks the whole value of a sensitive key; nested values are
// not inspected.
func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry masks the entry's own fields and message; the wrapped encoder
// writes those without going through the Add methods.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if len(e.names) == 0 && len(e.patterns) == 0 {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	if e.matches(ent.Message) {
		ent.Message = redactedPattern
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case e.sensitive(f.Key):
			out[i] = zap.String(f.Key, redacted)
		case f.Type == zapcore.StringType && e.matches(f.String):
			out[i] = zap.String(f.Key, redactedPattern)
		default:
			out[i] = f
		}
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), names: e.names, patterns: e.patterns}
}
