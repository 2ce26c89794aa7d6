package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/govern/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func redactor(t *testing.T) *RedactingEncoder {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	return enc
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "store opened", Secret("dsn", config.Secret("postgres://u:p@db/govern")))

	v, ok := tl.Field("store opened", "dsn")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"dsn": "[REDACTED:24]"}, v)
}

func TestRedactedString(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "webhook configured", RedactedString("api_key", "sk-1234567890abcdef"))
	tl.AssertField(t, "webhook configured", "api_key", "[REDACTED:19]")
}

func TestNewRedactingEncoder_Errors(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"[invalid("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[invalid(")

	_, err = NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{strings.Repeat("a", maxPatternLen+1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern too long")

	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Patterns: []string{"[invalid("}})
	require.NoError(t, err, "disabled redaction skips compilation")
	assert.False(t, enc.sensitive("password"))
}

func TestRedactingEncoder_Sensitive(t *testing.T) {
	enc := redactor(t)
	for key, want := range map[string]bool{
		"password":              true,
		"Routing_Number":        true,
		"payee.account_number":  true,
		"vendor_routing_number": true,
		"db_dsn":                true,
		"account_numbers":       false,
		"company_id":            false,
		"tokenizer":             false,
	} {
		assert.Equal(t, want, enc.sensitive(key), key)
	}
}

func TestRedactingEncoder_EncodeEntry(t *testing.T) {
	buf, err := redactor(t).EncodeEntry(zapcore.Entry{Message: "bank details attached"}, []zapcore.Field{
		zap.String("company_id", "acme"),
		zap.String("payee.routing_number", "021000021"),
		zap.String("note", "Authorization: Bearer abc.def.ghi"),
		zap.Int("amount", 3000),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, `"msg":"bank details attached"`)
	assert.Contains(t, out, `"company_id":"acme"`)
	assert.Contains(t, out, `"payee.routing_number":"[REDACTED]"`)
	assert.NotContains(t, out, "021000021")
	assert.Contains(t, out, `"note":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"amount":3000`)
}

func TestRedactingEncoder_MasksMessage(t *testing.T) {
	buf, err := redactor(t).EncodeEntry(zapcore.Entry{Message: "calling with bearer abc123"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "abc123")
	assert.Contains(t, buf.String(), `"msg":"[REDACTED:pattern]"`)
}

func TestRedactingEncoder_AddMethods(t *testing.T) {
	enc := redactor(t)
	enc.AddString("password", "hunter2")
	enc.AddString("note", "api_key=sk-live-1")
	enc.AddString("title", "Approve invoice INV-77")
	enc.AddByteString("token", []byte("t-1"))
	require.NoError(t, enc.AddReflected("iban", []string{"DE89370400440532013000"}))
	require.NoError(t, enc.AddObject("credential", zapcore.ObjectMarshalerFunc(func(oe zapcore.ObjectEncoder) error {
		oe.AddString("user", "svc")
		return nil
	})))

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, nil)
	require.NoError(t, err)
	out := buf.String()

	for _, leak := range []string{"hunter2", "sk-live-1", "t-1", "DE89", "svc"} {
		assert.NotContains(t, out, leak)
	}
	assert.Contains(t, out, `"title":"Approve invoice INV-77"`)
}
