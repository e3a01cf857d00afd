package instrumentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRecipient = "jane@example.com"
	testDomain    = "example.com"
)

func attrMap(attrs []slog.Attr) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[a.Key] = a.Value.String()
	}
	return out
}

func TestOperation_Complete(t *testing.T) {
	op := NewOperation(OperationSend).Complete(nil)
	assert.True(t, op.Success)
	assert.Equal(t, StatusSuccess, op.Status())
	assert.Empty(t, op.Error)
	assert.GreaterOrEqual(t, op.Duration.Nanoseconds(), int64(0))

	op = NewOperation(OperationExchange).Complete(errors.New("invalid_grant"))
	assert.False(t, op.Success)
	assert.Equal(t, StatusError, op.Status())
	assert.Equal(t, "invalid_grant", op.Error)
}

func TestOperation_LogAttrs_HidesRecipient(t *testing.T) {
	op := NewOperation(OperationSend).WithRecipient(testRecipient).Complete(nil)

	attrs := attrMap(op.LogAttrs())
	assert.Equal(t, testDomain, attrs["recipient_domain"])
	assert.NotContains(t, attrs, "recipient")

	audit := attrMap(op.LogAuditAttrs())
	assert.Equal(t, testRecipient, audit["recipient"])
	assert.NotContains(t, audit, "recipient_domain")
}

func TestOperation_LogAttrs_OptionalFields(t *testing.T) {
	op := NewOperation(OperationExchange).Complete(nil)

	attrs := attrMap(op.LogAttrs())
	assert.Equal(t, OperationExchange, attrs["operation"])
	assert.NotContains(t, attrs, "trace_id")
	assert.NotContains(t, attrs, "error")
	assert.NotContains(t, attrs, "recipient_domain")
}

func TestAuditLogger_Log(t *testing.T) {
	tests := []struct {
		name       string
		config     AuditLoggingConfig
		err        error
		wantOutput bool
		wantLevel  string
		wantMsg    string
		wantKey    string
	}{
		{
			name:       "success without PII",
			config:     AuditLoggingConfig{Enabled: true},
			wantOutput: true,
			wantLevel:  "INFO",
			wantMsg:    "operation_completed",
			wantKey:    "recipient_domain",
		},
		{
			name:       "failure with PII",
			config:     AuditLoggingConfig{Enabled: true, IncludePII: true},
			err:        errors.New("boom"),
			wantOutput: true,
			wantLevel:  "WARN",
			wantMsg:    "operation_failed",
			wantKey:    "recipient",
		},
		{
			name:   "disabled",
			config: AuditLoggingConfig{Enabled: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			al := NewAuditLogger(logger, tt.config)

			al.Log(NewOperation(OperationSend).WithRecipient(testRecipient).Complete(tt.err))

			if !tt.wantOutput {
				assert.Zero(t, buf.Len())
				return
			}

			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
			assert.Equal(t, tt.wantLevel, record["level"])
			assert.Equal(t, tt.wantMsg, record["msg"])
			assert.Contains(t, record, tt.wantKey)
		})
	}
}

func TestAuditLogger_Nil(t *testing.T) {
	var al *AuditLogger
	al.Log(NewOperation(OperationSend).Complete(nil))
}
