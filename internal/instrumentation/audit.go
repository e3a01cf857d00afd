package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// Operation captures one relay operation (code exchange or send) for
// audit logging.
//
// Recipient is PII. LogAttrs only emits its domain; LogAuditAttrs emits
// the full address.
type Operation struct {
	Name      string // OperationExchange or OperationSend
	Recipient string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewOperation starts timing an operation. Call Complete when it finishes.
func NewOperation(name string) *Operation {
	return &Operation{
		Name:      name,
		StartTime: time.Now(),
	}
}

// WithRecipient sets the recipient address.
func (op *Operation) WithRecipient(addr string) *Operation {
	op.Recipient = addr
	return op
}

// WithTrace copies the trace ID from the span in ctx.
func (op *Operation) WithTrace(ctx context.Context) *Operation {
	op.TraceID = GetTraceID(ctx)
	return op
}

// Complete stops the timer and records the outcome.
func (op *Operation) Complete(err error) *Operation {
	op.Duration = time.Since(op.StartTime)
	op.Success = err == nil
	if err != nil {
		op.Error = err.Error()
	}
	return op
}

// Status returns StatusSuccess or StatusError.
func (op *Operation) Status() string {
	if op.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns attributes with the recipient reduced to its domain.
func (op *Operation) LogAttrs() []slog.Attr {
	return op.attrs(false)
}

// LogAuditAttrs returns attributes including the full recipient address.
func (op *Operation) LogAuditAttrs() []slog.Attr {
	return op.attrs(true)
}

func (op *Operation) attrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", op.Name),
		slog.Duration("duration", op.Duration),
		slog.Bool("success", op.Success),
	}

	if op.Recipient != "" {
		if includePII {
			attrs = append(attrs, slog.String("recipient", op.Recipient))
		} else {
			attrs = append(attrs, slog.String("recipient_domain", ExtractUserDomain(op.Recipient)))
		}
	}
	if op.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", op.TraceID))
	}
	if op.Error != "" {
		attrs = append(attrs, slog.String("error", op.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per relay operation.
// A nil *AuditLogger is valid and logs nothing.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger from config. A nil logger falls
// back to slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes op at Info on success and Warn on failure.
func (al *AuditLogger) Log(op *Operation) {
	if al == nil || !al.enabled || op == nil {
		return
	}

	attrs := op.LogAttrs()
	if al.includePII {
		attrs = op.LogAuditAttrs()
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if op.Success {
		al.logger.Info("operation_completed", args...)
	} else {
		al.logger.Warn("operation_failed", args...)
	}
}
