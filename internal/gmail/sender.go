package gmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/gmailrelay/internal/google"
	"github.com/teemow/gmailrelay/internal/instrumentation"
	"github.com/teemow/gmailrelay/internal/logging"
	"github.com/teemow/gmailrelay/internal/relayerr"
)

// SendRequest is everything needed to send one message as the user.
type SendRequest struct {
	Credentials google.ClientCredentials
	RedirectURI string
	Tokens      *google.TokenPair
	Message     OutboundMessage
}

func (r SendRequest) complete() bool {
	return r.Credentials.Complete() &&
		r.RedirectURI != "" &&
		!r.Tokens.Empty() &&
		r.Message.Complete()
}

// Sender submits messages to the Gmail API. It keeps no per-user state:
// every call builds its own authorized client from the request.
type Sender struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithEndpoint overrides the Gmail API base URL. It must end in "/".
func WithEndpoint(endpoint string) SenderOption {
	return func(s *Sender) {
		s.endpoint = endpoint
	}
}

// WithHTTPClient sets the base client that carries the bearer token.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		s.httpClient = c
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) SenderOption {
	return func(s *Sender) {
		s.metrics = m
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) SenderOption {
	return func(s *Sender) {
		s.audit = al
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = l
	}
}

// NewSender returns a Sender for the production Gmail API.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithOperation(s.logger, instrumentation.OperationSend)
	return s
}

// Send submits req.Message as the user identified by req.Tokens and returns
// Gmail's message resource unchanged.
//
// The access token is used as is. An expired token is not refreshed and
// surfaces as Gmail's 401 message. Any missing input fails with a
// missing-parameter error before a request is made.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*gmail.Message, error) {
	if !req.complete() {
		return nil, relayerr.MissingParameter("missing required fields")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend,
		attribute.String(instrumentation.SpanAttrRecipientDomain, instrumentation.ExtractUserDomain(req.Message.To)))
	defer span.End()

	op := instrumentation.NewOperation(instrumentation.OperationSend).
		WithRecipient(req.Message.To).
		WithTrace(ctx)
	start := time.Now()

	sent, err := s.send(ctx, req)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend, instrumentation.StatusError, time.Since(start))
		s.metrics.RecordEmailSent(ctx, instrumentation.StatusError, req.Message.To)
		s.audit.Log(op.Complete(err))
		s.logger.Warn("send failed",
			logging.Domain(req.Message.To),
			logging.Err(err))
		return nil, err
	}

	span.SetAttributes(attribute.String(instrumentation.SpanAttrMessageID, sent.Id))
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend, instrumentation.StatusSuccess, time.Since(start))
	s.metrics.RecordEmailSent(ctx, instrumentation.StatusSuccess, req.Message.To)
	s.audit.Log(op.Complete(nil))
	s.logger.Info("email sent",
		logging.Domain(req.Message.To),
		slog.String("message_id", sent.Id))
	return sent, nil
}

func (s *Sender) send(ctx context.Context, req SendRequest) (*gmail.Message, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(req.Tokens.OAuth2Token()))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, relayerr.Upstream("", err)
	}

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: EncodeRaw(req.Message),
	}).Context(ctx).Do()
	if err != nil {
		return nil, relayerr.Upstream(sendErrorMessage(err), err)
	}
	return sent, nil
}

// sendErrorMessage returns Gmail's own error message when there is one.
func sendErrorMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}
