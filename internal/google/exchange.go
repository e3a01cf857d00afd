package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/teemow/gmailrelay/internal/instrumentation"
	"github.com/teemow/gmailrelay/internal/logging"
	"github.com/teemow/gmailrelay/internal/relayerr"
)

// ExchangeRequest carries everything a code exchange needs. The redirect
// URI must be the one the code was issued for.
type ExchangeRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

func (r ExchangeRequest) complete() bool {
	return r.Code != "" && r.ClientID != "" && r.ClientSecret != "" && r.RedirectURI != ""
}

// Exchanger trades authorization codes for token pairs at Google's token
// endpoint. It holds no per-request state and is safe for concurrent use.
type Exchanger struct {
	endpoint   oauth2.Endpoint
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithTokenURL points the exchanger at a different token endpoint.
func WithTokenURL(tokenURL string) ExchangerOption {
	return func(e *Exchanger) {
		e.endpoint = oauth2.Endpoint{
			AuthURL:   AuthEndpoint,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = c
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) ExchangerOption {
	return func(e *Exchanger) {
		e.metrics = m
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) ExchangerOption {
	return func(e *Exchanger) {
		e.audit = al
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExchangerOption {
	return func(e *Exchanger) {
		e.logger = l
	}
}

// NewExchanger returns an Exchanger for Google's production token endpoint.
func NewExchanger(opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		endpoint: googleoauth.Endpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.WithOperation(e.logger, instrumentation.OperationExchange)
	return e
}

// Exchange trades req.Code for a token pair. A request with any empty
// field fails with a missing-parameter error before anything is sent.
// Upstream rejections fail with an upstream error carrying Google's
// message. There is no retry.
func (e *Exchanger) Exchange(ctx context.Context, req ExchangeRequest) (*TokenPair, error) {
	if !req.complete() {
		return nil, relayerr.MissingParameter("code, clientId, clientSecret, redirectUri required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()

	op := instrumentation.NewOperation(instrumentation.OperationExchange).WithTrace(ctx)
	start := time.Now()

	conf := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint:     e.endpoint,
		RedirectURL:  req.RedirectURI,
	}
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	tok, err := conf.Exchange(ctx, req.Code)
	if err != nil {
		rerr := relayerr.Upstream(exchangeErrorMessage(err), err)
		instrumentation.SetSpanError(span, rerr)
		e.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusError, time.Since(start))
		e.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultFailure)
		e.audit.Log(op.Complete(rerr))
		e.logger.Warn("code exchange failed",
			logging.ClientID(req.ClientID),
			logging.Err(rerr))
		return nil, rerr
	}

	instrumentation.SetSpanSuccess(span)
	e.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusSuccess, time.Since(start))
	e.metrics.RecordOAuthExchange(ctx, instrumentation.OAuthResultSuccess)
	e.audit.Log(op.Complete(nil))

	pair := TokenPairFromOAuth2(tok)
	e.logger.Debug("code exchanged",
		logging.ClientID(req.ClientID),
		slog.String("access_token", logging.SanitizeToken(pair.AccessToken)),
		slog.Bool("has_refresh_token", pair.RefreshToken != ""))
	return pair, nil
}

// exchangeErrorMessage extracts Google's error code and description from a
// token endpoint rejection, e.g. "invalid_grant: Bad Request".
func exchangeErrorMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		if re.ErrorDescription != "" {
			return re.ErrorCode + ": " + re.ErrorDescription
		}
		return re.ErrorCode
	}
	return err.Error()
}
