package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmailrelay/internal/gmail"
	"github.com/teemow/gmailrelay/internal/google"
)

const (
	expiredAccessToken = "ya29.expired"
	expiredMessage     = "Request had invalid authentication credentials."
)

// fakeGoogle serves the token endpoint at /token and Gmail send at its
// real path, counting calls to each.
type fakeGoogle struct {
	*httptest.Server
	tokenCalls int32
	sendCalls  int32
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()

	fg := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fg.tokenCalls, 1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "used-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Bad Request"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"ya29.fresh","refresh_token":"1//r","expires_in":3599,"token_type":"Bearer","scope":"openid"}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fg.sendCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") == "Bearer "+expiredAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":401,"message":"`+expiredMessage+`","status":"UNAUTHENTICATED"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"18c1f0a2b3","threadId":"18c1f0a2b3","labelIds":["SENT"]}`)
	})

	fg.Server = httptest.NewServer(mux)
	t.Cleanup(fg.Close)
	return fg
}

func newTestServer(t *testing.T, rl RateLimitConfig) (*httptest.Server, *fakeGoogle) {
	t.Helper()

	fg := newFakeGoogle(t)
	s := New(Config{
		Exchanger: google.NewExchanger(google.WithTokenURL(fg.URL+"/token"), google.WithHTTPClient(fg.Client())),
		Sender:    gmail.NewSender(gmail.WithEndpoint(fg.URL+"/"), gmail.WithHTTPClient(fg.Client())),
		RateLimit: rl,
	})
	t.Cleanup(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Close()
		}
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, fg
}

func postJSON(t *testing.T, u string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = strings.NewReader(string(data))
	}

	resp, err := http.Post(u, "application/json", r)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func validSendBody(accessToken string) map[string]any {
	return map[string]any{
		"clientId":     "abc",
		"clientSecret": "secret",
		"redirectUri":  "https://x.com/callback",
		"tokens":       map[string]any{"access_token": accessToken, "refresh_token": "1//r", "expiry_date": 1000},
		"to":           "a@b.com",
		"subject":      "Hi",
		"messageHtml":  "<p>hi</p>",
	}
}

func TestGenerateURL_Query(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})

	resp, err := http.Get(ts.URL + RouteGenerateURL + "?clientId=abc&redirectUri=" + url.QueryEscape("https://x.com/cb"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := decode[GenerateURLResponse](t, resp)
	want, err := google.BuildAuthURL("abc", "https://x.com/cb")
	require.NoError(t, err)
	assert.Equal(t, want, got.AuthURL)
	assert.Contains(t, got.AuthURL, "?client_id=abc&redirect_uri=https%3A%2F%2Fx.com%2Fcb&response_type=code&scope=")
	assert.True(t, strings.HasSuffix(got.AuthURL, "&access_type=offline&prompt=consent"))
}

func TestGenerateURL_Body(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})
	want, err := google.BuildAuthURL("abc", "https://x.com/cb")
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		resp := postJSON(t, ts.URL+RouteGenerateURL, map[string]string{"clientId": "abc", "redirectUri": "https://x.com/cb"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, decode[GenerateURLResponse](t, resp).AuthURL)
	})

	t.Run("form", func(t *testing.T) {
		resp, err := http.PostForm(ts.URL+RouteGenerateURL, url.Values{"clientId": {"abc"}, "redirectUri": {"https://x.com/cb"}})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, decode[GenerateURLResponse](t, resp).AuthURL)
	})

	t.Run("query and body mixed", func(t *testing.T) {
		resp := postJSON(t, ts.URL+RouteGenerateURL+"?clientId=abc", map[string]string{"clientId": "ignored", "redirectUri": "https://x.com/cb"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, decode[GenerateURLResponse](t, resp).AuthURL)
	})
}

func TestGenerateURL_Missing(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})

	for _, q := range []string{"", "?clientId=abc", "?redirectUri=https%3A%2F%2Fx.com%2Fcb"} {
		resp, err := http.Get(ts.URL + RouteGenerateURL + q)
		require.NoError(t, err)
		body := readBody(t, resp)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.JSONEq(t, `{"error":"clientId and redirectUri required"}`, body, q)
	}
}

func TestOAuthCallback(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	resp := postJSON(t, ts.URL+RouteOAuthCallback, map[string]string{
		"code":         "4/0Ab",
		"clientId":     "abc",
		"clientSecret": "secret",
		"redirectUri":  "https://x.com/callback",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := decode[OAuthCallbackResponse](t, resp)
	require.NotNil(t, got.Tokens)
	assert.Equal(t, "ya29.fresh", got.Tokens.AccessToken)
	assert.Equal(t, "1//r", got.Tokens.RefreshToken)
	assert.NotZero(t, got.Tokens.ExpiryDate)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.tokenCalls))
}

func TestOAuthCallback_MissingClientSecret(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	resp := postJSON(t, ts.URL+RouteOAuthCallback, map[string]string{
		"code":        "4/0Ab",
		"clientId":    "abc",
		"redirectUri": "https://x.com/callback",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, `{"error":"code, clientId, clientSecret, redirectUri required"}`, strings.TrimSpace(readBody(t, resp)))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fg.tokenCalls))
}

func TestOAuthCallback_UpstreamRejection(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	resp := postJSON(t, ts.URL+RouteOAuthCallback, map[string]string{
		"code":         "used-code",
		"clientId":     "abc",
		"clientSecret": "secret",
		"redirectUri":  "https://x.com/callback",
	})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid_grant: Bad Request"}`, readBody(t, resp))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.tokenCalls))
}

func TestSendEmail(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	resp := postJSON(t, ts.URL+RouteSendEmail, validSendBody("ya29.valid"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, true, got["success"])
	sendRes, ok := got["sendRes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "18c1f0a2b3", sendRes["id"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.sendCalls))
}

func TestSendEmail_ExpiredToken(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	resp := postJSON(t, ts.URL+RouteSendEmail, validSendBody(expiredAccessToken))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"`+expiredMessage+`"}`, readBody(t, resp))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.sendCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fg.tokenCalls), "no refresh attempt")
}

func TestSendEmail_MissingFields(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	for _, field := range []string{"clientId", "clientSecret", "redirectUri", "tokens", "to", "subject", "messageHtml"} {
		t.Run(field, func(t *testing.T) {
			body := validSendBody("ya29.valid")
			delete(body, field)

			resp := postJSON(t, ts.URL+RouteSendEmail, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.JSONEq(t, `{"error":"missing required fields"}`, readBody(t, resp))
		})
	}

	t.Run("empty access token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+RouteSendEmail, validSendBody(""))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	assert.Equal(t, int32(0), atomic.LoadInt32(&fg.sendCalls))
}

func TestMalformedJSON(t *testing.T) {
	ts, fg := newTestServer(t, RateLimitConfig{})

	for _, route := range []string{RouteOAuthCallback, RouteSendEmail} {
		resp := postJSON(t, ts.URL+route, `{"code": `)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, route)
		assert.JSONEq(t, `{"error":"invalid JSON body"}`, readBody(t, resp), route)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&fg.tokenCalls)+atomic.LoadInt32(&fg.sendCalls))
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})

	tests := []struct {
		route   string
		methods string
	}{
		{RouteGenerateURL, "GET,POST,OPTIONS"},
		{RouteOAuthCallback, "POST,OPTIONS"},
		{RouteSendEmail, "POST,OPTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, ts.URL+tt.route, nil)
			require.NoError(t, err)
			req.Header.Set("Origin", "https://elsewhere.example")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Empty(t, readBody(t, resp))
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.methods, resp.Header.Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))

			// Error responses carry the headers too.
			errResp := postJSON(t, ts.URL+tt.route, `{}`)
			assert.Equal(t, "*", errResp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})

	tests := []struct {
		method string
		route  string
	}{
		{http.MethodGet, RouteOAuthCallback},
		{http.MethodGet, RouteSendEmail},
		{http.MethodPut, RouteGenerateURL},
		{http.MethodDelete, RouteSendEmail},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, ts.URL+tt.route, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s %s", tt.method, tt.route)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"error":"method not allowed"}`, readBody(t, resp))
		resp.Body.Close()
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})
	u := ts.URL + RouteGenerateURL + "?clientId=abc&redirectUri=https%3A%2F%2Fx.com%2Fcb"

	for i := 0; i < 2; i++ {
		resp, err := http.Get(u)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, readBody(t, resp))

	// Health probes are not limited.
	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimit_CORS(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1})

	// Preflights do not consume tokens.
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+RouteSendEmail, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	}

	first := postJSON(t, ts.URL+RouteSendEmail, `{}`)
	assert.Equal(t, http.StatusBadRequest, first.StatusCode)

	limited := postJSON(t, ts.URL+RouteSendEmail, `{}`)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "*", limited.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST,OPTIONS", limited.Header.Get("Access-Control-Allow-Methods"))
}

func TestCallbackPage(t *testing.T) {
	ts, _ := newTestServer(t, RateLimitConfig{})

	tests := []struct {
		name    string
		query   string
		want    []string
		notWant []string
	}{
		{
			name:  "code",
			query: "?code=4%2F0Ab-xyz&scope=openid",
			want:  []string{"gmailrelay exchange --code", "4/0Ab-xyz"},
		},
		{
			name:  "error",
			query: "?error=access_denied",
			want:  []string{"Authorization failed", "access_denied"},
		},
		{
			name:    "escapes markup",
			query:   "?code=" + url.QueryEscape("<script>alert(1)</script>"),
			want:    []string{"&lt;script&gt;"},
			notWant: []string{"<script>"},
		},
		{
			name:  "empty",
			query: "",
			want:  []string{"No authorization code"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + RouteCallbackPage + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

			body := readBody(t, resp)
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, body, nw)
			}
		})
	}
}
