package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailrelay/internal/gmail"
	"github.com/teemow/gmailrelay/internal/google"
	"github.com/teemow/gmailrelay/internal/relayerr"
)

// maxBodyBytes bounds request bodies. Gmail itself caps raw messages at 35 MB.
const maxBodyBytes = 36 << 20

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GenerateURLResponse is returned by /api/auth/generate-url.
type GenerateURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// OAuthCallbackResponse is returned by /api/auth/oauth-callback.
type OAuthCallbackResponse struct {
	Tokens *google.TokenPair `json:"tokens"`
}

// SendEmailRequest is the body of /api/send-email.
type SendEmailRequest struct {
	ClientID     string            `json:"clientId"`
	ClientSecret string            `json:"clientSecret"`
	RedirectURI  string            `json:"redirectUri"`
	Tokens       *google.TokenPair `json:"tokens"`
	To           string            `json:"to"`
	Subject      string            `json:"subject"`
	MessageHTML  string            `json:"messageHtml"`
}

// SendEmailResponse is returned by /api/send-email. SendRes is Gmail's
// message resource as returned upstream.
type SendEmailResponse struct {
	Success bool              `json:"success"`
	SendRes *gmailapi.Message `json:"sendRes"`
}

type generateURLRequest struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
}

func (s *Server) handleGenerateURL(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	clientID := r.URL.Query().Get("clientId")
	redirectURI := r.URL.Query().Get("redirectUri")

	// Each field falls back to the body independently.
	if (clientID == "" || redirectURI == "") && r.Method == http.MethodPost {
		body := readGenerateURLBody(w, r)
		if clientID == "" {
			clientID = body.ClientID
		}
		if redirectURI == "" {
			redirectURI = body.RedirectURI
		}
	}

	authURL, err := google.BuildAuthURL(clientID, redirectURI)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateURLResponse{AuthURL: authURL})
}

// readGenerateURLBody accepts JSON or form bodies. Unparseable bodies
// yield empty fields and are reported as missing parameters.
func readGenerateURLBody(w http.ResponseWriter, r *http.Request) generateURLRequest {
	var body generateURLRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err == nil {
			body.ClientID = r.PostForm.Get("clientId")
			body.RedirectURI = r.PostForm.Get("redirectUri")
		}
	default:
		_ = decodeJSON(w, r, &body)
	}
	return body
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req google.ExchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := s.exchanger.Exchange(r.Context(), req)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OAuthCallbackResponse{Tokens: tokens})
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req SendEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sent, err := s.sender.Send(r.Context(), gmail.SendRequest{
		Credentials: google.ClientCredentials{ClientID: req.ClientID, ClientSecret: req.ClientSecret},
		RedirectURI: req.RedirectURI,
		Tokens:      req.Tokens,
		Message: gmail.OutboundMessage{
			To:       req.To,
			Subject:  req.Subject,
			HTMLBody: req.MessageHTML,
		},
	})
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SendEmailResponse{Success: true, SendRes: sent})
}

// allowMethods answers preflight requests with an empty 200 and rejects
// methods outside allowed with 405. It reports whether the handler should
// continue.
func allowMethods(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(append(allowed, http.MethodOptions), ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched so that the missing-field check reports it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeRelayError maps err onto its HTTP status and message.
func writeRelayError(w http.ResponseWriter, err error) {
	writeError(w, relayerr.HTTPStatus(err), relayerr.Message(err))
}
