package credstore

import (
	"github.com/teemow/gmailrelay/internal/google"
)

// Record is everything the client keeps about one authorization.
type Record struct {
	ClientID     string            `json:"gmail_client_id,omitempty"`
	ClientSecret string            `json:"gmail_client_secret,omitempty"`
	RedirectURI  string            `json:"gmail_redirect_uri,omitempty"`
	Tokens       *google.TokenPair `json:"gmail_tokens,omitempty"`
}

// Credentials returns the stored client credentials.
func (r Record) Credentials() google.ClientCredentials {
	return google.ClientCredentials{ClientID: r.ClientID, ClientSecret: r.ClientSecret}
}

// HasCredentials reports whether a client ID, secret and redirect URI are stored.
func (r Record) HasCredentials() bool {
	return r.Credentials().Complete() && r.RedirectURI != ""
}

// Authorized reports whether credentials and a usable token pair are stored.
func (r Record) Authorized() bool {
	return r.HasCredentials() && !r.Tokens.Empty()
}

// Store is the client's credential storage. Each Save call is applied as a
// single write.
type Store interface {
	// Load returns the stored record. An empty store yields a zero Record.
	Load() (Record, error)

	// SaveCredentials stores the client credentials and redirect URI.
	// Stored tokens are kept.
	SaveCredentials(creds google.ClientCredentials, redirectURI string) error

	// SaveTokens replaces the stored token pair.
	SaveTokens(tokens *google.TokenPair) error

	// Clear removes everything.
	Clear() error
}
