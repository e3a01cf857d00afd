package google

import (
	"net/url"
	"strings"

	"github.com/teemow/gmailrelay/internal/relayerr"
)

// AuthEndpoint is Google's consent screen.
const AuthEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"

// ClientCredentials identifies an OAuth client registered in Google Cloud.
// Only non-emptiness is checked; Google rejects anything else upstream.
type ClientCredentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Complete reports whether both fields are set.
func (c ClientCredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// BuildAuthURL returns the consent URL for clientID with redirectURI as the
// redirect target. It requests offline access and always forces the consent
// prompt so that Google issues a refresh token on every authorization.
//
// Parameter order is fixed and each value is escaped independently with
// encodeURIComponent rules, so the same inputs always give the same bytes.
// Spaces become %20, never '+'.
func BuildAuthURL(clientID, redirectURI string) (string, error) {
	if clientID == "" || redirectURI == "" {
		return "", relayerr.MissingParameter("clientId and redirectUri required")
	}

	params := [][2]string{
		{"client_id", clientID},
		{"redirect_uri", redirectURI},
		{"response_type", "code"},
		{"scope", ScopeString},
		{"access_type", "offline"},
		{"prompt", "consent"},
	}

	var b strings.Builder
	b.WriteString(AuthEndpoint)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(encodeURIComponent(p[1]))
	}
	return b.String(), nil
}

// QueryEscape output differs from encodeURIComponent only in these sequences.
var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(s))
}
