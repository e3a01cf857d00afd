package google

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenPairFromOAuth2(t *testing.T) {
	expiry := time.UnixMilli(1700000000000)
	tok := (&oauth2.Token{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}).WithExtra(map[string]interface{}{
		"scope":    "openid",
		"id_token": "eyJ",
	})

	want := &TokenPair{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Scope:        "openid",
		TokenType:    "Bearer",
		IDToken:      "eyJ",
		ExpiryDate:   1700000000000,
	}
	if diff := cmp.Diff(want, TokenPairFromOAuth2(tok)); diff != "" {
		t.Errorf("TokenPairFromOAuth2() mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, TokenPairFromOAuth2(nil))
}

func TestTokenPair_OAuth2Token(t *testing.T) {
	p := &TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", ExpiryDate: 1700000000000}
	tok := p.OAuth2Token()

	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(1700000000000), tok.Expiry.UnixMilli())

	assert.True(t, (&TokenPair{AccessToken: "a"}).OAuth2Token().Expiry.IsZero())
}

func TestTokenPair_JSONFieldNames(t *testing.T) {
	var p TokenPair
	require.NoError(t, json.Unmarshal([]byte(`{
		"access_token": "a",
		"refresh_token": "r",
		"scope": "s",
		"token_type": "Bearer",
		"id_token": "i",
		"expiry_date": 42
	}`), &p))

	want := TokenPair{AccessToken: "a", RefreshToken: "r", Scope: "s", TokenType: "Bearer", IDToken: "i", ExpiryDate: 42}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("unmarshal mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenPair_EmptyAndExpired(t *testing.T) {
	var nilPair *TokenPair
	assert.True(t, nilPair.Empty())
	assert.True(t, (&TokenPair{RefreshToken: "r"}).Empty())
	assert.False(t, (&TokenPair{AccessToken: "a"}).Empty())

	now := time.UnixMilli(2000)
	assert.True(t, (&TokenPair{ExpiryDate: 1000}).Expired(now))
	assert.True(t, (&TokenPair{ExpiryDate: 2000}).Expired(now))
	assert.False(t, (&TokenPair{ExpiryDate: 3000}).Expired(now))
	assert.False(t, (&TokenPair{}).Expired(now))
	assert.False(t, nilPair.Expired(now))
}
