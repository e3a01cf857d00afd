package google

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenPair is the token set Google returns from a code exchange.
// Field names match Google's token response; ExpiryDate is epoch
// milliseconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"`
}

// TokenPairFromOAuth2 converts an oauth2.Token, picking scope and id_token
// out of the raw response.
func TokenPairFromOAuth2(t *oauth2.Token) *TokenPair {
	if t == nil {
		return nil
	}

	p := &TokenPair{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		p.Scope = scope
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		p.IDToken = idToken
	}
	if !t.Expiry.IsZero() {
		p.ExpiryDate = t.Expiry.UnixMilli()
	}
	return p
}

// OAuth2Token converts back for use with an oauth2 token source.
func (p *TokenPair) OAuth2Token() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
	}
	if p.ExpiryDate > 0 {
		t.Expiry = time.UnixMilli(p.ExpiryDate)
	}
	return t
}

// Empty reports whether p carries no usable access token. A nil pair is empty.
func (p *TokenPair) Empty() bool {
	return p == nil || p.AccessToken == ""
}

// Expired reports whether the access token's expiry is at or before now.
// A pair without an expiry is never considered expired.
func (p *TokenPair) Expired(now time.Time) bool {
	if p == nil || p.ExpiryDate == 0 {
		return false
	}
	return !now.Before(time.UnixMilli(p.ExpiryDate))
}
