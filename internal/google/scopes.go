package google

import "strings"

// Scopes requested on the consent screen, in the order they appear in
// the authorization URL.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"openid",
}

// ScopeString is Scopes joined with single spaces.
var ScopeString = strings.Join(Scopes, " ")
