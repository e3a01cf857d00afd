// Package google builds Google's OAuth2 consent URL and exchanges
// authorization codes for token pairs.
//
// The consent URL is produced locally and deterministically so that the
// backend and the client's offline fallback always agree on it. The code
// exchange goes through golang.org/x/oauth2 against Google's token
// endpoint.
package google
