// Package client drives the relay backend from the user's side.
//
// A Client keeps the OAuth client credentials and the issued token pair in
// a credstore.Store and moves through a small state machine:
//
//	Unauthenticated -> AwaitingConsent -> AwaitingExchange -> Authenticated
//	Authenticated -> Sending -> Authenticated
//
// BeginAuthorization asks the backend for the consent URL and builds it
// locally when the backend cannot be reached. CompleteAuthorization and
// Send have no local fallback and are never retried.
package client
