// Package credstore persists the client's OAuth client credentials,
// redirect URI and token pair between CLI invocations.
//
// Stored values use fixed keys (gmail_client_id, gmail_client_secret,
// gmail_redirect_uri, gmail_tokens). Nothing is encrypted; the file store
// relies on file permissions alone.
package credstore
