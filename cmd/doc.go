// Package cmd implements the gmailrelay command-line interface.
//
// The serve command runs the relay backend. The auth, exchange, send,
// status and logout commands drive it as a client, keeping credentials in
// a local file.
package cmd
