// Package relayerr defines the error taxonomy shared by the backend and the client.
//
// Every failure surfaced to a caller belongs to one of three kinds:
//
//   - MissingParameter: the caller supplied incomplete input. Always detected
//     before any network call and mapped to HTTP 400.
//   - Upstream: Google's OAuth or Gmail service rejected or failed the call.
//     Mapped to HTTP 500 and carries the upstream message verbatim.
//   - Transport: the backend could not be reached from the client. Only the
//     authorization URL has a local fallback for this case.
package relayerr
