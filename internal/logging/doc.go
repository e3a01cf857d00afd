// Package logging holds the structured logging helpers shared by the relay
// backend and the CLI client.
//
// Everything logs through log/slog. The helpers here keep attribute names
// consistent and make sure credentials never reach a log line:
//
//	logger := logging.WithOperation(slog.Default(), "send")
//	logger.Info("email sent",
//	    logging.Domain(to),
//	    logging.Status(logging.StatusSuccess))
//
// Access tokens, refresh tokens and client secrets are only ever logged
// through SanitizeToken, which reports a length and nothing else.
package logging
