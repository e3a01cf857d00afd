package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys.
const (
	KeyOperation = "operation"
	KeyRoute     = "route"
	KeyClientID  = "client_id"
	KeyDomain    = "recipient_domain"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyState     = "state"
)

// Duplicated from instrumentation, which imports this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a text logger writing to w. debug lowers the level to Debug.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Route returns a slog attribute for the matched HTTP route.
func Route(route string) slog.Attr {
	return slog.String(KeyRoute, route)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// State returns a slog attribute for the client's authorization state.
func State(state fmt.Stringer) slog.Attr {
	return slog.String(KeyState, state.String())
}

// Err returns a slog attribute for an error. A nil error yields an empty
// group, which slog omits.
//
//	logger.Info("operation", logging.Err(err))  // safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken masks a secret for logging. Only the length is kept.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ClientID returns a slog attribute with a shortened OAuth client ID.
// Client IDs are public but long; the first 12 characters are enough to
// tell projects apart.
func ClientID(id string) slog.Attr {
	const keep = 12
	if len(id) > keep {
		id = id[:keep] + "..."
	}
	return slog.String(KeyClientID, id)
}

// ExtractDomain returns the domain part of an email address, or "" when
// the address has no single @.
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Domain returns a slog attribute with the recipient's domain only.
func Domain(email string) slog.Attr {
	return slog.String(KeyDomain, ExtractDomain(email))
}
