package client

import "github.com/teemow/gmailrelay/internal/credstore"

// State is where a Client stands in the authorization flow.
type State int

const (
	// StateUnauthenticated means no usable credentials are stored.
	StateUnauthenticated State = iota
	// StateAwaitingConsent means a consent URL was handed out in this
	// session and the user has to visit it.
	StateAwaitingConsent
	// StateAwaitingExchange means an authorization code is being exchanged.
	StateAwaitingExchange
	// StateAuthenticated means a token pair is stored.
	StateAuthenticated
	// StateSending means a message is in flight.
	StateSending
)

// String returns the state name used in logs and CLI output.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StateAwaitingExchange:
		return "awaiting_exchange"
	case StateAuthenticated:
		return "authenticated"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// stateOf derives the stable state a stored record represents. Only a
// stored access token counts; credentials alone leave the client
// unauthenticated.
func stateOf(rec credstore.Record) State {
	if rec.Authorized() {
		return StateAuthenticated
	}
	return StateUnauthenticated
}
