package instrumentation

import "strings"

// ExtractUserDomain returns the domain part of an email address, or
// "unknown" when there is none. Metrics only ever see the domain.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "unknown"
	}
	return strings.ToLower(email[at+1:])
}

// Operation names recorded on Google API metrics and spans.
const (
	OperationExchange = "exchange"
	OperationSend     = "send"
)
