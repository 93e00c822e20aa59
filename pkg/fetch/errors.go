package fetch

import "fmt"

// Terminal error messages that appear verbatim in outcomes.
const (
	// ErrMsgInvalidBody marks a 2xx response whose body was not a JSON
	// object.
	ErrMsgInvalidBody = "invalid response body"

	// ErrMsgExhausted marks the defensive fallback when the retry loop
	// stops without a terminal decision. The decision table makes this
	// unreachable; it exists so a bug can never lose an identifier.
	ErrMsgExhausted = "exhausted retries"
)

// maxBodyExcerpt bounds how much of an error response body is carried
// into the outcome.
const maxBodyExcerpt = 500

// apiMessage extracts the API-supplied error text from a decoded error
// body, checking the fields Mercado Pago is known to use.
func apiMessage(body map[string]any) string {
	for _, key := range []string{"message", "error", "cause"} {
		if v, ok := body[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// excerpt truncates body text for error reporting.
func excerpt(s string) string {
	if len(s) > maxBodyExcerpt {
		return s[:maxBodyExcerpt]
	}
	return s
}

// httpError renders the generic fallback message for a status code.
func httpError(status int) string {
	return fmt.Sprintf("HTTP %d", status)
}
