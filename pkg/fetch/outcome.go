// Package fetch resolves single payment identifiers against the
// payments API, driving each one through the retry loop to exactly one
// terminal Outcome.
package fetch

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Outcome is the terminal record for one payment identifier. It is
// created exactly once, after the retry loop stops, and never mutated
// afterwards.
type Outcome struct {
	PaymentID         string `json:"payment_id"`
	OrderID           string `json:"order_id"`
	ExternalReference string `json:"external_reference"`

	// HTTPStatus is the status of the final attempt. 0 means the
	// request failed at transport level and no response exists.
	HTTPStatus int `json:"http_status"`

	// Err is empty on success.
	Err string `json:"error"`
}

// OK reports whether the identifier resolved successfully.
func (o Outcome) OK() bool {
	return o.Err == ""
}

// Fields returns the CSV column names, in output order.
func Fields() []string {
	return []string{"payment_id", "order_id", "external_reference", "http_status", "error"}
}

// Row returns the outcome as a CSV record matching Fields.
func (o Outcome) Row() []string {
	return []string{
		o.PaymentID,
		o.OrderID,
		o.ExternalReference,
		strconv.Itoa(o.HTTPStatus),
		o.Err,
	}
}

// stringify renders a decoded JSON value the way it should appear in a
// CSV cell. Numbers keep their source representation.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
