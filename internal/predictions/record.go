// Package predictions fetches arrival predictions from a transit API and turns
// the raw, schema-variable API entries into display-ready records.
//
// A Fetcher performs a bounded number of attempts against an Endpoint. Each
// attempt either succeeds, fails in a way worth retrying (transport errors,
// bad status codes, undecodable bodies) or fails fatally (cancelled context,
// unbuildable request). When every attempt has been spent the caller gets an
// error matching ErrAPIUnavailable and is expected to show "no data".
package predictions

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/metrosign/metrosign/internal/colors"
)

// NoCar is the car count shown when the API does not report one.
const NoCar = "-"

// Record is one normalized prediction row. Records are built fresh on every
// fetch and never modified afterwards.
type Record struct {
	LineColor   colors.Color `json:"lineColor"`
	Destination string       `json:"destination"`
	Arrival     string       `json:"arrival"`
	Car         string       `json:"car"`
}

// RawEntry is a single prediction as decoded from the API. Keys vary by
// endpoint and any of them may be missing.
type RawEntry map[string]any

// String returns the value stored under key as a string. Missing keys and
// nulls yield "", numbers are rendered in their shortest decimal form.
func (e RawEntry) String(key string) string {
	if key == "" {
		return ""
	}
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
