package app

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is accepted as an alternative to the key query parameter.
const APIKeyHeader = "X-API-Key"

// RequestAPIKey returns the key a request was made with, preferring the query
// parameter.
func RequestAPIKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return key
	}
	return r.Header.Get(APIKeyHeader)
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	return app.IsInvalidAPIKey(RequestAPIKey(r))
}

// IsInvalidAPIKey reports whether key is missing or not configured. Every
// configured key is compared in constant time.
func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}
	match := 0
	for _, valid := range app.Config.ApiKeys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(valid))
	}
	return match != 1
}
