package restapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/metrosign/metrosign/internal/clock"
)

const (
	noStore = "no-store"
	noCache = "no-cache"
)

// CachePolicy returns the Cache-Control value for a successful response.
type CachePolicy func(r *http.Request) string

// NoStore forbids reuse of every response.
func NoStore(*http.Request) string {
	return noStore
}

// UntilNextRefresh lets clients reuse a response until nextRefresh, rounded
// down to whole seconds. Less than a second left, or a zero nextRefresh,
// forces revalidation.
func UntilNextRefresh(nextRefresh func() time.Time, c clock.Clock) CachePolicy {
	return func(*http.Request) string {
		at := nextRefresh()
		if at.IsZero() {
			return noCache
		}
		left := at.Sub(c.Now()) / time.Second
		if left < 1 {
			return noCache
		}
		return fmt.Sprintf("private, max-age=%d", int64(left))
	}
}

// CacheControlMiddleware applies policy to 2xx responses. Any other status
// is sent with no-store. The policy runs when the status is known, so it
// sees state the handler changed.
func CacheControlMiddleware(policy CachePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cachingWriter{ResponseWriter: w, policy: policy, req: r}, r)
	})
}

type cachingWriter struct {
	http.ResponseWriter
	policy CachePolicy
	req    *http.Request
	done   bool
}

func (w *cachingWriter) WriteHeader(code int) {
	if !w.done {
		w.done = true
		value := noStore
		if code >= 200 && code < 300 {
			value = w.policy(w.req)
		}
		w.Header().Set("Cache-Control", value)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cachingWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
