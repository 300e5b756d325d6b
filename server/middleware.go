package server

import (
	"net/http"

	"github.com/hazyhaar/profilex/idgen"
	"github.com/hazyhaar/profilex/kit"
)

// apiHeaders marks every response as non-cacheable JSON that must not be
// sniffed or framed. Profiles carry personal data.
func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// maxBody caps request bodies; reads past the limit fail with
// *http.MaxBytesError.
func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID stores the inbound X-Request-ID (or a fresh one) in the
// context and echoes it back.
func requestID(next http.Handler) http.Handler {
	gen := idgen.Prefixed("req_", idgen.UUIDv7())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = gen()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)))
	})
}
