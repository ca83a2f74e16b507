package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// NewCORSMiddleware はフロントエンドからのクロスオリジン呼び出しを許可するミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、リクエストのOriginが一致すればそれを返す。
// 一致しない場合は先頭のオリジンを返すため、ブラウザ側で拒否される。
// allowHeadersはContent-Typeに加えて許可するリクエストヘッダー（識別子ヘッダーなど）。
func NewCORSMiddleware(allowedOrigins string, allowHeaders ...string) func(next http.Handler) http.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	fallback := ""
	if len(origins) > 0 {
		fallback = origins[0]
	}
	headers := strings.Join(append([]string{"Content-Type"}, allowHeaders...), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := fallback
			if reqOrigin := r.Header.Get("Origin"); slices.Contains(origins, reqOrigin) {
				origin = reqOrigin
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
