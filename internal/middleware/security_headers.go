package middleware

import "net/http"

// NewSecurityHeadersMiddleware は運用エンドポイント向けのレスポンスヘッダーを付与するミドルウェアを返す。
// 同期結果やメトリクスはキャッシュさせない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
