// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

// DefaultIdentityHeader は上流の認証プロキシが検証済みユーザー識別子を設定するヘッダー。
const DefaultIdentityHeader = "X-User-Id"

// maxIdentityLength は受け付けるユーザー識別子の最大バイト数。
const maxIdentityLength = 255

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストにユーザー識別子を格納するためのキー。
	identityContextKey = contextKey("identity")
	// requestInfoContextKey は外側のミドルウェアへ値を返すための共有領域のキー。
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はLoggingMiddlewareが用意し、内側のミドルウェアが書き込む。
type requestInfo struct {
	identity string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey, info)
}

// NewIdentityMiddleware は上流の認証プロキシが付与したヘッダーからユーザー識別子を読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない、または不正な値の場合は401 Unauthorizedを返す。
func NewIdentityMiddleware(header string) func(next http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := strings.TrimSpace(r.Header.Get(header))
			if !validIdentity(identity) {
				WriteUnauthorizedResponse(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func validIdentity(identity string) bool {
	if identity == "" || len(identity) > maxIdentityLength {
		return false
	}
	return strings.IndexFunc(identity, unicode.IsControl) < 0
}

// IdentityFromContext はリクエストコンテキストからユーザー識別子を取得する。
// IdentityMiddlewareを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(identityContextKey).(string)
	if !ok || identity == "" {
		return "", fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにユーザー識別子を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.identity = identity
	}
	return context.WithValue(ctx, identityContextKey, identity)
}
