// Package middleware содержит HTTP middleware для сервиса краудсейла.
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmeshcher/crowdsale-system/internal/signature"
)

type contextKey string

const callerKey contextKey = "caller"

const maxSignedBody = 1 << 20

// SignatureAuth проверяет подпись запроса и кладёт адрес подписавшего в контекст.
// Повтор запроса с тем же nonce отклоняется.
type SignatureAuth struct {
	maxSkew time.Duration
	now     func() time.Time
	seen    *replayGuard
}

// NewSignatureAuth создаёт middleware, отклоняющий запросы с меткой времени дальше maxSkew от текущего.
func NewSignatureAuth(maxSkew time.Duration) *SignatureAuth {
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	return &SignatureAuth{
		maxSkew: maxSkew,
		now:     time.Now,
		seen:    newReplayGuard(),
	}
}

// Middleware восстанавливает адрес из подписи и сверяет его с заявленным в заголовке.
func (a *SignatureAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claimed := r.Header.Get(signature.HeaderAddress)
		if !common.IsHexAddress(claimed) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ts, err := strconv.ParseInt(r.Header.Get(signature.HeaderTimestamp), 10, 64)
		if err != nil || !a.fresh(ts) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		nonce := r.Header.Get(signature.HeaderNonce)
		if !signature.ValidNonce(nonce) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
		r.Body.Close()
		if err != nil || len(body) > maxSignedBody {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		msg := signature.Message(r.Method, r.URL.Path, ts, nonce, body)
		signer, err := signature.Recover(msg, r.Header.Get(signature.HeaderSignature))
		if err != nil || signer != common.HexToAddress(claimed) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !a.seen.accept(signer, nonce, time.Unix(ts, 0).Add(a.maxSkew), a.now()) {
			http.Error(w, "request already processed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *SignatureAuth) fresh(ts int64) bool {
	d := a.now().Sub(time.Unix(ts, 0))
	if d < 0 {
		d = -d
	}
	return d <= a.maxSkew
}

// WithCaller кладёт адрес вызывающего в контекст. Используется в тестах обработчиков.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey, addr)
}

// GetCallerFromContext извлекает адрес подписавшего запрос.
func GetCallerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey).(common.Address)
	return addr, ok
}
