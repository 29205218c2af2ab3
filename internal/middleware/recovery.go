package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"
)

// IncidentIDHeader はpanic復旧時に発行したIDを返すレスポンスヘッダー。
const IncidentIDHeader = "X-Incident-ID"

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// ログ、レスポンスヘッダー、レスポンスボディに同じインシデントIDを出力し、問い合わせ時に突き合わせられるようにする。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// クライアント切断による中断はnet/httpに処理させる
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				incidentID := uuid.NewString()
				logger.Error("panic recovered",
					slog.String("incident_id", incidentID),
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				body := newErrorResponseBody(nil)
				body.IncidentID = incidentID
				w.Header().Set(IncidentIDHeader, incidentID)
				writeErrorBody(w, http.StatusInternalServerError, body)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
