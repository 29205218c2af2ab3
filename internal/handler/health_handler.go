package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readinessTimeout は依存先1件あたりの確認の期限。
const readinessTimeout = 5 * time.Second

// ReadinessCheck はレディネス確認の対象となる依存先。
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checks []ReadinessCheck
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Live はプロセスが応答できることだけを返す。
// GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready はデータベースとブレインストーミングエンジンへの疎通を確認する。
// いずれかが失敗した場合は503を返す。
// GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	statusCode := http.StatusOK
	results := make(map[string]checkResult, len(h.checks))

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			slog.Warn("readiness check failed",
				slog.String("check", c.Name),
				slog.String("error", err.Error()),
			)
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			results[c.Name] = checkResult{Status: "error", Error: err.Error()}
			continue
		}
		results[c.Name] = checkResult{Status: "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"status": status,
		"checks": results,
	})
}
