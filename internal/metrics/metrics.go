// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オーケストレーター、認証サービス、ワーカー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordBrainstormRun(outcome string, duration time.Duration)
	RecordBrainstormStepFailure(step string)
	RecordIdeasPersisted(count int)
	RecordLogin(provider, outcome string)
	RecordTokenRejected(reason string)
	RecordSweep(deleted int64, err error)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	brainstormRuns     *prometheus.CounterVec
	brainstormDuration prometheus.Histogram
	stepFailures       *prometheus.CounterVec
	ideasPersisted     prometheus.Counter
	logins             *prometheus.CounterVec
	tokenRejections    *prometheus.CounterVec
	sweepDeleted       prometheus.Counter
	sweepFailures      prometheus.Counter
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		brainstormRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_brainstorm_runs_total",
			Help: "ブレインストーミング実行の結果別合計数",
		}, []string{"outcome"}),
		brainstormDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ideaforge_brainstorm_duration_seconds",
			Help:    "ブレインストーミング1回分の所要時間（秒）",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_brainstorm_step_failures_total",
			Help: "プロトコルのステップ別失敗数",
		}, []string{"step"}),
		ideasPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaforge_ideas_persisted_total",
			Help: "保存されたアイデアの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_logins_total",
			Help: "プロバイダー・結果別のログイン数",
		}, []string{"provider", "outcome"}),
		tokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_token_rejections_total",
			Help: "理由別のトークン検証失敗数",
		}, []string{"reason"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaforge_sweep_deleted_total",
			Help: "保持期間超過で削除されたゲストアイデアの合計数",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideaforge_sweep_failures_total",
			Help: "削除ジョブの失敗数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideaforge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.brainstormRuns,
		c.brainstormDuration,
		c.stepFailures,
		c.ideasPersisted,
		c.logins,
		c.tokenRejections,
		c.sweepDeleted,
		c.sweepFailures,
		c.httpStatus,
	)

	return c
}

// RecordBrainstormRun はブレインストーミング1回分の結果と所要時間を記録する。
func (c *Collector) RecordBrainstormRun(outcome string, duration time.Duration) {
	c.brainstormRuns.WithLabelValues(outcome).Inc()
	c.brainstormDuration.Observe(duration.Seconds())
}

// RecordBrainstormStepFailure はステップの失敗を記録する。
func (c *Collector) RecordBrainstormStepFailure(step string) {
	c.stepFailures.WithLabelValues(step).Inc()
}

// RecordIdeasPersisted は保存されたアイデア数を記録する。
func (c *Collector) RecordIdeasPersisted(count int) {
	c.ideasPersisted.Add(float64(count))
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(provider, outcome string) {
	c.logins.WithLabelValues(provider, outcome).Inc()
}

// RecordTokenRejected はトークン検証失敗を記録する。
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokenRejections.WithLabelValues(reason).Inc()
}

// RecordSweep は削除ジョブの結果を記録する。
func (c *Collector) RecordSweep(deleted int64, err error) {
	if err != nil {
		c.sweepFailures.Inc()
		return
	}
	c.sweepDeleted.Add(float64(deleted))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても取得できたメトリクスは返し、失敗はslogに出力する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
