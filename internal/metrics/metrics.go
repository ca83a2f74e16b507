// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// オラクル、タスクサービス、リマインダーワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOracleCall(kind, outcome string, duration time.Duration)
	RecordPointsAwarded(points int)
	RecordPointsReversed(points int)
	RecordReminderSent()
	RecordReminderFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	oracleCalls     *prometheus.CounterVec
	oracleLatency   *prometheus.HistogramVec
	tasksCompleted  prometheus.Counter
	pointsAwarded   prometheus.Counter
	pointsReversed  prometheus.Counter
	remindersSent   prometheus.Counter
	reminderFailure prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_oracle_calls_total",
			Help: "オラクル呼び出しの種別・結果別の合計数",
		}, []string{"kind", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowstate_oracle_latency_seconds",
			Help:    "オラクル呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_tasks_completed_total",
			Help: "完了したタスクの合計数",
		}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_points_awarded_total",
			Help: "タスク完了で加算されたポイントの合計",
		}),
		pointsReversed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_points_reversed_total",
			Help: "完了済みタスク削除で減算されたポイントの合計",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_reminders_sent_total",
			Help: "送信したリマインダーの合計数",
		}),
		reminderFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_reminder_failures_total",
			Help: "リマインダー送信失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.oracleCalls,
		c.oracleLatency,
		c.tasksCompleted,
		c.pointsAwarded,
		c.pointsReversed,
		c.remindersSent,
		c.reminderFailure,
		c.httpStatus,
	)

	return c
}

// RecordOracleCall はオラクル呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordOracleCall(kind, outcome string, duration time.Duration) {
	c.oracleCalls.WithLabelValues(kind, outcome).Inc()
	c.oracleLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPointsAwarded はタスク完了と加算ポイントを記録する。
func (c *Collector) RecordPointsAwarded(points int) {
	c.tasksCompleted.Inc()
	c.pointsAwarded.Add(float64(points))
}

// RecordPointsReversed は減算ポイントを記録する。
func (c *Collector) RecordPointsReversed(points int) {
	if points <= 0 {
		return
	}
	c.pointsReversed.Add(float64(points))
}

// RecordReminderSent はリマインダー送信成功を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// RecordReminderFailure はリマインダー送信失敗を記録する。
func (c *Collector) RecordReminderFailure() {
	c.reminderFailure.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
