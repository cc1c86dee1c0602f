// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 同期処理、HTTPクライアント、ワーカーから利用する。
type Collector struct {
	outcomes       *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRunSuccess prometheus.Gauge
	runsSkipped    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_assignment_outcomes_total",
			Help: "課題ごとの処理結果の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_http_status_total",
			Help: "接続先・HTTPステータスコード別のレスポンス数",
		}, []string{"service", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursesync_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursesync_runs_total",
			Help: "同期の実行回数",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursesync_run_duration_seconds",
			Help:    "1回の同期にかかった時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coursesync_last_run_success_timestamp_seconds",
			Help: "最後に成功した同期の完了時刻（UNIX秒）",
		}),
		runsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursesync_runs_skipped_total",
			Help: "前回の同期が実行中のためスキップした回数",
		}),
	}

	reg.MustRegister(
		c.outcomes,
		c.httpStatus,
		c.requestLatency,
		c.runs,
		c.runDuration,
		c.lastRunSuccess,
		c.runsSkipped,
	)

	return c
}

// RecordOutcome は課題1件の処理結果を記録する。
func (c *Collector) RecordOutcome(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(service string, statusCode int) {
	c.httpStatus.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(service string, duration time.Duration) {
	c.requestLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRun は同期1回の結果を記録する。errがnilなら成功として扱う。
func (c *Collector) RecordRun(duration time.Duration, err error) {
	c.runDuration.Observe(duration.Seconds())
	if err != nil {
		c.runs.WithLabelValues("failure").Inc()
		return
	}
	c.runs.WithLabelValues("success").Inc()
	c.lastRunSuccess.SetToCurrentTime()
}

// RecordRunSkipped は実行中のためスキップした同期を記録する。
func (c *Collector) RecordRunSkipped() {
	c.runsSkipped.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
