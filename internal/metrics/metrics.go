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
// ガード、サービス層、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordGuardOutcome(class, outcome string)
	RecordSessionOp(operation, result string)
	RecordLogin(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	guardOutcome   *prometheus.CounterVec
	sessionOps     *prometheus.CounterVec
	logins         *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		guardOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionboard_guard_outcome_total",
			Help: "ルートガードの判定結果別リクエスト数",
		}, []string{"class", "outcome"}),
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionboard_session_operations_total",
			Help: "セッション操作の結果別件数",
		}, []string{"operation", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionboard_logins_total",
			Help: "ログインコールバックの結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessionboard_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.guardOutcome,
		c.sessionOps,
		c.logins,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordGuardOutcome はルートガードの判定結果を記録する。
func (c *Collector) RecordGuardOutcome(class, outcome string) {
	c.guardOutcome.WithLabelValues(class, outcome).Inc()
}

// RecordSessionOp はセッション操作の結果を記録する。resultは"ok"またはエラーコード。
func (c *Collector) RecordSessionOp(operation, result string) {
	c.sessionOps.WithLabelValues(operation, result).Inc()
}

// RecordLogin はログインコールバックの結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordGuardOutcome(string, string)  {}
func (Nop) RecordSessionOp(string, string)     {}
func (Nop) RecordLogin(string)                 {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
