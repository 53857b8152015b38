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
// バックエンド呼び出し・取得キャッシュ・アップロード・セッション警告を記録する。
type Collector struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheDedupes    *prometheus.CounterVec
	staleDiscards   *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	sessionWarnings prometheus.Counter
	workspaces      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markboard_backend_requests_total",
			Help: "エンドポイント・ステータスコード別のバックエンド呼び出し数",
		}, []string{"endpoint", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "markboard_backend_request_duration_seconds",
			Help:    "バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markboard_query_cache_hits_total",
			Help: "キャッシュから返した取得の数",
		}, []string{"endpoint"}),
		cacheDedupes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markboard_query_dedupes_total",
			Help: "実行中のリクエストに相乗りした取得の数",
		}, []string{"endpoint"}),
		staleDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markboard_query_stale_discards_total",
			Help: "無効化後に完了し破棄された結果の数",
		}, []string{"endpoint"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markboard_uploads_total",
			Help: "結果別のアップロード数",
		}, []string{"outcome"}),
		sessionWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "markboard_session_warnings_total",
			Help: "セッション終了警告の表示数",
		}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "markboard_workspaces",
			Help: "保持しているワークスペース数",
		}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.cacheHits,
		c.cacheDedupes,
		c.staleDiscards,
		c.uploads,
		c.sessionWarnings,
		c.workspaces,
	)

	return c
}

// RecordBackendRequest はバックエンド呼び出しを記録する。通信エラーはステータス0として記録する。
func (c *Collector) RecordBackendRequest(endpoint string, statusCode int, duration time.Duration) {
	c.backendRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(endpoint string) {
	c.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheDedupe はリクエストの相乗りを記録する。
func (c *Collector) RecordCacheDedupe(endpoint string) {
	c.cacheDedupes.WithLabelValues(endpoint).Inc()
}

// RecordStaleDiscard は破棄した古い結果を記録する。
func (c *Collector) RecordStaleDiscard(endpoint string) {
	c.staleDiscards.WithLabelValues(endpoint).Inc()
}

// RecordUpload はアップロードの結果を記録する。
func (c *Collector) RecordUpload(outcome string) {
	c.uploads.WithLabelValues(outcome).Inc()
}

// RecordSessionWarning はセッション終了警告を記録する。
func (c *Collector) RecordSessionWarning() {
	c.sessionWarnings.Inc()
}

// SetWorkspaces はワークスペース数を記録する。
func (c *Collector) SetWorkspaces(n int) {
	c.workspaces.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
