// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry 服务专用的指标注册表
	Registry = prometheus.NewRegistry()

	// HTTPRequests HTTP请求计数
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shangmen_http_requests_total", Help: "HTTP请求总数"},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration HTTP请求延迟
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shangmen_http_request_duration_seconds",
			Help:    "HTTP请求延迟（秒）",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Validations 解验证次数，按结果分类
	Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shangmen_validations_total", Help: "解验证次数"},
		[]string{"status"}, // valid/invalid/error/cached
	)
	// ValidationDuration 解验证耗时
	ValidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shangmen_validation_duration_seconds",
			Help:    "解验证耗时（秒）",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	// InstanceValidations 实例校验次数，按结果分类
	InstanceValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shangmen_instance_validations_total", Help: "实例校验次数"},
		[]string{"status"},
	)
)

var regOnce sync.Once

// Register 注册全部指标，重复调用安全
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Validations)
		Registry.MustRegister(ValidationDuration)
		Registry.MustRegister(InstanceValidations)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler 返回指标端点处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequest 记录一次HTTP请求
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordValidation 记录一次解验证
func RecordValidation(status string, duration time.Duration) {
	Validations.WithLabelValues(status).Inc()
	ValidationDuration.Observe(duration.Seconds())
}

// httpStatusLabel 状态码转标签
func httpStatusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
