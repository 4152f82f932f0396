package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签取值
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultExhausted = "exhausted"
	ResultRejected  = "rejected"
	ResultCredited  = "credited"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
)

// EngineMetrics 发码引擎指标，nil 接收者上的调用为空操作
type EngineMetrics struct {
	CodesGenerated     *prometheus.CounterVec
	CodePersistFailure prometheus.Counter
	BatchSync          *prometheus.CounterVec
	Replenishments     prometheus.Counter
	Reveals            *prometheus.CounterVec
	Redemptions        *prometheus.CounterVec
	PlatformLatency    *prometheus.HistogramVec
}

// NewEngineMetrics 在指定注册器上创建指标
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		CodesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discount_codes_generated_total",
				Help: "Discount codes persisted, by batch kind",
			},
			[]string{"kind"},
		),
		CodePersistFailure: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "discount_code_persist_failures_total",
				Help: "Discount codes that could not be persisted",
			},
		),
		BatchSync: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discount_batch_sync_total",
				Help: "Batch pushes to the promotion platform, by result",
			},
			[]string{"result"},
		),
		Replenishments: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "discount_replenishments_total",
				Help: "Supplemental batches triggered by utilization",
			},
		),
		Reveals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discount_reveals_total",
				Help: "Storefront reveal requests, by result",
			},
			[]string{"result"},
		),
		Redemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discount_redemptions_total",
				Help: "Order code redemptions, by result",
			},
			[]string{"result"},
		),
		PlatformLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discount_platform_sync_seconds",
				Help:    "Latency of batch pushes to the promotion platform",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
	}
}

// CodeGenerated 记录生成的码
func (m *EngineMetrics) CodeGenerated(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CodesGenerated.WithLabelValues(kind).Add(float64(n))
}

// PersistFailed 记录落库失败
func (m *EngineMetrics) PersistFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CodePersistFailure.Add(float64(n))
}

// BatchSynced 记录批次同步结果及耗时
func (m *EngineMetrics) BatchSynced(result string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchSync.WithLabelValues(result).Inc()
	m.PlatformLatency.WithLabelValues(result).Observe(seconds)
}

// Replenished 记录一次补码
func (m *EngineMetrics) Replenished() {
	if m == nil {
		return
	}
	m.Replenishments.Inc()
}

// Revealed 记录揭示结果
func (m *EngineMetrics) Revealed(result string) {
	if m == nil {
		return
	}
	m.Reveals.WithLabelValues(result).Inc()
}

// Redeemed 记录核销结果
func (m *EngineMetrics) Redeemed(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Redemptions.WithLabelValues(result).Add(float64(n))
}
