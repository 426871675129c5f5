package zcache

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the read-only observability surface described in spec.md §6:
// counters for pool pages, stored pages, outstanding writebacks, pages
// written back, duplicates, and each rejection reason, plus the
// writeback-recovered-store counter SPEC_FULL.md's SUPPLEMENTED FEATURES adds.
type Metrics struct {
	PoolPages            prometheus.GaugeFunc
	StoredPages          prometheus.GaugeFunc
	Outstanding          prometheus.GaugeFunc
	WrittenBack          prometheus.Counter
	Duplicates           prometheus.Counter
	RecoveredByWriteback prometheus.Counter

	Rejections *prometheus.CounterVec

	// compressedSize tracks the distribution of compressed-object sizes
	// across every successful store, for operators sizing max_pool_percent
	// and max_compression_ratio. Not exported to Prometheus directly — its
	// percentiles are read out on demand via CompressedSizePercentile (used
	// by cmd/zcachectl).
	compressedSize *hdrhistogram.Histogram
}

// RejectReason enumerates spec.md §6's rejection reasons surfaced to the
// store caller, plus RejectThrottled (see SPEC_FULL.md's SUPPLEMENTED
// FEATURES), which is not one of the reasons spec.md §6 names.
type RejectReason string

const (
	RejectNoDevice       RejectReason = "no_device"
	RejectEntryAlloc     RejectReason = "entry_alloc"
	RejectCodecFailure   RejectReason = "codec_failure"
	RejectRatio          RejectReason = "ratio"
	RejectSpareExhausted RejectReason = "spare_exhausted"
	RejectNoSpacePre     RejectReason = "no_space_pre_writeback"
	RejectNoSpacePost    RejectReason = "no_space_post_writeback"
	RejectThrottled      RejectReason = "writeback_throttled"
)

// NewMetrics constructs a Metrics bound to reg, or to a private registry if
// reg is nil (useful for tests that don't want global registration). The
// three gauges are sampled on demand from the live cache state via
// GaugeFunc (poolPages, storedPages, outstanding), the same pattern the
// Go Prometheus client uses for runtime stats it doesn't want to maintain
// incrementally — it avoids the double-accounting risk of keeping a
// separate running counter in sync with the Index/pool's own bookkeeping.
func NewMetrics(reg prometheus.Registerer, poolPages, storedPages, outstanding func() float64) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		PoolPages: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "zcache", Name: "pool_pages", Help: "Live pages owned by the compressed object stores.",
		}, poolPages),
		StoredPages: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "zcache", Name: "stored_pages", Help: "Live entries across all swap types.",
		}, storedPages),
		Outstanding: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "zcache", Name: "outstanding_writebacks", Help: "In-flight writeback page writes.",
		}, outstanding),
		WrittenBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zcache", Name: "written_back_total", Help: "Pages freed by a completed writeback.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zcache", Name: "duplicates_total", Help: "Stores that replaced a live entry at the same offset.",
		}),
		RecoveredByWriteback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zcache", Name: "recovered_by_writeback_total",
			Help: "Stores that failed COS allocation once, triggered writeback, and then succeeded.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zcache", Name: "rejections_total", Help: "Store rejections by reason.",
		}, []string{"reason"}),
		compressedSize: hdrhistogram.New(1, 4096, 3),
	}
	reg.MustRegister(m.PoolPages, m.StoredPages, m.Outstanding, m.WrittenBack,
		m.Duplicates, m.RecoveredByWriteback, m.Rejections)
	return m
}

func (m *Metrics) recordReject(r RejectReason) {
	m.Rejections.WithLabelValues(string(r)).Inc()
}

func (m *Metrics) recordCompressedSize(n int) {
	_ = m.compressedSize.RecordValue(int64(n))
}

// CompressedSizePercentile reports the p-th percentile (0-100) of compressed
// object sizes observed so far.
func (m *Metrics) CompressedSizePercentile(p float64) int64 {
	return m.compressedSize.ValueAtPercentile(p)
}
