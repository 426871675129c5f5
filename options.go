package zcache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsenning/zcache/internal/codec"
)

// Options configures a Cache. New replaces every zero-valued numeric,
// string and Logger field with its DefaultOptions value. WritebackEnabled
// is a plain bool and is not defaulted, so a zero Options has writeback
// disabled.
type Options struct {
	// MaxPoolPercent bounds live pool pages as a percentage of total RAM
	// pages (spec.md §6 tunable, default 50).
	MaxPoolPercent int
	// MaxCompressionRatio rejects a store whose compressed size exceeds
	// this percentage of a page (spec.md §6 tunable, default 80).
	MaxCompressionRatio int
	// WritebackEnabled mirrors the original driver's compile-time flag
	// (spec.md §6); when false, COS allocation failure is an immediate
	// rejection rather than triggering a writeback-and-retry.
	WritebackEnabled bool
	// Compressor names the preferred codec (spec.md §6 boot-time tunable);
	// falls back to codec.DefaultName if unavailable.
	Compressor string
	// WritebackBatchSize is the "up to n" of writeback_batch (spec.md §4.9,
	// §9 open question; default 16).
	WritebackBatchSize int
	// MaxOutstandingWritebacks is the in-flight writeback ceiling (spec.md
	// §4.9 step 1, §9 open question; default 64). It applies to each swap
	// type's writeback engine separately; it is not a single limit shared
	// across swap types.
	MaxOutstandingWritebacks int64
	// ScratchSpareCapacity sizes the spare scratch-buffer pool (spec.md
	// §4.3; "a handful is typical").
	ScratchSpareCapacity int
	// Logger receives diagnostic messages. Defaults to DefaultLogger.
	Logger Logger
	// MetricsRegisterer is the Prometheus registry Metrics binds to.
	// Defaults to a private registry.
	MetricsRegisterer prometheus.Registerer
	// TotalRAMPages overrides internal/pagepool's auto-detected physical
	// RAM size, in PageSize units. Zero means auto-detect. Embedders that
	// already know their memory budget (e.g. a container RAM limit that
	// doesn't match host-visible Sysinfo) and tests that need a
	// deterministic pool ceiling both set this explicitly.
	TotalRAMPages int64
	// WritebackTriggerRate and WritebackTriggerBurst bound how often a
	// COS allocation failure may trigger a writeback batch
	// (internal/throttle), independent of the in-flight writeback ceiling.
	// A burst of concurrent stores that all miss allocation still only
	// pays for a handful of full batch walks rather than one per store.
	WritebackTriggerRate  float64
	WritebackTriggerBurst float64
}

// DefaultOptions returns the spec-documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxPoolPercent:           50,
		MaxCompressionRatio:      80,
		WritebackEnabled:         true,
		Compressor:               codec.DefaultName,
		WritebackBatchSize:       16,
		MaxOutstandingWritebacks: 64,
		ScratchSpareCapacity:     16,
		Logger:                   DefaultLogger{},
		WritebackTriggerRate:     50,
		WritebackTriggerBurst:    50,
	}
}

func (o *Options) ensureDefaults() {
	d := DefaultOptions()
	if o.MaxPoolPercent <= 0 {
		o.MaxPoolPercent = d.MaxPoolPercent
	}
	if o.MaxCompressionRatio <= 0 {
		o.MaxCompressionRatio = d.MaxCompressionRatio
	}
	if o.Compressor == "" {
		o.Compressor = d.Compressor
	}
	if o.WritebackBatchSize <= 0 {
		o.WritebackBatchSize = d.WritebackBatchSize
	}
	if o.MaxOutstandingWritebacks <= 0 {
		o.MaxOutstandingWritebacks = d.MaxOutstandingWritebacks
	}
	if o.ScratchSpareCapacity <= 0 {
		o.ScratchSpareCapacity = d.ScratchSpareCapacity
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.WritebackTriggerRate <= 0 {
		o.WritebackTriggerRate = d.WritebackTriggerRate
	}
	if o.WritebackTriggerBurst <= 0 {
		o.WritebackTriggerBurst = d.WritebackTriggerBurst
	}
}
