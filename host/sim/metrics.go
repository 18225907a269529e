package sim

import (
	"inverter/core"
	"inverter/host/metrics"
)

const (
	subSystem = "sim"
)

var (
	// Cadence callbacks run
	ticksTotal = metrics.MustRegisterCounter(subSystem,
		"ticks_total",
		"Number of cadence ticks")

	// Triples pushed to the comparator
	appliedTotal = metrics.MustRegisterCounter(subSystem,
		"applied_total",
		"Number of duty triples applied")

	// Triples replaced before they were applied
	overrunsTotal = metrics.MustRegisterCounter(subSystem,
		"overruns_total",
		"Number of duty triples overwritten before the applier consumed them")

	// Samples pulled into range
	clampedTotal = metrics.MustRegisterCounter(subSystem,
		"clamped_total",
		"Number of samples clamped to [0, max compare]")

	// Last compare value per phase
	compareGauge = metrics.MustRegisterGaugeVec(subSystem,
		"compare_value",
		"Last compare value written to a phase comparator",
		"phase")

	// Current table index
	indexGauge = metrics.MustRegisterGauge(subSystem,
		"table_index",
		"Current sine table index")
)

var phaseNames = [...]string{"u", "v", "w"}

// metricsExporter turns modulator counter snapshots into metric updates
type metricsExporter struct {
	last struct {
		ticks, applied, overruns, clamped uint32
	}
}

func (e *metricsExporter) export(s core.Stats) {
	ticksTotal.Add(float64(s.Ticks - e.last.ticks))
	appliedTotal.Add(float64(s.Applied - e.last.applied))
	overrunsTotal.Add(float64(s.Overruns - e.last.overruns))
	clampedTotal.Add(float64(s.Clamped - e.last.clamped))
	e.last.ticks, e.last.applied = s.Ticks, s.Applied
	e.last.overruns, e.last.clamped = s.Overruns, s.Clamped

	for ch, v := range s.Compare {
		compareGauge.WithLabelValues(phaseNames[ch]).Set(float64(v))
	}
	indexGauge.Set(float64(s.Index))
}
