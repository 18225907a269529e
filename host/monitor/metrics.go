package monitor

import (
	"inverter/host/metrics"
)

const (
	subSystem = "monitor"
)

var (
	// Valid frames received
	framesTotal = metrics.MustRegisterCounter(subSystem,
		"frames_total",
		"Number of valid frames received")

	// Frames dropped by the decoder
	frameErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"frame_errors_total",
		"Number of frames dropped by the decoder",
		"kind")

	// Reports checked
	reportsTotal = metrics.MustRegisterCounterVec(subSystem,
		"reports_total",
		"Number of startup reports checked",
		"result")

	// Values that differed from the host computation
	mismatchesTotal = metrics.MustRegisterCounter(subSystem,
		"mismatches_total",
		"Number of reported values that differ from the host computation")
)
