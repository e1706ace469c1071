package alerts

import "tank-monitor-service/internal/models"

// Evaluator decides whether a device's current reading should raise an
// automatic alert. It is stateless and runs on every poll cycle for every
// visible device, so it must stay cheap and free of side effects; raising the
// alert itself is the Service's job.
type Evaluator struct {
	// Threshold is the measurement percentage above which the automatic
	// path fires. The observed dashboard behavior notifies on HIGH fill
	// (measurement > 65), not low; the direction is kept as-is pending
	// product clarification.
	Threshold float64
}

// ShouldNotify reports whether the device's reading crosses the automatic
// alert threshold. Out-of-range measurements are not clamped here; display
// clamping belongs to the UI.
func (e Evaluator) ShouldNotify(d models.Device) bool {
	return d.Measurement > e.Threshold
}

// ShouldNotifyLevel is ShouldNotify for a bare measurement value, used by the
// ingestion paths that carry readings instead of full device rows.
func (e Evaluator) ShouldNotifyLevel(measurement float64) bool {
	return measurement > e.Threshold
}
