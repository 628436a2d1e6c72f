// internal/agent/state_detector.go
package agent

import (
	"time"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// StateDetector decides whether the page changed enough since the last
// capture to be worth a new observation.
type StateDetector struct {
	interval time.Duration
}

// NewStateDetector returns a detector that also fires once interval has
// elapsed since the previous capture.
func NewStateDetector(interval time.Duration) *StateDetector {
	return &StateDetector{interval: interval}
}

// IsSignificant is true when the URL changed, the modal flag flipped against
// the one recorded on prev, or more than the interval passed since prev was captured.
func (d *StateDetector) IsSignificant(hasModal bool, url string, prev schemas.Observation, now time.Time) bool {
	if url != prev.URL {
		return true
	}
	if hasModal != prev.HasModal() {
		return true
	}
	return now.Sub(prev.CapturedAt) > d.interval
}
