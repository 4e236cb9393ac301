package subscriber

import (
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
)

// Session is the measurement state of one run. It is owned by the
// measurement goroutine and never shared.
type Session struct {
	prevGenerated time.Time
	hasPrev       bool
}

// Measure computes the PAoI for an update generated at generated and
// observed at now, then moves the baseline to generated. The first update
// only sets the baseline and reports ok=false.
//
// In add mode the service delay and the simulation offset are added to the
// age instead of being slept.
func (s *Session) Measure(run config.Run, generated, now time.Time, delay time.Duration) (paoi time.Duration, ok bool) {
	prev, had := s.prevGenerated, s.hasPrev
	s.prevGenerated = generated
	s.hasPrev = true

	if !had {
		return 0, false
	}

	paoi = now.Sub(prev)
	if run.ServiceMode == config.ServiceModeAdd {
		paoi += delay + run.SimOffset
	}
	return paoi, true
}
