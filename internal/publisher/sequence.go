package publisher

import (
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/control"
)

// Notifier receives every emitted sequence index, e.g. a control client.
type Notifier interface {
	Notify(pub control.Published)
}

// Sequence hands out strictly increasing status update indices starting
// at 1 and reports each one to the notifier, if any.
type Sequence struct {
	publisherID string
	next        uint64
	notifier    Notifier
}

func NewSequence(publisherID string, notifier Notifier) *Sequence {
	return &Sequence{
		publisherID: publisherID,
		next:        1,
		notifier:    notifier,
	}
}

func (s *Sequence) Next(at time.Time) uint64 {
	idx := s.next
	s.next++

	if s.notifier != nil {
		s.notifier.Notify(control.Published{
			PublisherID: s.publisherID,
			Idx:         idx,
			Timestamp:   at,
		})
	}

	return idx
}
