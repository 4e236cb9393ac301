package message

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// AckPayload acknowledges the last status update under the ZW policy
	AckPayload = "ACK"
	// DonePayload tells the publisher that the subscriber collected enough samples
	DonePayload = "DONE"
)

// StatusUpdate is the timestamped update emitted by the publisher.
type StatusUpdate struct {
	// GenerationTime is in seconds since the Unix epoch
	GenerationTime float64 `json:"generation_time"`
	Mu             float64 `json:"mu"`
	Lamb           float64 `json:"lamb"`
	Idx            uint64  `json:"idx"`
	PublisherID    string  `json:"pub_id,omitempty"`
}

func NewStatusUpdate(generated time.Time, mu, lamb float64, idx uint64, publisherID string) StatusUpdate {
	return StatusUpdate{
		GenerationTime: UnixSeconds(generated),
		Mu:             mu,
		Lamb:           lamb,
		Idx:            idx,
		PublisherID:    publisherID,
	}
}

func (s StatusUpdate) Generated() time.Time {
	sec, frac := math.Modf(s.GenerationTime)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (s StatusUpdate) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func ParseStatusUpdate(payload []byte) (StatusUpdate, error) {
	var s StatusUpdate
	if err := json.Unmarshal(payload, &s); err != nil {
		return s, fmt.Errorf("decode status update: %w", err)
	}
	if s.Idx == 0 {
		return s, fmt.Errorf("decode status update: idx must be >= 1")
	}
	if s.Mu <= 0 {
		return s, fmt.Errorf("decode status update: mu must be > 0, got %v", s.Mu)
	}
	return s, nil
}

// Kind classifies a payload received on the ack topic.
type Kind int

const (
	KindUnknown Kind = iota
	KindAck
	KindDone
)

func Classify(payload []byte) Kind {
	switch string(payload) {
	case AckPayload:
		return KindAck
	case DonePayload:
		return KindDone
	default:
		return KindUnknown
	}
}

func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
