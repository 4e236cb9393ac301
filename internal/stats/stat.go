package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

type Stat interface {
	Incr(delta uint64)
	Value() uint64
}

type stat struct {
	statType StatType

	value atomic.Uint64

	lastReportMut   sync.Mutex
	lastReportValue uint64
	lastReportTime  time.Time
}

func (s *stat) Incr(delta uint64) {
	s.value.Add(delta)
}

func (s *stat) Value() uint64 {
	return s.value.Load()
}

type StatType int

const (
	StatUpdatesPublished StatType = iota
	StatPublishErrors
	StatAcksReceived
	StatAckTimeouts
	StatUpdatesReceived
	StatSamplesLogged
	StatSamplesDropped
	StatAcksSent
	StatPointsSent
	StatBatchesSent
	StatBytesSent
	StatExportErrors
)

func (s StatType) String() string {
	switch s {
	case StatUpdatesPublished:
		return "updates_published"
	case StatPublishErrors:
		return "publish_errors"
	case StatAcksReceived:
		return "acks_received"
	case StatAckTimeouts:
		return "ack_timeouts"
	case StatUpdatesReceived:
		return "updates_received"
	case StatSamplesLogged:
		return "samples_logged"
	case StatSamplesDropped:
		return "samples_dropped"
	case StatAcksSent:
		return "acks_sent"
	case StatPointsSent:
		return "points_sent"
	case StatBatchesSent:
		return "batches_sent"
	case StatBytesSent:
		return "bytes_sent"
	case StatExportErrors:
		return "export_errors"
	default:
		return "unknown"
	}
}

func (s StatType) desc() string {
	switch s {
	case StatUpdatesPublished:
		return "published"
	case StatPublishErrors:
		return "pub_errors"
	case StatAcksReceived:
		return "acks"
	case StatAckTimeouts:
		return "ack_timeouts"
	case StatUpdatesReceived:
		return "received"
	case StatSamplesLogged:
		return "samples"
	case StatSamplesDropped:
		return "dropped"
	case StatAcksSent:
		return "acks_sent"
	case StatPointsSent:
		return "points"
	case StatBatchesSent:
		return "batches"
	case StatBytesSent:
		return "bytes"
	case StatExportErrors:
		return "export_errors"
	default:
		return ""
	}
}

func (s StatType) unit() string {
	switch s {
	case StatUpdatesPublished, StatUpdatesReceived:
		return "updates"
	case StatAcksReceived, StatAcksSent:
		return "acks"
	case StatSamplesLogged, StatSamplesDropped:
		return "samples"
	case StatPublishErrors, StatAckTimeouts, StatExportErrors:
		return "events"
	case StatPointsSent:
		return "points"
	case StatBatchesSent:
		return "batches"
	case StatBytesSent:
		return "bytes"
	default:
		return ""
	}
}
