package control

import "time"

// Published represents a notification from a publisher about a status
// update it has emitted
type Published struct {
	// PublisherID is the unique identifier of the publisher
	PublisherID string `json:"pub_id"`

	// Idx is the sequence index of the status update
	Idx uint64 `json:"idx"`

	// Timestamp is the generation time of the status update
	Timestamp time.Time `json:"timestamp"`
}

// Progress is the measurement state of the subscriber
type Progress struct {
	Policy   string `json:"policy"`
	RunIndex int    `json:"run_index"`
	Samples  int    `json:"samples"`
	Dropped  int    `json:"dropped"`
	Target   int    `json:"target"`
	Complete bool   `json:"complete"`

	Publishers map[string]PublisherProgress `json:"publishers,omitempty"`
}

type PublisherProgress struct {
	Published   uint64 `json:"published"`
	Received    uint64 `json:"received"`
	Duplicates  uint64 `json:"duplicates"`
	Undelivered uint   `json:"undelivered"`
}

// ProgressFunc reports the live measurement state
type ProgressFunc func() Progress
