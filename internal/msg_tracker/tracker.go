package msg_tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RangeLen is the number of sequence indices tracked by one block.
const RangeLen = 1024

// indexRange tracks a block of sequence indices starting at StartIdx. Each
// index keeps the time it was reported published and a received bit.
type indexRange struct {
	sync.RWMutex
	StartIdx      uint64
	ReceivedCount uint
	DuplicateCnt  uint
	published     []int64  // unix nanos, 0 when not reported
	received      []uint64 // bitmap, each uint64 holds 64 bits
}

type ReceiveResult struct {
	Dup bool
	New bool
}

func newIndexRange(startIdx uint64) *indexRange {
	return &indexRange{
		StartIdx:  startIdx,
		published: make([]int64, RangeLen),
		received:  make([]uint64, RangeLen/64),
	}
}

func (r *indexRange) offset(idx uint64) (uint64, bool) {
	if idx < r.StartIdx || idx >= r.StartIdx+RangeLen {
		return 0, false
	}
	return idx - r.StartIdx, true
}

func (r *indexRange) markPublished(idx uint64, at time.Time) bool {
	r.Lock()
	defer r.Unlock()

	off, ok := r.offset(idx)
	if !ok {
		return false
	}
	r.published[off] = at.UnixNano()
	return true
}

func (r *indexRange) markReceived(idx uint64) (ReceiveResult, bool) {
	var result ReceiveResult

	r.Lock()
	defer r.Unlock()

	off, ok := r.offset(idx)
	if !ok {
		return result, false
	}

	word, bit := off/64, off%64
	if r.received[word]&(1<<bit) != 0 {
		r.DuplicateCnt++
		result.Dup = true
	} else {
		r.received[word] |= 1 << bit
		r.ReceivedCount++
		result.New = true
	}
	return result, true
}

func (r *indexRange) isReceived(idx uint64) bool {
	r.RLock()
	defer r.RUnlock()

	off, ok := r.offset(idx)
	if !ok {
		return false
	}
	return r.received[off/64]&(1<<(off%64)) != 0
}

// undeliveredBefore counts published indices older than cutoff that were
// never received, and returns the oldest such publish time.
func (r *indexRange) undeliveredBefore(cutoff time.Time) (uint, time.Time) {
	r.RLock()
	defer r.RUnlock()

	var (
		count  uint
		oldest int64
	)
	c := cutoff.UnixNano()
	for off, ts := range r.published {
		if ts == 0 || ts >= c {
			continue
		}
		if r.received[off/64]&(1<<(uint(off)%64)) != 0 {
			continue
		}
		count++
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
	}

	if oldest == 0 {
		return count, time.Time{}
	}
	return count, time.Unix(0, oldest)
}

// publisherTracker holds every block for one publisher ID.
type publisherTracker struct {
	mu            sync.RWMutex
	totalPub      atomic.Uint64
	totalReceived atomic.Uint64
	totalDuped    atomic.Uint64
	ranges        map[uint64]*indexRange // key is the block start index
}

func newPublisherTracker() *publisherTracker {
	return &publisherTracker{
		ranges: make(map[uint64]*indexRange),
	}
}

func rangeStart(idx uint64) uint64 {
	return ((idx - 1) / RangeLen * RangeLen) + 1
}

func (pt *publisherTracker) rangeFor(idx uint64) *indexRange {
	start := rangeStart(idx)

	pt.mu.RLock()
	r, exists := pt.ranges[start]
	pt.mu.RUnlock()
	if exists {
		return r
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()
	if r, exists = pt.ranges[start]; !exists {
		r = newIndexRange(start)
		pt.ranges[start] = r
	}
	return r
}

// Report is the delivery summary of one publisher.
type Report struct {
	Published     uint64
	Received      uint64
	Duplicates    uint64
	Undelivered   uint
	OldestPending time.Time
}

// Tracker correlates indices reported by publishers with the status
// updates the subscriber actually received. Sequence indices start at 1.
type Tracker struct {
	mu         sync.RWMutex
	log        *zap.Logger
	publishers map[string]*publisherTracker
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		log:        log,
		publishers: make(map[string]*publisherTracker),
	}
}

func (t *Tracker) publisher(id string) *publisherTracker {
	t.mu.RLock()
	pt, exists := t.publishers[id]
	t.mu.RUnlock()
	if exists {
		return pt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if pt, exists = t.publishers[id]; !exists {
		pt = newPublisherTracker()
		t.publishers[id] = pt
	}
	return pt
}

// Published records that the publisher emitted idx at the given time.
func (t *Tracker) Published(publisherID string, idx uint64, at time.Time) {
	if idx == 0 {
		t.log.Warn("ignoring published notification with index 0", zap.String("pub_id", publisherID))
		return
	}

	pt := t.publisher(publisherID)
	if pt.rangeFor(idx).markPublished(idx, at) {
		pt.totalPub.Add(1)
	}
}

// Received records a delivered status update and reports whether it was
// seen before.
func (t *Tracker) Received(publisherID string, idx uint64) ReceiveResult {
	if idx == 0 {
		return ReceiveResult{}
	}

	pt := t.publisher(publisherID)
	result, ok := pt.rangeFor(idx).markReceived(idx)
	if !ok {
		return result
	}
	if result.Dup {
		pt.totalDuped.Add(1)
	} else {
		pt.totalReceived.Add(1)
	}
	return result
}

func (t *Tracker) IsReceived(publisherID string, idx uint64) bool {
	t.mu.RLock()
	pt, exists := t.publishers[publisherID]
	t.mu.RUnlock()
	if !exists || idx == 0 {
		return false
	}

	pt.mu.RLock()
	r, exists := pt.ranges[rangeStart(idx)]
	pt.mu.RUnlock()
	if !exists {
		return false
	}
	return r.isReceived(idx)
}

// Report summarizes every publisher. Undelivered only counts indices
// published before cutoff, so in-flight updates are not reported as lost.
func (t *Tracker) Report(cutoff time.Time) map[string]Report {
	t.mu.RLock()
	publishers := make(map[string]*publisherTracker, len(t.publishers))
	for k, v := range t.publishers {
		publishers[k] = v
	}
	t.mu.RUnlock()

	result := make(map[string]Report, len(publishers))
	for id, pt := range publishers {
		pt.mu.RLock()
		ranges := make([]*indexRange, 0, len(pt.ranges))
		for _, r := range pt.ranges {
			ranges = append(ranges, r)
		}
		pt.mu.RUnlock()

		rep := Report{
			Published:  pt.totalPub.Load(),
			Received:   pt.totalReceived.Load(),
			Duplicates: pt.totalDuped.Load(),
		}
		for _, r := range ranges {
			n, oldest := r.undeliveredBefore(cutoff)
			rep.Undelivered += n
			if !oldest.IsZero() && (rep.OldestPending.IsZero() || oldest.Before(rep.OldestPending)) {
				rep.OldestPending = oldest
			}
		}
		result[id] = rep
	}

	return result
}

// Reset forgets every publisher, for sweep points that restart indices
// under the same publisher ID.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.publishers = make(map[string]*publisherTracker)
}
