package detect

import "time"

// Window and sustained state is keyed by (rule id, event source) so that
// independent sources never share a clock or a count.
type stateKey struct {
	ruleID string
	source string
}

// sustainedMark tracks how long a sustained condition has been continuously
// true for one (rule, source) pair.
type sustainedMark struct {
	since    time.Time // start of the current continuous stretch
	lastSeen time.Time // timestamp of the last observation that held
	set      bool
}

// timestampRing is a fixed-capacity ring of qualifying-event timestamps for a
// window condition. Capacity is sized to the rule's count threshold, so the
// state per (rule, source) is bounded regardless of event rate.
type timestampRing struct {
	buf   []time.Time
	head  int // index of the oldest entry
	count int
}

func newTimestampRing(capacity int) *timestampRing {
	if capacity < 1 {
		capacity = 1
	}
	return &timestampRing{buf: make([]time.Time, capacity)}
}

// add appends a timestamp, evicting the oldest entry when full. Eviction is
// harmless: a full ring already holds enough entries to satisfy the
// threshold, and the evicted entry is the first to age out anyway.
func (r *timestampRing) add(t time.Time) {
	if r.count == len(r.buf) {
		r.buf[r.head] = t
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.count)%len(r.buf)] = t
	r.count++
}

// pruneBefore drops entries older than the cutoff.
func (r *timestampRing) pruneBefore(cutoff time.Time) {
	for r.count > 0 && r.buf[r.head].Before(cutoff) {
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
}

// clear empties the ring, preventing immediate re-triggering on the burst
// that just fired.
func (r *timestampRing) clear() {
	r.head = 0
	r.count = 0
}

func (r *timestampRing) len() int {
	return r.count
}
