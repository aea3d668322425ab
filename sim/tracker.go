package sim

// Tracker counts request outcomes over one simulation run.
type Tracker struct {
	counts map[string]int
}

// NewTracker returns a tracker with zeroed counters.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset zeroes every counter.
func (t *Tracker) Reset() {
	t.counts = map[string]int{
		"requests": 0,
		"accepted": 0,
		"rejected": 0,
	}
}

// Record adds count to a known label; unknown labels are ignored.
func (t *Tracker) Record(label string, count int) {
	if _, ok := t.counts[label]; ok {
		t.counts[label] += count
	}
}

// HasPending reports requests that have arrived but have no recorded
// outcome yet.
func (t *Tracker) HasPending() bool {
	return t.counts["requests"]-t.counts["accepted"]-t.counts["rejected"] > 0
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
