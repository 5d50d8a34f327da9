package tracker

import "time"

// Sample is one position observation. Immutable once constructed; the
// history owns it after append and readers always receive copies.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	RAHours    float64   `json:"ra_hours"`
	DecDegrees float64   `json:"dec_degrees"`
	Altitude   float64   `json:"altitude"`
	Azimuth    float64   `json:"azimuth"`
}

// history is a fixed-capacity FIFO of samples. It has no lock of its own:
// the tracker worker is the only writer and all access happens under the
// tracker's mutex.
type history struct {
	buf   []Sample
	head  int // next write position
	count int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]Sample, capacity)}
}

func (h *history) append(s Sample) {
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

func (h *history) len() int { return h.count }

// at returns the i-th sample in chronological order, 0 being the oldest.
func (h *history) at(i int) Sample {
	start := h.head - h.count
	if start < 0 {
		start += len(h.buf)
	}
	return h.buf[(start+i)%len(h.buf)]
}

func (h *history) oldest() (Sample, bool) {
	if h.count == 0 {
		return Sample{}, false
	}
	return h.at(0), true
}

func (h *history) newest() (Sample, bool) {
	if h.count == 0 {
		return Sample{}, false
	}
	return h.at(h.count - 1), true
}

// snapshot copies samples oldest to newest. A positive limit keeps only the
// most recent limit samples; a non-zero since drops samples at or before it.
func (h *history) snapshot(limit int, since time.Time) []Sample {
	out := make([]Sample, 0, h.count)
	for i := 0; i < h.count; i++ {
		s := h.at(i)
		if !since.IsZero() && !s.Timestamp.After(since) {
			continue
		}
		out = append(out, s)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
