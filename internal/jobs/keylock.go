package jobs

import "sync"

// jobKey identifies the output a job writes: encodes of one video share the
// rendition directories, thumbnails share the poster file.
type jobKey struct {
	videoID int64
	kind    Kind
}

func keyOf(j Job) jobKey { return jobKey{videoID: j.VideoID, kind: j.Kind} }

// handoff serializes deliveries per key without parking workers. A delivery
// whose key is busy is queued behind the current holder, which runs it next.
// Entries are dropped once idle so the map does not grow with the number of
// videos ever seen.
type handoff struct {
	mu      sync.Mutex
	waiting map[jobKey][]*Delivery
}

func newHandoff() *handoff {
	return &handoff{waiting: make(map[jobKey][]*Delivery)}
}

// claim makes the caller the holder of key and returns true, or queues d
// behind the current holder and returns false.
func (h *handoff) claim(key jobKey, d *Delivery) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if q, busy := h.waiting[key]; busy {
		h.waiting[key] = append(q, d)
		return false
	}
	h.waiting[key] = nil
	return true
}

// next returns the following delivery for key, or nil after releasing it.
func (h *handoff) next(key jobKey) *Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.waiting[key]
	if len(q) == 0 {
		delete(h.waiting, key)
		return nil
	}
	d := q[0]
	q[0] = nil
	h.waiting[key] = q[1:]
	return d
}

// release gives up key and returns the deliveries still queued behind it.
func (h *handoff) release(key jobKey) []*Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.waiting[key]
	delete(h.waiting, key)
	return q
}

func (h *handoff) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiting)
}
