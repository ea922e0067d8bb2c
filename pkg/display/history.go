package display

import "sync"

// DefaultHistorySize is the number of points kept by the scroll plot.
const DefaultHistorySize = 100

// Point is one entry of the scroll history.
type Point struct {
	Index int
	Value float64
}

// History is a fixed-capacity FIFO of points with auto-incrementing indices.
// Internally a ring buffer; Points returns the entries oldest first.
type History struct {
	mu    sync.RWMutex
	buf   []Point
	head  int // Position of the oldest entry
	count int
	next  int // Index assigned to the next appended value
}

// NewHistory creates an empty history. A non-positive capacity selects
// DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Point, capacity)}
}

// Append stores v under the next index, evicting the oldest point when full.
func (h *History) Append(v float64) Point {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := Point{Index: h.next, Value: v}
	h.next++

	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = p
		h.count++
		return p
	}
	h.buf[h.head] = p
	h.head = (h.head + 1) % len(h.buf)
	return p
}

// Points returns a copy of the stored points, oldest first.
func (h *History) Points() []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Point, h.count)
	for i := range out {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Window returns the x range the scroll plot shows: the last capacity
// indices ending at the newest point.
func (h *History) Window() (lo, hi int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0, 0
	}
	hi = h.next - 1
	return max(0, hi-len(h.buf)), hi
}

// Len returns the number of stored points.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Reset empties the history and restarts indices at zero.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head, h.count, h.next = 0, 0, 0
}
