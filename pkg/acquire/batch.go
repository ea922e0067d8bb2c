package acquire

import "time"

// Batch is one block of samples fetched in a polling cycle.
// The length normally equals Config.Points but is not enforced.
type Batch struct {
	Seq    uint64    // 1-based position within the run
	Time   time.Time // When the batch was fetched
	Values []float64
}

// First returns the first sample of the batch.
func (b Batch) First() (float64, bool) {
	if len(b.Values) == 0 {
		return 0, false
	}
	return b.Values[0], true
}

// Stats summarises a batch.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Stats computes min, max and mean of the batch values.
func (b Batch) Stats() Stats {
	if len(b.Values) == 0 {
		return Stats{}
	}

	s := Stats{
		Count: len(b.Values),
		Min:   b.Values[0],
		Max:   b.Values[0],
	}
	var sum float64
	for _, v := range b.Values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(b.Values))
	return s
}

// State is the run state of a Loop.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}
