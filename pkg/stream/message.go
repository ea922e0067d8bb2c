package stream

import (
	"math"

	"github.com/itohio/opmlog/pkg/acquire"
)

// Message types sent to websocket clients.
const (
	TypeRun   = "run"
	TypeBatch = "batch"
	TypeEnd   = "end"
)

// Message is the JSON document pushed to clients.
type Message struct {
	Type   string   `json:"type"`
	Run    *RunInfo `json:"run,omitempty"`
	Seq    uint64   `json:"seq,omitempty"`
	Time   int64    `json:"time,omitempty"` // Unix milliseconds
	Values any      `json:"values,omitempty"`
	Stats  *Stats   `json:"stats,omitempty"`
}

// RunInfo describes the parameters of the current run.
type RunInfo struct {
	Points          int     `json:"points"`
	IntegrationTime float64 `json:"integration_time"`
	Unit            string  `json:"unit"`
	LoopDelay       float64 `json:"loop_delay"` // Seconds
	BatchDuration   float64 `json:"batch_duration"`
	Simulated       bool    `json:"simulated"`
}

// Stats mirrors acquire.Stats for JSON.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

func runMessage(cfg acquire.Config, simulate bool) *Message {
	return &Message{
		Type: TypeRun,
		Run: &RunInfo{
			Points:          cfg.Points,
			IntegrationTime: cfg.IntegrationTime,
			Unit:            string(cfg.Unit),
			LoopDelay:       cfg.LoopDelay.Seconds(),
			BatchDuration:   cfg.BatchSeconds(),
			Simulated:       simulate,
		},
	}
}

func batchMessage(b acquire.Batch) *Message {
	m := &Message{
		Type:   TypeBatch,
		Seq:    b.Seq,
		Time:   b.Time.UnixMilli(),
		Values: jsonValues(b.Values),
	}
	if s := b.Stats(); s.Count > 0 && finite(s.Min) && finite(s.Max) && finite(s.Mean) {
		m.Stats = &Stats{Count: s.Count, Min: s.Min, Max: s.Max, Mean: s.Mean}
	}
	return m
}

// jsonValues returns values unchanged unless they hold NaN or infinities,
// which JSON cannot represent; those become null.
func jsonValues(values []float64) any {
	clean := true
	for _, v := range values {
		if !finite(v) {
			clean = false
			break
		}
	}
	if clean {
		return values
	}

	out := make([]any, len(values))
	for i, v := range values {
		if finite(v) {
			out[i] = v
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
