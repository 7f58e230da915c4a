package transcribe

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/voice-redaction-lab/internal/logging"
	"github.com/voice-redaction-lab/internal/redact"
)

const (
	// PreRoll is subtracted from each entity start when building intervals.
	PreRoll = 0.25
	// entityWindow is how close two same-content entities must start to be
	// treated as one detection.
	entityWindow = 1.0
)

// AggregatorStats counts what the aggregator saw.
type AggregatorStats struct {
	Segments          int `json:"segments"`
	Partials          int `json:"partials"`
	DuplicateSegments int `json:"duplicate_segments"`
	Entities          int `json:"entities"`
	DuplicateEntities int `json:"duplicate_entities"`
}

// Aggregator folds final segments into a transcript and a deduplicated
// entity list. Writes are expected from one goroutine; the mutex makes
// reads from others safe.
type Aggregator struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	entities   []Entity
	transcript strings.Builder
	stats      AggregatorStats
}

func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

func segmentKey(s Segment) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.Text))
	return fmt.Sprintf("%v-%v-%08x", s.Start, s.End, h.Sum32())
}

// OnSegment records a final segment. Partial and already-seen segments are
// ignored.
func (a *Aggregator) OnSegment(s Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.IsPartial {
		a.stats.Partials++
		return
	}
	key := segmentKey(s)
	if _, ok := a.seen[key]; ok {
		a.stats.DuplicateSegments++
		return
	}
	a.seen[key] = struct{}{}
	a.stats.Segments++

	for _, e := range s.Entities {
		if a.isDuplicate(e) {
			a.stats.DuplicateEntities++
			logging.Debugw("aggregator: duplicate entity dropped", "type", e.Type, "start", e.Start)
			continue
		}
		a.entities = append(a.entities, e)
		a.stats.Entities++
	}
	a.transcript.WriteString(s.Text)
	a.transcript.WriteString(" ")
}

func (a *Aggregator) isDuplicate(e Entity) bool {
	for _, prev := range a.entities {
		if prev.Content == e.Content && math.Abs(prev.Start-e.Start) < entityWindow {
			return true
		}
	}
	return false
}

// OnEvent records every segment of ev in order.
func (a *Aggregator) OnEvent(ev Event) {
	for _, s := range ev.Segments {
		a.OnSegment(s)
	}
}

// Finalize returns the accumulated transcript, the accepted entities in
// arrival order, and one interval per entity starting PreRoll seconds
// early. Negative starts are left for the splicer to clamp.
func (a *Aggregator) Finalize() (string, []Entity, []redact.Interval) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entities := make([]Entity, len(a.entities))
	copy(entities, a.entities)
	intervals := make([]redact.Interval, 0, len(entities))
	for _, e := range entities {
		intervals = append(intervals, redact.Interval{Start: e.Start - PreRoll, End: e.End})
	}
	return a.transcript.String(), entities, intervals
}

func (a *Aggregator) Stats() AggregatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
