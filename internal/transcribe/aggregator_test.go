package transcribe

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(start, end float64, text string, entities ...Entity) Segment {
	return Segment{Start: start, End: end, Text: text, Entities: entities}
}

func TestAggregatorIgnoresPartials(t *testing.T) {
	a := NewAggregator()
	s := seg(0, 1, "hello", Entity{Content: "x", Start: 0.5, End: 0.6})
	s.IsPartial = true
	a.OnSegment(s)

	transcript, entities, intervals := a.Finalize()
	assert.Empty(t, transcript)
	assert.Empty(t, entities)
	assert.Empty(t, intervals)
	assert.Equal(t, 1, a.Stats().Partials)
}

func TestAggregatorDeduplicatesSegments(t *testing.T) {
	a := NewAggregator()
	e := Entity{Type: "NAME", Content: "Ana", Start: 2, End: 2.4}
	a.OnSegment(seg(1, 3, "I am Ana", e))
	a.OnSegment(seg(1, 3, "I am Ana", e))
	a.OnSegment(seg(1, 3, "I am Anna"))

	transcript, entities, _ := a.Finalize()
	assert.Equal(t, "I am Ana I am Anna ", transcript)
	assert.Len(t, entities, 1)
	assert.Equal(t, 1, a.Stats().DuplicateSegments)
}

func TestAggregatorMergesNearbyEntities(t *testing.T) {
	a := NewAggregator()
	a.OnSegment(seg(0, 2, "call 555 0100", Entity{Content: "555 0100", Start: 1.0, End: 1.5}))
	// 0.9s later: same detection
	a.OnSegment(seg(1.5, 3, "555 0100 again", Entity{Content: "555 0100", Start: 1.9, End: 2.4}))

	_, entities, _ := a.Finalize()
	require.Len(t, entities, 1)
	assert.Equal(t, 1.0, entities[0].Start)
	assert.Equal(t, 1, a.Stats().DuplicateEntities)
}

func TestAggregatorKeepsDistantEntities(t *testing.T) {
	a := NewAggregator()
	a.OnSegment(seg(0, 2, "call 555 0100", Entity{Content: "555 0100", Start: 1.0, End: 1.5}))
	// 1.1s later: a second mention
	a.OnSegment(seg(1.5, 3, "555 0100 again", Entity{Content: "555 0100", Start: 2.1, End: 2.6}))
	// same start, different content
	a.OnSegment(seg(3, 4, "and 555 0199", Entity{Content: "555 0199", Start: 1.0, End: 1.5}))

	_, entities, intervals := a.Finalize()
	require.Len(t, entities, 3)
	assert.Equal(t, []float64{1.0, 2.1, 1.0}, []float64{entities[0].Start, entities[1].Start, entities[2].Start})
	require.Len(t, intervals, 3)
	assert.InDelta(t, 1.85, intervals[1].Start, 1e-9)
	assert.Equal(t, 2.6, intervals[1].End)
}

func TestFinalizeKeepsNegativePreRollStart(t *testing.T) {
	a := NewAggregator()
	a.OnSegment(seg(0, 1, "Bo", Entity{Content: "Bo", Start: 0.1, End: 0.3}))
	_, _, intervals := a.Finalize()
	require.Len(t, intervals, 1)
	assert.InDelta(t, -0.15, intervals[0].Start, 1e-9)
}

func TestFinalizeReturnsCopies(t *testing.T) {
	a := NewAggregator()
	a.OnSegment(seg(0, 1, "Bo", Entity{Content: "Bo", Start: 0.1, End: 0.3}))
	_, entities, _ := a.Finalize()
	entities[0].Content = "changed"
	_, again, _ := a.Finalize()
	assert.Equal(t, "Bo", again[0].Content)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(ssnEvent))
	require.NoError(t, err)
	require.Len(t, ev.Segments, 1)
	s := ev.Segments[0]
	assert.False(t, s.IsPartial)
	assert.Equal(t, 0.5, s.Start)
	require.Len(t, s.Entities, 1)
	assert.Equal(t, Entity{Type: "SSN", Start: 1.0, End: 1.2, Content: "123-45-6789", Confidence: 0.97}, s.Entities[0])
	assert.True(t, s.Entities[0].HighConfidence())
	assert.InDelta(t, 0.2, s.Entities[0].Duration(), 1e-9)
}

func TestDecodeEventAcceptsPascalCase(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"Transcript":{"Results":[{"StartTime":1,"EndTime":2,"IsPartial":true,"Alternatives":[{"Transcript":"hi"}]}]}}`))
	require.NoError(t, err)
	require.Len(t, ev.Segments, 1)
	assert.True(t, ev.Segments[0].IsPartial)
	assert.Equal(t, "hi", ev.Segments[0].Text)
}

func TestDecodeEventSkipsResultsWithoutAlternatives(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"transcript":{"results":[{"startTime":1,"endTime":2,"alternatives":[]}]}}`))
	require.NoError(t, err)
	assert.Empty(t, ev.Segments)
}

func TestDecodeEventMalformed(t *testing.T) {
	for _, raw := range []string{`{oops`, `{"other":1}`, `[]`} {
		_, err := DecodeEvent([]byte(raw))
		assert.True(t, errors.Is(err, ErrMalformedEvent), raw)
	}
	ev, err := DecodeEvent([]byte(`{"message":"rate exceeded"}`))
	require.NoError(t, err)
	assert.Equal(t, "rate exceeded", ev.Notice)
}

func TestAggregatorConcurrentWritersAndReaders(t *testing.T) {
	a := NewAggregator()
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				start := float64(w*perWriter+i) * 2
				a.OnSegment(Segment{
					Start: start, End: start + 1, Text: fmt.Sprintf("segment %d-%d", w, i),
					Entities: []Entity{{Type: "NAME", Start: start, End: start + 0.5, Content: fmt.Sprintf("n%d-%d", w, i)}},
				})
				// every writer also replays one shared segment
				a.OnSegment(seg(0, 1, "shared"))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = a.Stats()
				_, _, _ = a.Finalize()
			}
		}()
	}
	wg.Wait()

	transcript, entities, intervals := a.Finalize()
	stats := a.Stats()
	assert.Equal(t, writers*perWriter+1, stats.Segments)
	assert.Equal(t, writers*perWriter-1, stats.DuplicateSegments)
	assert.Len(t, entities, writers*perWriter)
	assert.Len(t, intervals, writers*perWriter)
	assert.Contains(t, transcript, "shared ")
}
