package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrChannelConnect means the detection channel could not be opened.
	ErrChannelConnect = errors.New("detection channel connect failed")
	// ErrChannelSend means the channel broke while audio was still going out.
	ErrChannelSend = errors.New("detection channel send failed")
	// ErrMalformedEvent is returned for inbound messages that are not valid
	// transcript events. Callers log and skip these.
	ErrMalformedEvent = errors.New("malformed detector event")
)

// Entity is a detected sensitive span.
type Entity struct {
	Type       string  `json:"type"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

func (e Entity) Duration() float64 { return e.End - e.Start }

// HighConfidence reports confidence above 0.8.
func (e Entity) HighConfidence() bool { return e.Confidence > 0.8 }

// Segment is one recognized stretch of speech.
type Segment struct {
	Start     float64
	End       float64
	IsPartial bool
	Text      string
	Entities  []Entity
}

// Wire shapes of the detector's JSON events. encoding/json matches keys
// case-insensitively, so camelCase and PascalCase producers both decode.
type wireEntity struct {
	Type       string  `json:"type"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

type wireAlternative struct {
	Transcript string       `json:"transcript"`
	Entities   []wireEntity `json:"entities"`
}

type wireResult struct {
	StartTime    float64           `json:"startTime"`
	EndTime      float64           `json:"endTime"`
	IsPartial    bool              `json:"isPartial"`
	Alternatives []wireAlternative `json:"alternatives"`
}

type wireEvent struct {
	Transcript *struct {
		Results []wireResult `json:"results"`
	} `json:"transcript"`
	Message string `json:"message"`
}

// Event is a decoded inbound message. Notice carries any service-level
// message that arrived instead of a transcript.
type Event struct {
	Segments []Segment
	Notice   string
}

// DecodeEvent parses one inbound detector message. Results without
// alternatives are dropped; the first alternative supplies text and
// entities.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Transcript == nil {
		if w.Message == "" {
			return Event{}, fmt.Errorf("%w: no transcript field", ErrMalformedEvent)
		}
		return Event{Notice: w.Message}, nil
	}
	ev := Event{Notice: w.Message}
	for _, r := range w.Transcript.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		seg := Segment{
			Start:     r.StartTime,
			End:       r.EndTime,
			IsPartial: r.IsPartial,
			Text:      alt.Transcript,
		}
		for _, we := range alt.Entities {
			seg.Entities = append(seg.Entities, Entity{
				Type:       we.Type,
				Start:      we.StartTime,
				End:        we.EndTime,
				Content:    we.Content,
				Confidence: we.Confidence,
			})
		}
		ev.Segments = append(ev.Segments, seg)
	}
	return ev, nil
}
