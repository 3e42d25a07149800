// Package event declares the wire messages that flow between the pipeline
// stages, the subjects and streams they travel on, and the codec used to
// put them on the wire.
//
// Every publish carries a "message-type" header naming the payload schema,
// so consumers can pick a decoder without coupling to the subject. The
// guardian relies on this when it pulls a failed message out of an
// arbitrary stream.
package event

import (
	"encoding/json"
	"strconv"
)

// Stream / subject bindings. One stream per subject, work-queue retention.
const (
	NewSourceStream  = "new-source-stream"
	NewSourceSubject = "new.source"

	RemovedSourceStream  = "removed-source-stream"
	RemovedSourceSubject = "removed.source"

	PollSourceStream  = "poll-source-stream"
	PollSourceSubject = "poll.source"

	RawEventsStream  = "raw-events-stream"
	RawEventsSubject = "raw.events"

	FilteredEventsStream  = "filtered-events-stream"
	FilteredEventsSubject = "filtered.events"

	RankedEventsStream  = "ranked-events-stream"
	RankedEventsSubject = "ranked.events"

	// MaxDeliveriesAdvisorySubject is emitted by the broker itself whenever a
	// consumer exceeds its redelivery cap. The guardian subscribes to it.
	MaxDeliveriesAdvisorySubject = "$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES.>"
	MaxDeliveriesAdvisoryStream  = "DLQ"
)

// HeaderMessageType is the NATS header naming the payload schema.
const HeaderMessageType = "message-type"

// HeaderEventID is the NATS header carrying the message's own identifier,
// so consumers can tag traces and logs without decoding the payload.
const HeaderEventID = "event-id"

// NewSource is published by the source registry when a source is created or
// re-activated.
type NewSource struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ConfigJSON string `json:"config_json"`
	IsActive   bool   `json:"is_active"`
}

// RemovedSource is published when a source is deleted or deactivated.
type RemovedSource struct {
	ID int64 `json:"id"`
}

// PollSource instructs the connector to scrape one source now.
type PollSource struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ConfigJSON string `json:"config_json"`
	IsActive   bool   `json:"is_active"`
}

// RawEvent is an unprocessed item emitted by the connector. Timestamps are
// RFC3339 UTC strings end to end.
type RawEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// FilteredEvent is a RawEvent the filter judged relevant, with its categories.
type FilteredEvent struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Timestamp  string   `json:"timestamp"`
	Source     string   `json:"source"`
	Categories []string `json:"categories"`
	IsRelevant bool     `json:"is_relevant"`
}

// RankedEvent carries the three scores computed by the ranker.
type RankedEvent struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Timestamp       string   `json:"timestamp"`
	Source          string   `json:"source"`
	Categories      []string `json:"categories"`
	IsRelevant      bool     `json:"is_relevant"`
	ImportanceScore float64  `json:"importance_score"`
	RecencyScore    float64  `json:"recency_score"`
	FinalScore      float64  `json:"final_score"`
}

// MaxDeliveriesAdvisory is the JSON control message the broker emits when a
// message exceeds max_deliver on a consumer.
type MaxDeliveriesAdvisory struct {
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	DeliverSeq uint64 `json:"deliver_seq,omitempty"`
	Deliveries uint64 `json:"deliveries,omitempty"`
}

// MessageType returns the schema name for a wire message, used as the
// message-type header value.
func MessageType(msg any) string {
	switch msg.(type) {
	case NewSource, *NewSource:
		return "NewSource"
	case RemovedSource, *RemovedSource:
		return "RemovedSource"
	case PollSource, *PollSource:
		return "PollSource"
	case RawEvent, *RawEvent:
		return "RawEvent"
	case FilteredEvent, *FilteredEvent:
		return "FilteredEvent"
	case RankedEvent, *RankedEvent:
		return "RankedEvent"
	default:
		return "unknown"
	}
}

// EventID returns the identifier a wire message carries, used as the
// event-id header value. Messages without an id yield "".
func EventID(msg any) string {
	switch m := msg.(type) {
	case NewSource:
		return strconv.FormatInt(m.ID, 10)
	case *NewSource:
		return strconv.FormatInt(m.ID, 10)
	case RemovedSource:
		return strconv.FormatInt(m.ID, 10)
	case *RemovedSource:
		return strconv.FormatInt(m.ID, 10)
	case PollSource:
		return strconv.FormatInt(m.ID, 10)
	case *PollSource:
		return strconv.FormatInt(m.ID, 10)
	case RawEvent:
		return m.ID
	case *RawEvent:
		return m.ID
	case FilteredEvent:
		return m.ID
	case *FilteredEvent:
		return m.ID
	case RankedEvent:
		return m.ID
	case *RankedEvent:
		return m.ID
	default:
		return ""
	}
}

// Decode decodes raw bytes into a fresh message value for the given
// message-type header. It returns false when the type is not one of the
// declared schemas.
func Decode(messageType string, data []byte) (any, bool) {
	var msg any
	switch messageType {
	case "NewSource":
		msg = &NewSource{}
	case "RemovedSource":
		msg = &RemovedSource{}
	case "PollSource":
		msg = &PollSource{}
	case "RawEvent":
		msg = &RawEvent{}
	case "FilteredEvent":
		msg = &FilteredEvent{}
	case "RankedEvent":
		msg = &RankedEvent{}
	default:
		return nil, false
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, false
	}
	return msg, true
}
