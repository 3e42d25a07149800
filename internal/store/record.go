package store

import (
	"sort"
	"time"
)

// Record is one stored event: the physical point key, the flattened payload
// and, for vector searches, the similarity score.
type Record struct {
	Key     string         `json:"key"`
	Payload map[string]any `json:"payload"`
	Score   float32        `json:"score,omitempty"`
}

// Timestamp parses the record's RFC3339 timestamp. Records with a missing
// or malformed timestamp get the zero time so they sort last.
func (r Record) Timestamp() time.Time {
	s, _ := r.Payload["timestamp"].(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FinalScore reads the ranked score out of the payload, zero when absent.
func (r Record) FinalScore() float64 {
	switch v := r.Payload["final_score"].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// OriginalID reads the logical event id out of the payload.
func (r Record) OriginalID() string {
	id, _ := r.Payload["original_id"].(string)
	return id
}

func sortByTimestampDesc(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp().After(recs[j].Timestamp())
	})
}

// sortByFinalScoreDesc orders best first, ties broken by original id so
// paging stays deterministic.
func sortByFinalScoreDesc(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		si, sj := recs[i].FinalScore(), recs[j].FinalScore()
		if si != sj {
			return si > sj
		}
		return recs[i].OriginalID() < recs[j].OriginalID()
	})
}

// page slices recs to the [offset, offset+limit) window, clamping at the
// edges. A non-positive limit means no cap.
func page(recs []Record, limit, offset int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return []Record{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
