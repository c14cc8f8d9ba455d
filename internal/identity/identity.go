// Package identity computes the deterministic surrogate key that gives every
// logical event a stable identity across sources, batches, and reruns.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// fieldSeparator keeps ("ab","c") and ("a","bc") from hashing identically.
const fieldSeparator = "|"

// EventID derives the surrogate key for an event from its natural key:
// (source_id, published_at, source). All three fields participate; dropping
// the source would collapse events that share an ID and timestamp across
// providers into false duplicates. Null-ish fields coerce to the empty
// string so the digest is total.
func EventID(sourceID string, publishedAt time.Time, source model.Source) string {
	ts := ""
	if !publishedAt.IsZero() {
		ts = publishedAt.UTC().Format(time.RFC3339Nano)
	}
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(ts))
	h.Write([]byte(fieldSeparator))
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolve stamps the event's EventID from its natural key fields. The
// assignment happens once; merge never rewrites identity.
func Resolve(e model.Event) model.Event {
	e.EventID = EventID(e.SourceID, e.PublishedAt, e.Source)
	return e
}
