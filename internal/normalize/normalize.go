// Package normalize converts raw source records (differing per-provider
// schemas) into the canonical event shape. Normalizers are pure per-record
// functions; a record missing a mandatory field (source id, published
// timestamp) is rejected with a schema error and never forwarded, while
// unmappable extra fields are dropped with a warning.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brandintel/sentiment-platform/internal/model"
	"github.com/brandintel/sentiment-platform/pkg/errors"
)

// Normalizer maps one provider's raw record schema onto a canonical Event.
type Normalizer interface {
	Source() model.Source
	Normalize(raw map[string]json.RawMessage) (model.Event, error)
}

// Registry dispatches raw payloads to the normalizer registered for their
// source kind.
type Registry struct {
	bySource map[model.Source]Normalizer
	logger   *slog.Logger
}

// NewRegistry creates a Registry holding the given normalizers.
func NewRegistry(norms ...Normalizer) *Registry {
	r := &Registry{
		bySource: make(map[model.Source]Normalizer, len(norms)),
		logger:   slog.Default().With("component", "normalizer"),
	}
	for _, n := range norms {
		r.bySource[n.Source()] = n
	}
	return r
}

// DefaultRegistry returns a Registry with all supported source schemas.
func DefaultRegistry() *Registry {
	return NewRegistry(SocialNormalizer{}, NewsNormalizer{})
}

// Normalize decodes the raw payload and converts it into a canonical Event.
func (r *Registry) Normalize(source model.Source, payload []byte) (model.Event, error) {
	n, ok := r.bySource[source]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: no normalizer for source %q", errors.ErrSchema, source)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.Event{}, fmt.Errorf("%w: decoding %s record: %v", errors.ErrSchema, source, err)
	}
	event, err := n.Normalize(raw)
	if err != nil {
		return model.Event{}, err
	}
	event.Source = source
	return event, nil
}

// warnUnmapped logs raw fields the normalizer has no mapping for. They are
// dropped, not fatal.
func warnUnmapped(source model.Source, raw map[string]json.RawMessage, known map[string]struct{}) {
	for field := range raw {
		if _, ok := known[field]; !ok {
			slog.Default().Warn("dropping unmappable field",
				"component", "normalizer",
				"source", string(source),
				"field", field,
			)
		}
	}
}

// normalizeLabel trims and uppercases descriptive attributes (brand, parent
// company, category) so the same brand spelled differently across providers
// aggregates under one key.
func normalizeLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func decodeString(raw map[string]json.RawMessage, field string) string {
	v, ok := raw[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func decodeInt(raw map[string]json.RawMessage, field string) int64 {
	v, ok := raw[field]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func decodeFloat(raw map[string]json.RawMessage, field string) float64 {
	v, ok := raw[field]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0
	}
	return f
}

// timeLayouts are the timestamp formats seen across providers, most specific
// first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func decodeTime(raw map[string]json.RawMessage, field string) (time.Time, bool) {
	s := decodeString(raw, field)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
