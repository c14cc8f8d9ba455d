// Package trend extracts topic signals from event text and scores how
// actively each (brand, topic) pair is being discussed over a rolling
// lookback window. The whole table is recomputed every run; the window
// slides continuously, so incremental maintenance buys nothing here.
package trend

import (
	"sort"
	"strings"
	"unicode"

	"github.com/brandintel/sentiment-platform/internal/model"
)

// Extractor matches event text against a fixed keyword-to-topic mapping.
// An event can match zero, one, or several topics; each match is one row in
// the unpivoted (event, topic) relation the scorer aggregates.
type Extractor struct {
	keywordTopics map[string][]string
	topicOrder    []string
}

// NewExtractor builds an Extractor from a topic -> keywords mapping.
// Keywords are matched as whole lowercase tokens.
func NewExtractor(mapping map[string][]string) *Extractor {
	x := &Extractor{keywordTopics: make(map[string][]string)}
	topics := make([]string, 0, len(mapping))
	for topic := range mapping {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	x.topicOrder = topics
	for _, topic := range topics {
		for _, kw := range mapping[topic] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			x.keywordTopics[kw] = append(x.keywordTopics[kw], topic)
		}
	}
	return x
}

// Topics returns the topics the event's headline and body mention, in a
// stable order with no duplicates.
func (x *Extractor) Topics(e model.Event) []string {
	matched := make(map[string]struct{})
	for _, token := range tokenize(e.Headline + " " + e.Body) {
		for _, topic := range x.keywordTopics[token] {
			matched[topic] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	out := make([]string, 0, len(matched))
	for _, topic := range x.topicOrder {
		if _, ok := matched[topic]; ok {
			out = append(out, topic)
		}
	}
	return out
}

// tokenize lower-cases text and splits on non-alphanumeric boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
