package rustbert

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// recognizer is the part of Client the extractor uses.
type recognizer interface {
	ExtractEntities(text string) ([]Entity, error)
}

// TopicExtractor names a route's topic entities with the BERT NER model.
type TopicExtractor struct {
	ner       recognizer
	threshold float64
}

// NewTopicExtractor creates an extractor. Entities scoring below threshold
// are dropped.
func NewTopicExtractor(client *Client, threshold float64) *TopicExtractor {
	return &TopicExtractor{ner: client, threshold: threshold}
}

// ExtractTopics returns the upper-cased named entities of the question and
// the route's sub-objectives.
func (x *TopicExtractor) ExtractTopics(ctx context.Context, route *types.Route) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if route == nil {
		return nil, nil
	}
	texts := append([]string{route.Question}, route.SubObjectives...)

	var topics []string
	for _, text := range texts {
		entities, err := x.ner.ExtractEntities(text)
		if err != nil {
			return nil, fmt.Errorf("NER topic extraction failed: %w", err)
		}
		for _, e := range mergeWordPieces(entities) {
			if e.Score < x.threshold {
				continue
			}
			topics = append(topics, strings.ToUpper(e.Text))
		}
	}
	return utils.DedupeStrings(topics), nil
}

// mergeWordPieces joins "##" continuation tokens and adjacent tokens that
// share a label into whole mentions. The merged score is the minimum.
func mergeWordPieces(entities []Entity) []Entity {
	var out []Entity
	for _, e := range entities {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		label := strings.TrimPrefix(strings.TrimPrefix(e.Label, "B-"), "I-")
		if n := len(out); n > 0 {
			prev := &out[n-1]
			switch {
			case strings.HasPrefix(text, "##"):
				prev.Text += strings.TrimPrefix(text, "##")
				prev.Score = min(prev.Score, e.Score)
				continue
			case strings.HasPrefix(e.Label, "I-") && prev.Label == label:
				prev.Text += " " + text
				prev.Score = min(prev.Score, e.Score)
				continue
			}
		}
		out = append(out, Entity{Text: text, Label: label, Score: e.Score})
	}
	return out
}
