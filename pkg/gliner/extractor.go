package gliner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// DefaultLabels are used when the extractor is given none.
var DefaultLabels = []string{"person", "organization", "location", "movie", "event", "award", "sports team", "product"}

// DefaultThreshold drops spans below this probability.
const DefaultThreshold = 0.4

// spanExtractor is the part of Client the extractor uses.
type spanExtractor interface {
	ExtractEntities(text string, labels []string) ([]Entity, error)
}

// TopicExtractor names a route's topic entities with a local span model
// instead of a chat model.
type TopicExtractor struct {
	spans     spanExtractor
	labels    []string
	threshold float32
	logger    *slog.Logger
}

// NewTopicExtractor creates an extractor over client. Empty labels and a
// non-positive threshold select the defaults.
func NewTopicExtractor(client *Client, labels []string, threshold float32) *TopicExtractor {
	return newTopicExtractor(client, labels, threshold)
}

func newTopicExtractor(spans spanExtractor, labels []string, threshold float32) *TopicExtractor {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &TopicExtractor{spans: spans, labels: labels, threshold: threshold, logger: slog.Default()}
}

// SetLogger sets the logger.
func (x *TopicExtractor) SetLogger(l *slog.Logger) {
	x.logger = l
}

// ExtractTopics returns upper-cased entity mentions from the question and
// the route's sub-objectives, most confident first.
func (x *TopicExtractor) ExtractTopics(ctx context.Context, route *types.Route) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if route == nil {
		return nil, nil
	}
	text := route.Question
	if len(route.SubObjectives) > 0 {
		text += "\n" + strings.Join(route.SubObjectives, "\n")
	}

	spans, err := x.spans.ExtractEntities(text, x.labels)
	if err != nil {
		return nil, fmt.Errorf("GLiNER topic extraction failed: %w", err)
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Score > spans[j].Score })
	topics := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.Score < x.threshold {
			continue
		}
		if t := strings.ToUpper(strings.TrimSpace(s.Text)); t != "" {
			topics = append(topics, t)
		}
	}
	topics = utils.DedupeStrings(topics)
	x.logger.Debug("GLiNER topics", "route", route.Index, "topics", topics)
	return topics, nil
}
