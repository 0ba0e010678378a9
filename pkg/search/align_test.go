package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
)

// vectorlessGraph fails every embedding query.
type vectorlessGraph struct {
	*driver.MemoryDriver
}

func (g vectorlessGraph) GetEntities(ctx context.Context, q driver.EntityQuery) ([]types.ScoredEntity, error) {
	if q.Embedding != nil {
		return nil, errors.New("vector index missing")
	}
	return g.MemoryDriver.GetEntities(ctx, q)
}

type fixedEmbedder []float32

func (e fixedEmbedder) EmbedSingle(context.Context, string) ([]float32, error) { return e, nil }

func TestAlignKeepsNameMatchesWhenVectorLookupFails(t *testing.T) {
	g := vectorlessGraph{newGraph(t, []string{"A", "B"}, "A>B")}
	a := NewAligner(g, &fakeRelevance{score: seedOn("A")}, fixedEmbedder{1, 0}, DefaultAlignTopK, 2, quietLogger)

	seeds, err := a.Align(context.Background(), testRoute(), []string{"A"})
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "A", seeds[0].Entity.Name)
	assert.InDelta(t, 1.0, seeds[0].Score, 1e-9)
}

func TestAlignDropsTopicWithoutAnyMatch(t *testing.T) {
	g := vectorlessGraph{newGraph(t, nil)}
	a := NewAligner(g, &fakeRelevance{score: seedOn("A")}, fixedEmbedder{1, 0}, DefaultAlignTopK, 2, quietLogger)

	seeds, err := a.Align(context.Background(), testRoute(), []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, seeds)
}
