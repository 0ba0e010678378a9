//go:build !cgo

package driver

import (
	"context"
	"errors"

	"github.com/soundprediction/kgroute/pkg/types"
)

// ErrCGORequired is returned by every Ladybug call in a build without cgo.
var ErrCGORequired = errors.New("ladybug driver requires CGO; build with CGO_ENABLED=1")

// LadybugDriver cannot be constructed without cgo.
type LadybugDriver struct{}

func NewLadybugDriver(string) (*LadybugDriver, error) { return nil, ErrCGORequired }

func NewLadybugDriverWithConfig(*LadybugDriverConfig) (*LadybugDriver, error) {
	return nil, ErrCGORequired
}

func (*LadybugDriver) GetEntities(context.Context, EntityQuery) ([]types.ScoredEntity, error) {
	return nil, ErrCGORequired
}

func (*LadybugDriver) GetRelations(context.Context, RelationQuery) ([]types.ScoredRelation, error) {
	return nil, ErrCGORequired
}

func (*LadybugDriver) GetEntityTypes(context.Context) ([]string, error) {
	return nil, ErrCGORequired
}

func (*LadybugDriver) UpsertEntity(context.Context, *types.Entity, []float32) error {
	return ErrCGORequired
}

func (*LadybugDriver) UpsertRelation(context.Context, *types.Relation, []float32) error {
	return ErrCGORequired
}

func (*LadybugDriver) Provider() GraphProvider { return GraphProviderLadybug }

func (*LadybugDriver) Close(context.Context) error { return nil }
