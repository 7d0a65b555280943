// Package greyhound implements the octree streaming protocol spoken by
// Potree-style web viewers: an info document, a hierarchy tree of per-node
// point counts, and per-node binary point reads.
package greyhound

import (
	"context"
	"errors"

	"github.com/lidarstack/pc-server/hierarchy"
	"github.com/lidarstack/pc-server/schema"
)

// LoaderMinDepth is the base depth viewers address the octree at. Request
// depths are offset by it before they become store LoDs.
const LoaderMinDepth = 8

// ErrBadRequest marks missing or malformed request parameters. Besides it and
// unknown datasets, only output-schema resolution failures (none registered,
// or a failed registration) surface to clients; store failures while fetching
// points degrade into valid empty responses instead.
var ErrBadRequest = errors.New("bad request")

// Catalog is the dataset metadata the services consult.
type Catalog interface {
	Lookup(table, column string) (*schema.Dataset, error)
	OutputSchemas(ds *schema.Dataset) []schema.OutputSchema
	SrsText(ctx context.Context, ds *schema.Dataset) (string, error)
}

// Registry resolves and creates output schemas.
type Registry interface {
	Find(ds *schema.Dataset, scales, offsets [3]float64, dims []schema.Dimension) (schema.OutputSchema, bool)
	FindByDimensions(ds *schema.Dataset, dims []schema.Dimension) (schema.OutputSchema, bool)
	Register(ctx context.Context, ds *schema.Dataset, scales, offsets [3]float64, srid int, dims []schema.Dimension) (int, error)
}

// Store issues the single per-node read query.
type Store interface {
	ReadPatch(ctx context.Context, ds *schema.Dataset, box schema.Bbox, lod, pcid int) ([]byte, error)
}

// Service answers greyhound requests.
type Service struct {
	catalog  Catalog
	registry Registry
	store    Store
	engine   *hierarchy.Engine
	cache    *hierarchy.Cache
}

func NewService(catalog Catalog, registry Registry, store Store, engine *hierarchy.Engine, cache *hierarchy.Cache) *Service {
	return &Service{
		catalog:  catalog,
		registry: registry,
		store:    store,
		engine:   engine,
		cache:    cache,
	}
}
