package greyhound

import (
	"context"
	"fmt"
	"time"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
	"github.com/lidarstack/pc-server/stats"
)

// HierarchyParams carries one hierarchy request.
type HierarchyParams struct {
	Table  string
	Column string

	// Bounds of the requested subtree. World coordinates, unless scale and
	// offset are both present, in which case they are schema-local.
	Bounds schema.Bbox

	DepthBegin int
	DepthEnd   int

	Scale  *float64
	Offset *[3]float64
}

// Hierarchy returns the tree document for the requested depth range,
// serving the cached document byte-for-byte when one exists.
func (s *Service) Hierarchy(ctx context.Context, p *HierarchyParams) ([]byte, error) {
	ds, err := s.catalog.Lookup(p.Table, p.Column)
	if err != nil {
		return nil, err
	}

	if p.DepthEnd <= p.DepthBegin {
		return nil, fmt.Errorf("%w: depth range [%d, %d) is not monotonic",
			ErrBadRequest, p.DepthBegin, p.DepthEnd)
	}

	lodMin := p.DepthBegin - LoaderMinDepth
	if lodMin < 0 {
		lodMin = 0
	}
	lodMax := p.DepthEnd - LoaderMinDepth - 1
	if lodMax > config.Keys.Depth-1 {
		lodMax = config.Keys.Depth - 1
	}
	if lodMax < lodMin {
		lodMax = lodMin
	}

	box := p.Bounds
	if p.Scale != nil && p.Offset != nil {
		local := schema.LocalBbox{
			Xmin: int64(box.Xmin), Ymin: int64(box.Ymin), Zmin: int64(box.Zmin),
			Xmax: int64(box.Xmax), Ymax: int64(box.Ymax), Zmax: int64(box.Zmax),
		}
		box = local.ToWorld(
			[3]float64{*p.Scale, *p.Scale, *p.Scale},
			schema.RoundOffsets(*p.Offset))
	}

	key := s.cache.Key(ds.FullTable(), ds.Column, lodMin, lodMax, box)
	log.Debugf("hierarchy file: %s", key)

	if raw, ok := s.cache.Get(key, lodMin); ok {
		if config.Keys.Stats {
			stats.CacheHit()
		}
		return raw, nil
	}
	if config.Keys.Stats {
		stats.CacheMiss()
	}

	start := time.Now()
	tree := s.engine.Build(ctx, ds, lodMin, lodMax, box)
	if config.Keys.Stats {
		stats.RecordHierarchy(time.Since(start))
	}

	raw, err := s.cache.Put(key, lodMin, tree)
	if err != nil {
		// A failed cache write only costs the next request a rebuild.
		log.Warnf("hierarchy cache write %s: %s", key, err)
	}
	return raw, nil
}
