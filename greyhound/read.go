package greyhound

import (
	"context"
	"fmt"
	"time"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/patch"
	"github.com/lidarstack/pc-server/schema"
	"github.com/lidarstack/pc-server/stats"
)

// ReadParams carries one node read request. Optional fields are nil when the
// viewer omitted the parameter.
type ReadParams struct {
	Table  string
	Column string

	// Bounds is in schema-local integer coordinates.
	Bounds *schema.LocalBbox

	Depth      *int
	DepthBegin *int
	DepthEnd   *int

	Scale  *float64
	Offset *[3]float64

	// Dimensions the viewer wants on the wire.
	Dimensions []schema.Dimension
}

// Read answers a single-node read with a binary frame: the LAZ-compressed
// patch payload followed by a little-endian uint32 point count. Store
// failures and empty nodes both produce the 4-byte empty frame.
func (s *Service) Read(ctx context.Context, p *ReadParams) ([]byte, error) {
	start := time.Now()

	ds, err := s.catalog.Lookup(p.Table, p.Column)
	if err != nil {
		return nil, err
	}

	lod, err := readLod(p)
	if err != nil {
		return nil, err
	}

	dims := p.Dimensions
	if len(dims) == 0 {
		dims = schema.GreyhoundReadDimensions()
	}

	out, err := s.resolveOutput(ctx, ds, p, dims)
	if err != nil {
		return nil, err
	}

	box := ds.Bbox
	if p.Bounds != nil {
		box = p.Bounds.ToWorld(out.Scales, out.Offsets)
	}

	wkb, err := s.store.ReadPatch(ctx, ds, box, lod, out.Pcid)
	if err != nil {
		log.Debugf("read on %s.%s degraded to empty frame: %s", ds.FullTable(), ds.Column, err)
		return patch.EmptyFrame(), nil
	}
	if wkb == nil {
		return patch.EmptyFrame(), nil
	}

	npoints, err := patch.Npoints(wkb)
	if err != nil {
		log.Debugf("read on %s.%s degraded to empty frame: %s", ds.FullTable(), ds.Column, err)
		return patch.EmptyFrame(), nil
	}
	payload, err := patch.Payload(wkb)
	if err != nil {
		log.Debugf("read on %s.%s degraded to empty frame: %s", ds.FullTable(), ds.Column, err)
		return patch.EmptyFrame(), nil
	}

	frame := patch.AppendCountLE(payload, npoints)

	if config.Keys.Stats {
		stats.RecordRead(npoints, time.Since(start))
		log.Debugf("read: %d points at lod %d, %.0f points/sec overall",
			npoints, lod, stats.Rate())
	}

	return frame, nil
}

// readLod resolves the store LoD of a read. A single `depth` addresses the
// root sample and forces lod 0, also when a depth range is present. A range
// maps depthEnd through the loader base depth. The result is capped at the
// configured maximum.
func readLod(p *ReadParams) (int, error) {
	lod := 0
	switch {
	case p.Depth != nil:
		lod = 0
	case p.DepthEnd != nil:
		if p.DepthBegin != nil && *p.DepthBegin >= *p.DepthEnd {
			return 0, fmt.Errorf("%w: depth range [%d, %d) is not monotonic",
				ErrBadRequest, *p.DepthBegin, *p.DepthEnd)
		}
		lod = *p.DepthEnd - LoaderMinDepth - 1
	default:
		return 0, fmt.Errorf("%w: one of depth or depthEnd is required", ErrBadRequest)
	}

	// Viewers may probe below the loader base depth; that is still the
	// root sample.
	if lod < 0 {
		lod = 0
	}
	if lod > config.Keys.Depth-1 {
		lod = config.Keys.Depth - 1
	}
	return lod, nil
}

// resolveOutput picks the output schema for a read, registering one on first
// use of a new triple.
//
// A request without scale, offset and bounds is a normalization probe: the
// viewer is asking how this dataset quantizes the named dimensions. Probes
// match on dimensions alone and fall back to the scales and offsets of the
// dataset's first registered schema.
func (s *Service) resolveOutput(ctx context.Context, ds *schema.Dataset, p *ReadParams, dims []schema.Dimension) (schema.OutputSchema, error) {
	if p.Scale == nil && p.Offset == nil && p.Bounds == nil {
		if out, ok := s.registry.FindByDimensions(ds, dims); ok {
			return out, nil
		}

		existing := s.catalog.OutputSchemas(ds)
		if len(existing) == 0 {
			return schema.OutputSchema{}, fmt.Errorf(
				"no output schema registered for %s.%s", ds.FullTable(), ds.Column)
		}

		pcid, err := s.registry.Register(ctx, ds,
			existing[0].Scales, existing[0].Offsets, ds.Srid, dims)
		if err != nil {
			return schema.OutputSchema{}, err
		}
		return schema.OutputSchema{
			Pcid:       pcid,
			Dimensions: schema.SortDimensions(dims),
			Scales:     existing[0].Scales,
			Offsets:    existing[0].Offsets,
			Srid:       ds.Srid,
		}, nil
	}

	if p.Scale == nil || p.Offset == nil {
		return schema.OutputSchema{}, fmt.Errorf(
			"%w: scale and offset must be given together", ErrBadRequest)
	}

	scales := [3]float64{*p.Scale, *p.Scale, *p.Scale}
	offsets := schema.RoundOffsets(*p.Offset)

	if out, ok := s.registry.Find(ds, scales, offsets, dims); ok {
		return out, nil
	}

	pcid, err := s.registry.Register(ctx, ds, scales, offsets, ds.Srid, dims)
	if err != nil {
		return schema.OutputSchema{}, err
	}
	return schema.OutputSchema{
		Pcid:       pcid,
		Dimensions: schema.SortDimensions(dims),
		Scales:     scales,
		Offsets:    offsets,
		Srid:       ds.Srid,
	}, nil
}
