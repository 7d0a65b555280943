package greyhound

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lidarstack/pc-server/patch"
	"github.com/lidarstack/pc-server/repository"
	"github.com/lidarstack/pc-server/schema"
)

// Fakes shared by the service tests. They mirror the repository types but
// keep everything in memory.

type fakeCatalog struct {
	ds     *schema.Dataset
	srs    string
	srsErr error
}

func (c *fakeCatalog) Lookup(table, column string) (*schema.Dataset, error) {
	if !strings.Contains(table, ".") {
		table = "public." + table
	}
	if column == "" {
		column = "points"
	}
	if table == c.ds.FullTable() && column == c.ds.Column {
		return c.ds, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, table, column)
}

func (c *fakeCatalog) OutputSchemas(ds *schema.Dataset) []schema.OutputSchema {
	out := make([]schema.OutputSchema, len(ds.OutputSchemas))
	copy(out, ds.OutputSchemas)
	return out
}

func (c *fakeCatalog) SrsText(context.Context, *schema.Dataset) (string, error) {
	return c.srs, c.srsErr
}

type fakeRegistry struct {
	catalog       *fakeCatalog
	nextPcid      int
	registrations int
}

func (r *fakeRegistry) Find(ds *schema.Dataset, scales, offsets [3]float64, dims []schema.Dimension) (schema.OutputSchema, bool) {
	for _, out := range ds.OutputSchemas {
		if out.Matches(scales, offsets, dims) {
			return out, true
		}
	}
	return schema.OutputSchema{}, false
}

func (r *fakeRegistry) FindByDimensions(ds *schema.Dataset, dims []schema.Dimension) (schema.OutputSchema, bool) {
	for _, out := range ds.OutputSchemas {
		if schema.DimensionsEqual(out.Dimensions, dims) {
			return out, true
		}
	}
	return schema.OutputSchema{}, false
}

func (r *fakeRegistry) Register(_ context.Context, ds *schema.Dataset, scales, offsets [3]float64, srid int, dims []schema.Dimension) (int, error) {
	r.registrations++
	r.nextPcid++
	ds.OutputSchemas = append(ds.OutputSchemas, schema.OutputSchema{
		Pcid:       r.nextPcid,
		Dimensions: schema.SortDimensions(dims),
		Scales:     scales,
		Offsets:    offsets,
		Srid:       srid,
	})
	return r.nextPcid, nil
}

type fakeReadStore struct {
	wkb []byte
	err error

	calls    int
	lastBox  schema.Bbox
	lastLod  int
	lastPcid int
}

func (s *fakeReadStore) ReadPatch(_ context.Context, _ *schema.Dataset, box schema.Bbox, lod, pcid int) ([]byte, error) {
	s.calls++
	s.lastBox = box
	s.lastLod = lod
	s.lastPcid = pcid
	return s.wkb, s.err
}

// hierStore answers node queries with a fixed count and records the LoDs it
// was asked for.
type hierStore struct {
	n uint32

	mu   sync.Mutex
	lods []int
}

func (s *hierStore) NodePatch(_ context.Context, _ *schema.Dataset, _ schema.Bbox, lod int) ([]byte, error) {
	s.mu.Lock()
	s.lods = append(s.lods, lod)
	s.mu.Unlock()

	if s.n == 0 {
		return nil, nil
	}
	return patch.Encode(1, s.n, nil, true), nil
}

func (s *hierStore) seenLods() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.lods))
	copy(out, s.lods)
	return out
}

func greyhoundDataset() *schema.Dataset {
	return &schema.Dataset{
		Schema: "public", Table: "pts", Column: "points",
		Srid:           4978,
		Bbox:           schema.Bbox{Xmin: 0, Ymin: 0, Zmin: 0, Xmax: 100, Ymax: 100, Zmax: 10},
		ApproxRowCount: 10,
		PatchSize:      400,
		OutputSchemas: []schema.OutputSchema{{
			Pcid:       1,
			Dimensions: schema.SortDimensions(schema.GreyhoundReadDimensions()),
			Scales:     [3]float64{0.01, 0.01, 0.01},
			Offsets:    [3]float64{50, 50, 5},
			Srid:       4978,
		}},
	}
}
