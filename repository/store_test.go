package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/schema"
)

func testDataset() *schema.Dataset {
	return &schema.Dataset{
		Schema: "public", Table: "pts", Column: "points",
		Srid: 4978, Bbox: schema.Bbox{Xmin: 0, Ymin: 0, Zmin: 0, Xmax: 100, Ymax: 100, Zmax: 10},
		PatchSize: 400,
	}
}

func TestLodRange(t *testing.T) {
	config.Keys = config.ProgramConfig{}
	ds := testDataset()

	// At depth d the first sum(4^i, i<d) ranked points belong to
	// ancestors; the node takes the next 4^d.
	for _, tc := range []struct{ lod, min, count int }{
		{0, 0, 1},
		{1, 1, 4},
		{2, 5, 16},
		{3, 21, 64},
	} {
		min, count := lodRange(ds, tc.lod)
		assert.Equal(t, tc.min, min, "lod %d", tc.lod)
		assert.Equal(t, tc.count, count, "lod %d", tc.lod)
	}
}

func TestLodRangeFlatCap(t *testing.T) {
	config.Keys = config.ProgramConfig{}
	ds := testDataset()
	ds.MaxPointsPerPatch = 128

	for lod := 0; lod < 4; lod++ {
		min, count := lodRange(ds, lod)
		assert.Equal(t, 0, min)
		assert.Equal(t, 128, count)
	}

	// The config-wide cap applies when the dataset has none.
	ds.MaxPointsPerPatch = 0
	config.Keys.MaxPointsPerPatch = 64
	min, count := lodRange(ds, 2)
	assert.Equal(t, 0, min)
	assert.Equal(t, 64, count)
}

func TestPatchQueryHierarchyShape(t *testing.T) {
	config.Keys = config.ProgramConfig{UseMorton: true}
	ds := testDataset()

	query, args := patchQuery(ds, ds.Bbox, 2, 0)

	assert.Contains(t, query, "pc_union(pc_filterbetween(pc_range(points, $1, $2), 'Z', $3, $4))")
	assert.Contains(t, query, "from public.pts")
	assert.Contains(t, query, "pc_intersects(points, st_geomfromtext($5, 4978))")
	assert.Contains(t, query, "order by morton")
	assert.NotContains(t, query, "limit")
	assert.NotContains(t, query, "pc_compress")

	assert.Equal(t, 5, args[0])
	assert.Equal(t, 16, args[1])
	assert.Equal(t, 0.0, args[2])
	assert.Equal(t, 10.0, args[3])
	assert.Contains(t, args[4], "polygon ((")
}

func TestPatchQueryReadMode(t *testing.T) {
	config.Keys = config.ProgramConfig{UseMorton: true}
	ds := testDataset()

	query, _ := patchQuery(ds, ds.Bbox, 0, 7)

	assert.Contains(t, query, "pc_compress(pc_patchtransform(")
	assert.Contains(t, query, ", 7), 'laz')")
}

func TestPatchQueryStableOrderWithoutMorton(t *testing.T) {
	config.Keys = config.ProgramConfig{}
	ds := testDataset()
	ds.MaxPatchesPerQuery = 5

	query, _ := patchQuery(ds, ds.Bbox, 1, 0)

	assert.Contains(t, query, "order by id")
	assert.NotContains(t, query, "morton")
	assert.Contains(t, query, "limit 5")
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog(nil)
	ds := testDataset()
	c.Add(ds)

	got, err := c.Lookup("pts", "")
	assert.NoError(t, err)
	assert.Same(t, ds, got)

	got, err = c.Lookup("public.pts", "points")
	assert.NoError(t, err)
	assert.Same(t, ds, got)

	_, err = c.Lookup("missing", "points")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Lookup("pts", "other_column")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogOutputSchemasSnapshot(t *testing.T) {
	c := NewCatalog(nil)
	ds := testDataset()
	c.Add(ds)

	c.appendOutput(ds, schema.OutputSchema{Pcid: 1})
	out := c.OutputSchemas(ds)
	assert.Len(t, out, 1)

	// The snapshot is detached from later appends.
	c.appendOutput(ds, schema.OutputSchema{Pcid: 2})
	assert.Len(t, out, 1)
	assert.Len(t, c.OutputSchemas(ds), 2)
}
