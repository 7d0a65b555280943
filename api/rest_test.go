package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/greyhound"
	"github.com/lidarstack/pc-server/hierarchy"
	"github.com/lidarstack/pc-server/repository"
	"github.com/lidarstack/pc-server/schema"
	"github.com/lidarstack/pc-server/threedtiles"
)

type stubCatalog struct {
	ds *schema.Dataset
}

func (c *stubCatalog) Lookup(table, column string) (*schema.Dataset, error) {
	if table == c.ds.Table {
		return c.ds, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, table, column)
}

func (c *stubCatalog) OutputSchemas(ds *schema.Dataset) []schema.OutputSchema {
	return ds.OutputSchemas
}

func (c *stubCatalog) SrsText(context.Context, *schema.Dataset) (string, error) {
	return "EPSG:4978", nil
}

type stubRegistry struct{}

func (stubRegistry) Find(ds *schema.Dataset, scales, offsets [3]float64, dims []schema.Dimension) (schema.OutputSchema, bool) {
	if len(ds.OutputSchemas) > 0 {
		return ds.OutputSchemas[0], true
	}
	return schema.OutputSchema{}, false
}

func (r stubRegistry) FindByDimensions(ds *schema.Dataset, dims []schema.Dimension) (schema.OutputSchema, bool) {
	return r.Find(ds, [3]float64{}, [3]float64{}, dims)
}

func (stubRegistry) Register(context.Context, *schema.Dataset, [3]float64, [3]float64, int, []schema.Dimension) (int, error) {
	return 1, nil
}

type emptyStore struct{}

func (emptyStore) ReadPatch(context.Context, *schema.Dataset, schema.Bbox, int, int) ([]byte, error) {
	return nil, nil
}

func (emptyStore) NodePatch(context.Context, *schema.Dataset, schema.Bbox, int) ([]byte, error) {
	return nil, nil
}

func testRouter(t *testing.T) *mux.Router {
	t.Helper()
	config.Keys = config.ProgramConfig{Depth: 6}

	catalog := &stubCatalog{ds: &schema.Dataset{
		Schema: "public", Table: "pts", Column: "points",
		Srid: 4978, Bbox: schema.Bbox{Xmin: 0, Ymin: 0, Zmin: 0, Xmax: 100, Ymax: 100, Zmax: 10},
		ApproxRowCount: 10, PatchSize: 400,
		OutputSchemas: []schema.OutputSchema{{
			Pcid:       1,
			Dimensions: schema.SortDimensions(schema.GreyhoundReadDimensions()),
			Scales:     [3]float64{0.01, 0.01, 0.01},
			Offsets:    [3]float64{50, 50, 5},
		}},
	}}

	engine := hierarchy.NewEngine(emptyStore{}, 2)
	restApi := &RestApi{
		Greyhound: greyhound.NewService(catalog, stubRegistry{}, emptyStore{}, engine,
			hierarchy.NewCache(t.TempDir(), "")),
		Tilesets: threedtiles.NewBuilder(catalog, engine),
	}

	router := mux.NewRouter()
	restApi.MountRoutes(router)
	return router
}

func get(t *testing.T, router *mux.Router, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestInfoRoute(t *testing.T) {
	rec := get(t, testRouter(t), "/greyhound/pts/points/info")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"octree"`)
	assert.Contains(t, rec.Body.String(), `"baseDepth":0`)
	assert.Contains(t, rec.Body.String(), `"numPoints":4000`)
}

func TestInfoRouteUnknownTable(t *testing.T) {
	rec := get(t, testRouter(t), "/greyhound/missing/points/info")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadRouteEmptyFrame(t *testing.T) {
	rec := get(t, testRouter(t),
		"/greyhound/pts/points/read?depth=0&bounds=[0,0,0,0,0,0]&scale=0.01&offset=[50,50,5]")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0, 0, 0, 0}, rec.Body.Bytes())
}

func TestReadRouteMissingDepth(t *testing.T) {
	rec := get(t, testRouter(t), "/greyhound/pts/points/read?bounds=0,0,0,1,1,1&scale=0.01&offset=1,2,3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadRouteMalformedScale(t *testing.T) {
	rec := get(t, testRouter(t), "/greyhound/pts/points/read?depth=0&scale=tiny")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHierarchyRoute(t *testing.T) {
	rec := get(t, testRouter(t),
		"/greyhound/pts/points/hierarchy?bounds=0,0,0,100,100,10&depthBegin=8&depthEnd=10")

	assert.Equal(t, http.StatusOK, rec.Code)
	// The synthetic store is empty, so the document is the empty tree.
	assert.JSONEq(t, "{}", rec.Body.String())
}

func TestHierarchyRouteMissingDepths(t *testing.T) {
	rec := get(t, testRouter(t), "/greyhound/pts/points/hierarchy?bounds=0,0,0,1,1,1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTilesetRoute(t *testing.T) {
	rec := get(t, testRouter(t), "/3dtiles/pts/points/tileset.json")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"asset":{"version":"1.0"}`)
	assert.Contains(t, rec.Body.String(), `"refine":"ADD"`)
}

func TestParamHelpers(t *testing.T) {
	v, err := optTriple("[1,2,3]")
	assert.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, 3}, *v)

	v, err = optTriple("4, 5, 6")
	assert.NoError(t, err)
	assert.Equal(t, [3]float64{4, 5, 6}, *v)

	_, err = optTriple("1,2")
	assert.Error(t, err)

	dims, err := optSchema(`[{"name":"X","type":"signed","size":4}]`)
	assert.NoError(t, err)
	assert.Equal(t, "X", dims[0].Name)

	_, err = optSchema(`[{"name":"X","type":"imaginary","size":4}]`)
	assert.Error(t, err)

	_, err = optSchema(`[{"name":"X","type":"signed","size":0}]`)
	assert.Error(t, err)

	none, err := optInt("")
	assert.NoError(t, err)
	assert.Nil(t, none)
}
