package greyhound

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/repository"
	"github.com/lidarstack/pc-server/schema"
)

func infoService(catalog *fakeCatalog) *Service {
	return NewService(catalog, &fakeRegistry{catalog: catalog, nextPcid: 1}, &fakeReadStore{}, nil, nil)
}

func TestInfo(t *testing.T) {
	config.Keys = config.ProgramConfig{Depth: 6}
	catalog := &fakeCatalog{ds: greyhoundDataset(), srs: `GEOCCS["WGS 84",...]`}
	s := infoService(catalog)

	doc, err := s.Info(context.Background(), "pts", "points")
	assert.NoError(t, err)

	assert.Equal(t, 0, doc.BaseDepth)
	assert.Equal(t, []float64{0, 0, 0, 100, 100, 10}, doc.Bounds)
	assert.Equal(t, doc.Bounds, doc.BoundsConforming)
	assert.Equal(t, int64(4000), doc.NumPoints)
	assert.Equal(t, "octree", doc.Type)
	assert.Equal(t, schema.GreyhoundInfoDimensions(), doc.Schema)
	assert.Len(t, doc.OutputSchemas, 1)
	assert.Equal(t, 1, doc.OutputSchemas[0].Pcid)
	assert.Contains(t, doc.Srs, "WGS 84")
}

func TestInfoUnknownDataset(t *testing.T) {
	config.Keys = config.ProgramConfig{Depth: 6}
	s := infoService(&fakeCatalog{ds: greyhoundDataset()})

	_, err := s.Info(context.Background(), "nope", "points")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInfoBoundingBoxOverride(t *testing.T) {
	config.Keys = config.ProgramConfig{
		Depth:       6,
		BoundingBox: []float64{-10, -10, -1, 10, 10, 1},
	}
	s := infoService(&fakeCatalog{ds: greyhoundDataset()})

	doc, err := s.Info(context.Background(), "pts", "points")
	assert.NoError(t, err)
	assert.Equal(t, config.Keys.BoundingBox, doc.Bounds)
}

func TestInfoSurvivesSrsFailure(t *testing.T) {
	config.Keys = config.ProgramConfig{Depth: 6}
	s := infoService(&fakeCatalog{ds: greyhoundDataset(), srsErr: errors.New("srs table gone")})

	doc, err := s.Info(context.Background(), "pts", "points")
	assert.NoError(t, err)
	assert.Equal(t, "", doc.Srs)
}
