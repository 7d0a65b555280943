package greyhound

import (
	"context"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
)

// InfoDocument is the root metadata document of a dataset.
type InfoDocument struct {
	BaseDepth        int                   `json:"baseDepth"`
	Bounds           []float64             `json:"bounds"`
	BoundsConforming []float64             `json:"boundsConforming"`
	NumPoints        int64                 `json:"numPoints"`
	Schema           []schema.Dimension    `json:"schema"`
	OutputSchemas    []schema.OutputSchema `json:"outputSchemas"`
	Srs              string                `json:"srs"`
	Type             string                `json:"type"`
}

// Info composes the root metadata document: bounds, srs, the approximate
// total point count and the advertised schema.
func (s *Service) Info(ctx context.Context, table, column string) (*InfoDocument, error) {
	ds, err := s.catalog.Lookup(table, column)
	if err != nil {
		return nil, err
	}

	bounds := ds.Bbox.Slice()
	if bb := config.Keys.BoundingBox; len(bb) == 6 {
		bounds = bb
	}

	srs, err := s.catalog.SrsText(ctx, ds)
	if err != nil {
		// The srs is advisory for most viewers; keep the document usable.
		log.Warnf("srs lookup for %s.%s: %s", ds.FullTable(), ds.Column, err)
		srs = ""
	}

	return &InfoDocument{
		BaseDepth:        0,
		Bounds:           bounds,
		BoundsConforming: bounds,
		NumPoints:        ds.ApproxRowCount * int64(ds.PatchSize),
		Schema:           schema.GreyhoundInfoDimensions(),
		OutputSchemas:    s.catalog.OutputSchemas(ds),
		Srs:              srs,
		Type:             "octree",
	}, nil
}
