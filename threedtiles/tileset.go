// Package threedtiles produces the root document of the tiled 3D scene
// protocol. Only the tileset document is composed here; the tile payloads
// it names are not served by this package.
package threedtiles

import (
	"context"
	"fmt"
	"math"

	"github.com/lidarstack/pc-server/hierarchy"
	"github.com/lidarstack/pc-server/schema"
)

// Catalog is the subset of dataset metadata the builder needs.
type Catalog interface {
	Lookup(table, column string) (*schema.Dataset, error)
}

// Tileset is the root scene document.
type Tileset struct {
	Asset          Asset   `json:"asset"`
	GeometricError float64 `json:"geometricError"`
	Root           Tile    `json:"root"`
}

type Asset struct {
	Version string `json:"version"`
}

type Tile struct {
	BoundingVolume BoundingVolume `json:"boundingVolume"`
	GeometricError float64        `json:"geometricError"`
	Refine         string         `json:"refine,omitempty"`
	Content        *Content       `json:"content,omitempty"`
	Children       []Tile         `json:"children,omitempty"`
}

type BoundingVolume struct {
	// Box holds center + three half-axis vectors.
	Box [12]float64 `json:"box"`
}

type Content struct {
	URI string `json:"uri"`
}

// Builder composes tileset documents over the hierarchy engine.
type Builder struct {
	catalog Catalog
	engine  *hierarchy.Engine
}

func NewBuilder(catalog Catalog, engine *hierarchy.Engine) *Builder {
	return &Builder{catalog: catalog, engine: engine}
}

// Tileset builds the root document. The root tile covers the dataset bbox
// and refines additively; one child tile is emitted per non-empty root
// octant, each naming its own depth-1 content resource.
func (b *Builder) Tileset(ctx context.Context, table, column string) (*Tileset, error) {
	ds, err := b.catalog.Lookup(table, column)
	if err != nil {
		return nil, err
	}

	tree := b.engine.Build(ctx, ds, 0, 1, ds.Bbox)

	root := Tile{
		BoundingVolume: boxVolume(ds.Bbox),
		GeometricError: diagonal(ds.Bbox) / 2,
		Refine:         "ADD",
		Content:        &Content{URI: contentURI(0, "root")},
	}

	for _, code := range schema.OctantCodes {
		if tree.Child(code) == nil {
			continue
		}
		box := ds.Bbox.Octant(code)
		root.Children = append(root.Children, Tile{
			BoundingVolume: boxVolume(box),
			GeometricError: diagonal(box) / 2,
			Content:        &Content{URI: contentURI(1, string(code))},
		})
	}

	return &Tileset{
		Asset:          Asset{Version: "1.0"},
		GeometricError: diagonal(ds.Bbox),
		Root:           root,
	}, nil
}

func boxVolume(b schema.Bbox) BoundingVolume {
	return BoundingVolume{Box: [12]float64{
		(b.Xmin + b.Xmax) / 2, (b.Ymin + b.Ymax) / 2, (b.Zmin + b.Zmax) / 2,
		(b.Xmax - b.Xmin) / 2, 0, 0,
		0, (b.Ymax - b.Ymin) / 2, 0,
		0, 0, (b.Zmax - b.Zmin) / 2,
	}}
}

func diagonal(b schema.Bbox) float64 {
	dx, dy, dz := b.Xmax-b.Xmin, b.Ymax-b.Ymin, b.Zmax-b.Zmin
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// contentURI names the tile payload resource, relative to the tileset.json
// location. The routes mounted by the api package serve tileset.json only,
// not these resources.
func contentURI(depth int, code string) string {
	return fmt.Sprintf("r%d-%s.pnts", depth, code)
}
