// Package hierarchy synthesizes the octree hierarchy served to viewers: a
// recursive 1-to-8 subdivision of the dataset bbox where every present node
// carries the point count of its LoD sample.
package hierarchy

import (
	"context"

	"github.com/alitto/pond"

	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/patch"
	"github.com/lidarstack/pc-server/schema"
)

// Querier answers the one store query the engine issues per node.
type Querier interface {
	NodePatch(ctx context.Context, ds *schema.Dataset, box schema.Bbox, lod int) ([]byte, error)
}

// Engine builds hierarchy trees. Workers bounds the root fan-out and must not
// exceed the store's connection pool size: the root dispatches its 8 children
// to the pool and every deeper descent runs serially inside its worker, so at
// most `workers` store queries are in flight at once. A free-form recursive
// fan-out would request 8, 64, 512, ... connections and deadlock against the
// pool.
type Engine struct {
	store   Querier
	workers int
}

func NewEngine(store Querier, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{store: store, workers: workers}
}

// Build returns the hierarchy tree for the depth range [lodMin, lodMax] under
// the given root bbox. A lodMin > 0 skips ahead: the recursion starts at that
// depth. Store failures inside the tree prune the offending subtree instead
// of failing the build; an empty dataset yields an empty root.
func (e *Engine) Build(ctx context.Context, ds *schema.Dataset, lodMin, lodMax int, root schema.Bbox) *schema.HierarchyNode {
	depth := 0
	if lodMin > 0 {
		depth = lodMin
	}

	node := e.queryNode(ctx, ds, root, depth)
	if node == nil {
		return &schema.HierarchyNode{}
	}

	if depth < lodMax {
		pool := pond.New(e.workers, 0, pond.MinWorkers(e.workers), pond.Context(ctx))

		var children [8]*schema.HierarchyNode
		for i, code := range schema.OctantCodes {
			i, box := i, root.Octant(code)
			pool.Submit(func() {
				children[i] = e.descend(ctx, ds, box, depth+1, lodMax)
			})
		}
		pool.StopAndWait()

		for i, code := range schema.OctantCodes {
			if !children[i].Empty() {
				node.SetChild(code, children[i])
			}
		}
	}

	return node
}

// descend builds the subtree under box serially. Returns nil for empty or
// failed subtrees; by monotonicity an empty intersection has no descendants,
// so the recursion stops there.
func (e *Engine) descend(ctx context.Context, ds *schema.Dataset, box schema.Bbox, depth, lodMax int) *schema.HierarchyNode {
	node := e.queryNode(ctx, ds, box, depth)
	if node == nil {
		return nil
	}

	if depth < lodMax {
		for _, code := range schema.OctantCodes {
			child := e.descend(ctx, ds, box.Octant(code), depth+1, lodMax)
			if !child.Empty() {
				node.SetChild(code, child)
			}
		}
	}

	if node.Empty() {
		return nil
	}
	return node
}

func (e *Engine) queryNode(ctx context.Context, ds *schema.Dataset, box schema.Bbox, lod int) *schema.HierarchyNode {
	wkb, err := e.store.NodePatch(ctx, ds, box, lod)
	if err != nil {
		// Pruning the subtree keeps a partial store outage from failing
		// the whole tree; siblings continue.
		log.Debugf("hierarchy node at lod %d pruned: %s", lod, err)
		return nil
	}
	if wkb == nil {
		return nil
	}

	n, err := patch.Npoints(wkb)
	if err != nil {
		log.Debugf("hierarchy node at lod %d pruned: %s", lod, err)
		return nil
	}
	return &schema.HierarchyNode{N: n}
}
