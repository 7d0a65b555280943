package repository

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/lidarstack/pc-server/config"
	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
)

// Store wraps the pooled connections to the spatial point-cloud store.
// The pool size also bounds hierarchy-engine parallelism.
type Store struct {
	DB *sqlx.DB
}

// Connect opens the store connection pool. The pgx stdlib driver must be
// linked in by the caller.
func Connect(dsn string, poolSize int) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, &StoreError{Err: err}
	}

	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if err := db.Ping(); err != nil {
		return nil, &StoreError{Err: err}
	}

	return &Store{DB: db}, nil
}

// NodePatch runs the per-node hierarchy query: the union of rank-range
// sampled points of all patches intersecting the node's bbox, as one
// aggregated uncompressed patch. Returns nil when the node is empty.
func (s *Store) NodePatch(ctx context.Context, ds *schema.Dataset, box schema.Bbox, lod int) ([]byte, error) {
	query, args := patchQuery(ds, box, lod, 0)
	return s.queryPatch(ctx, query, args)
}

// ReadPatch runs the per-node read query: like NodePatch, but the aggregate
// is restamped with the requested output schema's pcid and LAZ-compressed by
// the store.
func (s *Store) ReadPatch(ctx context.Context, ds *schema.Dataset, box schema.Bbox, lod, pcid int) ([]byte, error) {
	query, args := patchQuery(ds, box, lod, pcid)
	return s.queryPatch(ctx, query, args)
}

func (s *Store) queryPatch(ctx context.Context, query string, args []interface{}) ([]byte, error) {
	log.Debugf("store query: %s args: %v", strings.Join(strings.Fields(query), " "), args)

	var hexpatch sql.NullString
	err := s.DB.QueryRowxContext(ctx, query, args...).Scan(&hexpatch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	if !hexpatch.Valid || hexpatch.String == "" {
		return nil, nil
	}

	// Patches arrive as their hex text representation.
	wkb, err := hex.DecodeString(hexpatch.String)
	if err != nil {
		return nil, &StoreError{Err: fmt.Errorf("decoding patch hex: %w", err)}
	}
	return wkb, nil
}

// patchQuery builds the aggregated per-node query. With pcid == 0 the plain
// union is returned (hierarchy counts); otherwise the union is restamped to
// pcid and compressed to LAZ (reads).
func patchQuery(ds *schema.Dataset, box schema.Bbox, lod, pcid int) (string, []interface{}) {
	rangeMin, rangeCount := lodRange(ds, lod)

	limit := ""
	if q := maxPatchesPerQuery(ds); q > 0 {
		limit = fmt.Sprintf(" limit %d", q)
	}

	// Patch order drives which patches survive the limit. Without the
	// morton column there is no spatial ordering; id keeps repeated calls
	// stable.
	order := " order by id"
	if config.Keys.UseMorton {
		order = " order by morton"
	}

	sel := fmt.Sprintf(
		"pc_union(pc_filterbetween(pc_range(%s, $1, $2), 'Z', $3, $4))",
		ds.Column)
	if pcid > 0 {
		sel = fmt.Sprintf("pc_compress(pc_patchtransform(%s, %d), 'laz')", sel, pcid)
	}

	query := fmt.Sprintf(
		"select %s from (select %s from %s where pc_intersects(%s, st_geomfromtext($5, %d))%s%s) _",
		sel, ds.Column, ds.FullTable(), ds.Column, ds.Srid, order, limit)

	poly := fmt.Sprintf("polygon ((%s))", box.Polygon())
	args := []interface{}{rangeMin, rangeCount, box.Zmin, box.Zmax, poly}

	return query, args
}

// lodRange maps a LoD onto the rank range sampled inside each patch. At depth
// d the first sum(4^i, i<d) ranked points were already emitted by ancestor
// nodes; the node takes the next 4^d. A configured max-points-per-patch cap
// replaces that with a flat [0, M) range at every LoD.
func lodRange(ds *schema.Dataset, lod int) (int, int) {
	if m := maxPointsPerPatch(ds); m > 0 {
		return 0, m
	}

	beg := 0
	for i := 0; i < lod; i++ {
		beg += pow4(i)
	}
	return beg, pow4(lod)
}

func maxPointsPerPatch(ds *schema.Dataset) int {
	if ds.MaxPointsPerPatch > 0 {
		return ds.MaxPointsPerPatch
	}
	return config.Keys.MaxPointsPerPatch
}

func maxPatchesPerQuery(ds *schema.Dataset) int {
	if ds.MaxPatchesPerQuery > 0 {
		return ds.MaxPatchesPerQuery
	}
	return config.Keys.MaxPatchesPerQuery
}

func pow4(n int) int {
	return 1 << (2 * n)
}
