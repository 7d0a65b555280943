package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
)

// catalogTable records each served dataset. Created on demand at startup.
const catalogTable = "pointcloud_catalog"

// catalogOutputsTable maps datasets to the pcids registered for them.
const catalogOutputsTable = "pointcloud_catalog_outputs"

// Catalog holds the per-dataset metadata for one server instance. Initialized
// from the metadata table at startup; afterwards the only mutation is the
// registry appending output schemas.
type Catalog struct {
	store *Store

	mu       sync.RWMutex
	datasets map[string]*schema.Dataset
}

func NewCatalog(store *Store) *Catalog {
	return &Catalog{
		store:    store,
		datasets: map[string]*schema.Dataset{},
	}
}

func datasetKey(fullTable, column string) string {
	return fullTable + "/" + column
}

// EnsureSchema creates the metadata tables if missing.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`create table if not exists ` + catalogTable + ` (
			schema_name text not null,
			table_name text not null,
			column_name text not null,
			srid integer not null,
			bbox_xmin double precision not null,
			bbox_ymin double precision not null,
			bbox_zmin double precision not null,
			bbox_xmax double precision not null,
			bbox_ymax double precision not null,
			bbox_zmax double precision not null,
			patch_size integer not null,
			max_points_per_patch integer not null default 0,
			max_patches_per_query integer not null default 0,
			primary key (schema_name, table_name, column_name)
		)`,
		`create table if not exists ` + catalogOutputsTable + ` (
			schema_name text not null,
			table_name text not null,
			column_name text not null,
			pcid integer not null references pointcloud_formats (pcid),
			primary key (schema_name, table_name, column_name, pcid)
		)`,
		// Rejects concurrent registrations of the same schema triple.
		`create unique index if not exists pointcloud_formats_schema_uniq
			on pointcloud_formats (srid, md5(schema))`,
	}

	for _, stmt := range ddl {
		if _, err := c.store.DB.ExecContext(ctx, stmt); err != nil {
			return &StoreError{Err: err}
		}
	}
	return nil
}

// Load reads all datasets and their registered output schemas from the store.
func (c *Catalog) Load(ctx context.Context) error {
	query, args, err := sq.Select(
		"schema_name", "table_name", "column_name", "srid",
		"bbox_xmin", "bbox_ymin", "bbox_zmin", "bbox_xmax", "bbox_ymax", "bbox_zmax",
		"patch_size", "max_points_per_patch", "max_patches_per_query").
		From(catalogTable).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	rows, err := c.store.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return &StoreError{Err: err}
	}
	defer rows.Close()

	datasets := map[string]*schema.Dataset{}
	for rows.Next() {
		ds := &schema.Dataset{}
		if err := rows.Scan(
			&ds.Schema, &ds.Table, &ds.Column, &ds.Srid,
			&ds.Bbox.Xmin, &ds.Bbox.Ymin, &ds.Bbox.Zmin,
			&ds.Bbox.Xmax, &ds.Bbox.Ymax, &ds.Bbox.Zmax,
			&ds.PatchSize, &ds.MaxPointsPerPatch, &ds.MaxPatchesPerQuery); err != nil {
			return &StoreError{Err: err}
		}
		datasets[datasetKey(ds.FullTable(), ds.Column)] = ds
	}
	if err := rows.Err(); err != nil {
		return &StoreError{Err: err}
	}

	for _, ds := range datasets {
		if err := c.loadOutputs(ctx, ds); err != nil {
			return err
		}
		if err := c.refreshRowCount(ctx, ds); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.datasets = datasets
	c.mu.Unlock()

	log.Infof("catalog loaded: %d datasets", len(datasets))
	return nil
}

func (c *Catalog) loadOutputs(ctx context.Context, ds *schema.Dataset) error {
	query, args, err := sq.Select("f.pcid", "f.srid", "f.schema").
		From(catalogOutputsTable+" o").
		Join("pointcloud_formats f on f.pcid = o.pcid").
		Where("o.schema_name = ?", ds.Schema).
		Where("o.table_name = ?", ds.Table).
		Where("o.column_name = ?", ds.Column).
		OrderBy("f.pcid").
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return err
	}

	rows, err := c.store.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return &StoreError{Err: err}
	}
	defer rows.Close()

	ds.OutputSchemas = nil
	for rows.Next() {
		var pcid, srid int
		var xml string
		if err := rows.Scan(&pcid, &srid, &xml); err != nil {
			return &StoreError{Err: err}
		}
		out, err := parseFormatXML(xml)
		if err != nil {
			return fmt.Errorf("pcid %d: %w", pcid, err)
		}
		out.Pcid = pcid
		out.Srid = srid
		ds.OutputSchemas = append(ds.OutputSchemas, out)
	}
	return rows.Err()
}

// refreshRowCount takes the planner's row estimate; exact counts are far too
// expensive on billion-point tables.
func (c *Catalog) refreshRowCount(ctx context.Context, ds *schema.Dataset) error {
	err := c.store.DB.QueryRowxContext(ctx,
		"select greatest(reltuples::bigint, 0) from pg_class where oid = $1::regclass",
		ds.FullTable()).Scan(&ds.ApproxRowCount)
	if err != nil {
		return &StoreError{Err: err}
	}
	return nil
}

// Lookup resolves a dataset by request parameters. A table without a schema
// prefix is taken from public.
func (c *Catalog) Lookup(table, column string) (*schema.Dataset, error) {
	if !strings.Contains(table, ".") {
		table = "public." + table
	}
	if column == "" {
		column = "points"
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.datasets[datasetKey(table, column)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, column)
	}
	return ds, nil
}

// Add registers a dataset in memory. Used by tests and by the loader glue.
func (c *Catalog) Add(ds *schema.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets[datasetKey(ds.FullTable(), ds.Column)] = ds
}

// OutputSchemas returns a snapshot of the dataset's registered schemas.
func (c *Catalog) OutputSchemas(ds *schema.Dataset) []schema.OutputSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]schema.OutputSchema, len(ds.OutputSchemas))
	copy(out, ds.OutputSchemas)
	return out
}

func (c *Catalog) appendOutput(ds *schema.Dataset, out schema.OutputSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds.OutputSchemas = append(ds.OutputSchemas, out)
}

// SrsText resolves the dataset's spatial reference text, caching it on the
// dataset entry.
func (c *Catalog) SrsText(ctx context.Context, ds *schema.Dataset) (string, error) {
	c.mu.RLock()
	cached := ds.SrsText
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	var srtext string
	err := c.store.DB.QueryRowxContext(ctx,
		"select srtext from spatial_ref_sys where srid = $1", ds.Srid).Scan(&srtext)
	if err != nil {
		return "", &StoreError{Err: err}
	}

	c.mu.Lock()
	ds.SrsText = srtext
	c.mu.Unlock()
	return srtext, nil
}
