package repository

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"sync"

	sq "github.com/Masterminds/squirrel"

	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
)

// SchemaRegistry registers and looks up output schemas for a dataset. Lookups
// run against the catalog's in-memory list; registrations persist through the
// store's native pointcloud_formats table before the list is updated.
type SchemaRegistry struct {
	store   *Store
	catalog *Catalog

	// Serializes in-process registrations; cross-process races are caught
	// by the store's unique index and recovered by re-query.
	mu sync.Mutex
}

func NewSchemaRegistry(store *Store, catalog *Catalog) *SchemaRegistry {
	return &SchemaRegistry{store: store, catalog: catalog}
}

// Find looks up the output schema with exactly the given identity triple.
func (r *SchemaRegistry) Find(ds *schema.Dataset, scales, offsets [3]float64, dims []schema.Dimension) (schema.OutputSchema, bool) {
	for _, out := range r.catalog.OutputSchemas(ds) {
		if out.Matches(scales, offsets, dims) {
			return out, true
		}
	}
	return schema.OutputSchema{}, false
}

// FindByDimensions matches on the sorted dimension list alone. Used for
// normalization probes, where the viewer names a schema without pinning
// scale or offset.
func (r *SchemaRegistry) FindByDimensions(ds *schema.Dataset, dims []schema.Dimension) (schema.OutputSchema, bool) {
	for _, out := range r.catalog.OutputSchemas(ds) {
		if schema.DimensionsEqual(out.Dimensions, dims) {
			return out, true
		}
	}
	return schema.OutputSchema{}, false
}

// Register persists a new output schema and returns its pcid. Idempotent: an
// already-registered triple returns the existing pcid, including when the
// insert loses a registration race against another server instance.
func (r *SchemaRegistry) Register(ctx context.Context, ds *schema.Dataset, scales, offsets [3]float64, srid int, dims []schema.Dimension) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := schema.SortDimensions(dims)
	if out, ok := r.Find(ds, scales, offsets, sorted); ok {
		return out.Pcid, nil
	}

	pcid, err := r.insert(ctx, ds, srid, formatXML(sorted, scales, offsets))
	if err != nil {
		// The store's unique index rejects a concurrent registration of
		// the same triple. Re-query and use the winner.
		log.Debugf("schema insert failed, re-querying: %s", err)
		if out, ok := r.refind(ctx, ds, scales, offsets, sorted); ok {
			return out.Pcid, nil
		}
		return 0, err
	}

	r.catalog.appendOutput(ds, schema.OutputSchema{
		Pcid:       pcid,
		Dimensions: sorted,
		Scales:     scales,
		Offsets:    offsets,
		Srid:       srid,
	})

	log.Infof("registered output schema pcid %d for %s.%s", pcid, ds.FullTable(), ds.Column)
	return pcid, nil
}

func (r *SchemaRegistry) insert(ctx context.Context, ds *schema.Dataset, srid int, xmldoc string) (int, error) {
	tx, err := r.store.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &StoreError{Err: err}
	}
	defer tx.Rollback()

	var pcid int
	err = tx.QueryRowxContext(ctx,
		`insert into pointcloud_formats (pcid, srid, schema)
		 select coalesce(max(pcid), 0) + 1, $1, $2 from pointcloud_formats
		 returning pcid`,
		srid, xmldoc).Scan(&pcid)
	if err != nil {
		return 0, &StoreError{Err: err}
	}

	query, args, err := sq.Insert(catalogOutputsTable).
		Columns("schema_name", "table_name", "column_name", "pcid").
		Values(ds.Schema, ds.Table, ds.Column, pcid).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, &StoreError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StoreError{Err: err}
	}
	return pcid, nil
}

// refind reloads the dataset's outputs from the store, then retries the
// in-memory lookup.
func (r *SchemaRegistry) refind(ctx context.Context, ds *schema.Dataset, scales, offsets [3]float64, dims []schema.Dimension) (schema.OutputSchema, bool) {
	fresh := &schema.Dataset{Schema: ds.Schema, Table: ds.Table, Column: ds.Column}
	if err := r.catalog.loadOutputs(ctx, fresh); err != nil {
		log.Warnf("reloading output schemas for %s.%s: %s", ds.FullTable(), ds.Column, err)
		return schema.OutputSchema{}, false
	}

	r.catalog.mu.Lock()
	ds.OutputSchemas = fresh.OutputSchemas
	r.catalog.mu.Unlock()

	return r.Find(ds, scales, offsets, dims)
}

// pgpointcloud schema documents

type pcSchemaXML struct {
	XMLName    xml.Name         `xml:"pc:PointCloudSchema"`
	Xmlns      string           `xml:"xmlns:pc,attr"`
	Dimensions []pcDimensionXML `xml:"pc:dimension"`
}

type pcDimensionXML struct {
	Position       int    `xml:"pc:position"`
	Size           int    `xml:"pc:size"`
	Name           string `xml:"pc:name"`
	Interpretation string `xml:"pc:interpretation"`
	Scale          string `xml:"pc:scale,omitempty"`
	Offset         string `xml:"pc:offset,omitempty"`
}

// parsed form; element names differ because the pc: prefix is literal text on
// output but a resolved namespace on input.
type pcSchemaParse struct {
	Dimensions []struct {
		Position       int    `xml:"position"`
		Size           int    `xml:"size"`
		Name           string `xml:"name"`
		Interpretation string `xml:"interpretation"`
		Scale          string `xml:"scale"`
		Offset         string `xml:"offset"`
	} `xml:"dimension"`
}

// formatXML renders an output schema as a pgpointcloud schema document.
// XYZ dimensions carry the scale and offset of their axis.
func formatXML(dims []schema.Dimension, scales, offsets [3]float64) string {
	doc := pcSchemaXML{Xmlns: "http://pointcloud.org/schemas/PC/1.1"}

	for i, d := range dims {
		dim := pcDimensionXML{
			Position:       i + 1,
			Size:           d.Size,
			Name:           d.Name,
			Interpretation: pcInterpretation(d),
		}
		if axis := axisIndex(d.Name); axis >= 0 {
			dim.Scale = strconv.FormatFloat(scales[axis], 'f', -1, 64)
			dim.Offset = strconv.FormatFloat(offsets[axis], 'f', -1, 64)
		}
		doc.Dimensions = append(doc.Dimensions, dim)
	}

	out, _ := xml.MarshalIndent(doc, "", " ")
	return xml.Header + string(out)
}

// parseFormatXML reads a pgpointcloud schema document back into an
// OutputSchema (pcid and srid are filled in by the caller).
func parseFormatXML(doc string) (schema.OutputSchema, error) {
	var parsed pcSchemaParse
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return schema.OutputSchema{}, fmt.Errorf("parsing schema document: %w", err)
	}

	out := schema.OutputSchema{Scales: [3]float64{1, 1, 1}}
	for _, d := range parsed.Dimensions {
		interp, size, err := fromPCInterpretation(d.Interpretation, d.Size)
		if err != nil {
			return schema.OutputSchema{}, fmt.Errorf("dimension %s: %w", d.Name, err)
		}
		out.Dimensions = append(out.Dimensions, schema.Dimension{
			Name:           d.Name,
			Interpretation: interp,
			Size:           size,
		})

		if axis := axisIndex(d.Name); axis >= 0 {
			if d.Scale != "" {
				if out.Scales[axis], err = strconv.ParseFloat(d.Scale, 64); err != nil {
					return schema.OutputSchema{}, fmt.Errorf("dimension %s scale: %w", d.Name, err)
				}
			}
			if d.Offset != "" {
				if out.Offsets[axis], err = strconv.ParseFloat(d.Offset, 64); err != nil {
					return schema.OutputSchema{}, fmt.Errorf("dimension %s offset: %w", d.Name, err)
				}
			}
		}
	}

	out.Dimensions = schema.SortDimensions(out.Dimensions)
	return out, nil
}

func axisIndex(name string) int {
	switch name {
	case "X":
		return 0
	case "Y":
		return 1
	case "Z":
		return 2
	}
	return -1
}

func pcInterpretation(d schema.Dimension) string {
	switch d.Interpretation {
	case "floating":
		if d.Size == 4 {
			return "float"
		}
		return "double"
	case "unsigned":
		return fmt.Sprintf("uint%d_t", d.Size*8)
	default:
		return fmt.Sprintf("int%d_t", d.Size*8)
	}
}

func fromPCInterpretation(interp string, size int) (string, int, error) {
	switch interp {
	case "float":
		return "floating", 4, nil
	case "double":
		return "floating", 8, nil
	case "int8_t", "int16_t", "int32_t", "int64_t":
		return "signed", size, nil
	case "uint8_t", "uint16_t", "uint32_t", "uint64_t":
		return "unsigned", size, nil
	}
	return "", 0, fmt.Errorf("unknown interpretation %#v", interp)
}
