package schema

import (
	"math"
	"sort"
)

// Dimension describes one attribute of a stored point, in the shape the
// Greyhound protocol uses on the wire.
type Dimension struct {
	Name string `json:"name"`
	// Interpretation is one of "signed", "unsigned" or "floating".
	Interpretation string `json:"type"`
	Size           int    `json:"size"`
}

// OutputSchema controls how stored points are quantized for transport.
// The triple (scales, offsets, sorted dimensions) identifies an OutputSchema
// within a dataset; the pcid is assigned by the store.
type OutputSchema struct {
	Pcid       int         `json:"pcid"`
	Dimensions []Dimension `json:"dimensions"`
	Scales     [3]float64  `json:"scales"`
	Offsets    [3]float64  `json:"offsets"`
	Srid       int         `json:"srid"`
}

// Dataset is one served point-cloud table. Registered at catalog load time and
// read-only afterwards, except for OutputSchema appends done by the registry.
type Dataset struct {
	Schema string `db:"schema_name"`
	Table  string `db:"table_name"`
	Column string `db:"column_name"`
	Srid   int    `db:"srid"`

	Bbox Bbox

	ApproxRowCount int64 `db:"approx_row_count"`
	PatchSize      int   `db:"patch_size"`

	// Policy caps, 0 means unset.
	MaxPointsPerPatch  int `db:"max_points_per_patch"`
	MaxPatchesPerQuery int `db:"max_patches_per_query"`

	// Spatial reference text, resolved lazily from spatial_ref_sys.
	SrsText string `db:"-"`

	OutputSchemas []OutputSchema `db:"-"`
}

// FullTable returns the schema-qualified table name.
func (d *Dataset) FullTable() string {
	return d.Schema + "." + d.Table
}

// PointSize is the byte size of one point under the given dimension list.
func PointSize(dims []Dimension) int {
	n := 0
	for _, d := range dims {
		n += d.Size
	}
	return n
}

// SortDimensions returns a copy of dims ordered by name, case-sensitively.
// Dimension order on the wire is client-chosen; identity comparisons always
// use the sorted form.
func SortDimensions(dims []Dimension) []Dimension {
	out := make([]Dimension, len(dims))
	copy(out, dims)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DimensionsEqual compares two dimension lists after sorting by name.
// Interpretation and size must match exactly.
func DimensionsEqual(a, b []Dimension) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := SortDimensions(a), SortDimensions(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Matches reports whether the output schema has exactly the given identity
// triple.
func (s *OutputSchema) Matches(scales, offsets [3]float64, dims []Dimension) bool {
	return s.Scales == scales && s.Offsets == offsets &&
		DimensionsEqual(s.Dimensions, dims)
}

// RoundOffsets rounds each offset to two decimals, the precision viewers use
// when echoing offsets back in requests.
func RoundOffsets(offsets [3]float64) [3]float64 {
	var out [3]float64
	for i, o := range offsets {
		out[i] = math.Round(o*100) / 100
	}
	return out
}
