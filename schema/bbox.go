package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Bbox is an axis-aligned box in world coordinates.
type Bbox struct {
	Xmin float64 `json:"xmin" db:"bbox_xmin"`
	Ymin float64 `json:"ymin" db:"bbox_ymin"`
	Zmin float64 `json:"zmin" db:"bbox_zmin"`
	Xmax float64 `json:"xmax" db:"bbox_xmax"`
	Ymax float64 `json:"ymax" db:"bbox_ymax"`
	Zmax float64 `json:"zmax" db:"bbox_zmax"`
}

// LocalBbox is a box in schema-local integer coordinates, as sent by viewers
// probing quantized data. It only becomes a world-space Bbox once combined
// with the output schema's scale and offset.
type LocalBbox struct {
	Xmin, Ymin, Zmin int64
	Xmax, Ymax, Zmax int64
}

// OctantCode labels one of the 8 children of a hierarchy node.
type OctantCode string

const (
	Nwd OctantCode = "nwd"
	Nwu OctantCode = "nwu"
	Ned OctantCode = "ned"
	Neu OctantCode = "neu"
	Swd OctantCode = "swd"
	Swu OctantCode = "swu"
	Sed OctantCode = "sed"
	Seu OctantCode = "seu"
)

// OctantCodes in the order children are dispatched.
var OctantCodes = [8]OctantCode{Nwd, Nwu, Ned, Neu, Swd, Swu, Sed, Seu}

// ParseBbox parses "xmin,ymin,zmin,xmax,ymax,zmax".
func ParseBbox(s string) (Bbox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return Bbox{}, fmt.Errorf("bounds must hold 6 comma separated values, got %#v", s)
	}
	var v [6]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bbox{}, fmt.Errorf("bounds: %w", err)
		}
		v[i] = f
	}
	return Bbox{v[0], v[1], v[2], v[3], v[4], v[5]}, nil
}

// ParseLocalBbox parses schema-local integer bounds. Fractional values are
// accepted and truncated, some viewers send them.
func ParseLocalBbox(s string) (LocalBbox, error) {
	b, err := ParseBbox(s)
	if err != nil {
		return LocalBbox{}, err
	}
	return LocalBbox{
		Xmin: int64(b.Xmin), Ymin: int64(b.Ymin), Zmin: int64(b.Zmin),
		Xmax: int64(b.Xmax), Ymax: int64(b.Ymax), Zmax: int64(b.Zmax),
	}, nil
}

// ToWorld converts schema-local coordinates into world coordinates using
// world = local * scale + offset on each axis.
func (b LocalBbox) ToWorld(scales, offsets [3]float64) Bbox {
	return Bbox{
		Xmin: float64(b.Xmin)*scales[0] + offsets[0],
		Ymin: float64(b.Ymin)*scales[1] + offsets[1],
		Zmin: float64(b.Zmin)*scales[2] + offsets[2],
		Xmax: float64(b.Xmax)*scales[0] + offsets[0],
		Ymax: float64(b.Ymax)*scales[1] + offsets[1],
		Zmax: float64(b.Zmax)*scales[2] + offsets[2],
	}
}

// Slice returns the box as [xmin,ymin,zmin,xmax,ymax,zmax].
func (b Bbox) Slice() []float64 {
	return []float64{b.Xmin, b.Ymin, b.Zmin, b.Xmax, b.Ymax, b.Zmax}
}

// FromSlice builds a Bbox from [xmin,ymin,zmin,xmax,ymax,zmax].
func FromSlice(v []float64) Bbox {
	return Bbox{v[0], v[1], v[2], v[3], v[4], v[5]}
}

// Polygon renders the XY footprint as a WKT coordinate ring, closing back on
// the first corner.
func (b Bbox) Polygon() string {
	return fmt.Sprintf("%f %f, %f %f, %f %f, %f %f, %f %f",
		b.Xmin, b.Ymin,
		b.Xmax, b.Ymin,
		b.Xmax, b.Ymax,
		b.Xmin, b.Ymax,
		b.Xmin, b.Ymin)
}

// Octant returns the child box for the given code. The 8 octants split the
// box at the geometric midpoint of each axis and tile it exactly.
func (b Bbox) Octant(code OctantCode) Bbox {
	midx := b.Xmin + (b.Xmax-b.Xmin)/2
	midy := b.Ymin + (b.Ymax-b.Ymin)/2
	midz := b.Zmin + (b.Zmax-b.Zmin)/2

	out := b
	switch code[0] {
	case 'n':
		out.Ymin = midy
	case 's':
		out.Ymax = midy
	}
	switch code[1] {
	case 'e':
		out.Xmin = midx
	case 'w':
		out.Xmax = midx
	}
	switch code[2] {
	case 'u':
		out.Zmin = midz
	case 'd':
		out.Zmax = midz
	}
	return out
}

// Contains reports whether o lies inside b (borders included).
func (b Bbox) Contains(o Bbox) bool {
	return o.Xmin >= b.Xmin && o.Xmax <= b.Xmax &&
		o.Ymin >= b.Ymin && o.Ymax <= b.Ymax &&
		o.Zmin >= b.Zmin && o.Zmax <= b.Zmax
}
