// Package patch reads and writes the WKB point-cloud patch format returned by
// the store for pc_compress'd and aggregated patches.
//
// Byte layout:
//
//	0        endianness flag (0 = big, 1 = little)
//	1..4     WKB type tag
//	5..8     pcid
//	9..12    point count
//	13..16   payload byte length
//	17..24   restamped pcid and byte-count words of the compression envelope
//	25..     payload
//
// All multi-byte fields honour the byte-0 endianness flag. Outward-facing
// footers are always little-endian regardless of the patch endianness; that is
// a protocol requirement of the consuming viewers.
package patch

import (
	"encoding/binary"
	"fmt"

	"github.com/lidarstack/pc-server/schema"
)

const (
	// HeaderSize is the offset of the first payload byte.
	HeaderSize = 25

	npointsOffset = 9
	sizeOffset    = 13
)

// Npoints reads the point count word of a WKB patch.
func Npoints(wkb []byte) (uint32, error) {
	if len(wkb) < npointsOffset+4 {
		return 0, fmt.Errorf("patch truncated: %d bytes", len(wkb))
	}
	return byteOrder(wkb[0]).Uint32(wkb[npointsOffset:]), nil
}

// Payload returns the payload slice of a WKB patch. The slice aliases wkb.
func Payload(wkb []byte) ([]byte, error) {
	if len(wkb) < HeaderSize {
		return nil, fmt.Errorf("patch truncated: %d bytes", len(wkb))
	}
	return wkb[HeaderSize:], nil
}

// AppendCountLE appends the little-endian point-count footer to buf.
func AppendCountLE(buf []byte, n uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, n)
}

// EmptyFrame is the 4-byte response for an empty or failed read.
func EmptyFrame() []byte {
	return AppendCountLE(nil, 0)
}

// Encode builds a WKB patch around the given payload. Used by the synthetic
// stores in tests and by tooling; the serving path only ever decodes.
func Encode(pcid, npoints uint32, payload []byte, littleEndian bool) []byte {
	bo := binary.ByteOrder(binary.BigEndian)
	flag := byte(0)
	if littleEndian {
		bo = binary.LittleEndian
		flag = 1
	}

	wkb := make([]byte, HeaderSize, HeaderSize+len(payload))
	wkb[0] = flag
	bo.PutUint32(wkb[1:], 1) // type tag
	bo.PutUint32(wkb[5:], pcid)
	bo.PutUint32(wkb[npointsOffset:], npoints)
	bo.PutUint32(wkb[sizeOffset:], uint32(len(payload)))
	bo.PutUint32(wkb[17:], pcid)
	bo.PutUint32(wkb[21:], uint32(len(payload)))
	return append(wkb, payload...)
}

// SplitPoints slices an uncompressed payload into per-point records under the
// given dimension list. Debug helper, LAZ payloads must be decompressed by the
// caller first.
func SplitPoints(payload []byte, dims []schema.Dimension) ([][]byte, error) {
	size := schema.PointSize(dims)
	if size == 0 {
		return nil, fmt.Errorf("dimension list is empty")
	}
	if len(payload)%size != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a multiple of the %d byte point size",
			len(payload), size)
	}
	points := make([][]byte, 0, len(payload)/size)
	for off := 0; off < len(payload); off += size {
		points = append(points, payload[off:off+size])
	}
	return points, nil
}

func byteOrder(flag byte) binary.ByteOrder {
	if flag == 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
