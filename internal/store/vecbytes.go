package store

import (
	"encoding/binary"
	"math"
)

// encodeVector packs a []float32 into a little-endian byte blob for BLOB
// storage in a shard table. A plain fixed-width binary encoding (rather
// than gob, which the reference HNSW store uses for whole-graph snapshots)
// keeps each row self-describing and cheap to decode for the brute-force
// distance scan in vector.go.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a byte blob written by encodeVector back into a
// []float32 of the given dimension.
func decodeVector(buf []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
