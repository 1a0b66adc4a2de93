package btree

import (
	"cmp"

	"ddbstore/internal/bx"
)

// KeyCodec fixes the wire width and (de)serialization of a key type,
// generalizing the teacher's hardcoded int64 KeyType into a type
// parameter with a total order (cmp.Ordered) plus an injected codec,
// since Go generics alone cannot produce a fixed-width byte encoding for
// an arbitrary ordered type.
type KeyCodec[K cmp.Ordered] struct {
	Size   int
	Encode func(K) []byte
	Decode func([]byte) K
}

// Int64Codec is the direct generalization target: an 8-byte big-endian-free
// (little-endian, like every other on-disk field in this module) integer
// key, matching the teacher's original fixed KeyType = int64.
func Int64Codec() KeyCodec[int64] {
	return KeyCodec[int64]{
		Size: 8,
		Encode: func(k int64) []byte {
			b := make([]byte, 8)
			bx.PutU64(b, uint64(k))
			return b
		},
		Decode: func(b []byte) int64 { return int64(bx.U64(b)) },
	}
}

// Int32Codec is a 4-byte integer key, used by the spec's worked split
// scenario ("B+ tree over 4-byte integer keys").
func Int32Codec() KeyCodec[int32] {
	return KeyCodec[int32]{
		Size: 4,
		Encode: func(k int32) []byte {
			b := make([]byte, 4)
			bx.PutI32(b, k)
			return b
		},
		Decode: func(b []byte) int32 { return bx.I32(b) },
	}
}

const ridSize = 6 // page-id:u32 + slot:u16

func encodeRID(pageID uint32, slot uint16, out []byte) {
	bx.PutU32(out, pageID)
	bx.PutU16(out[4:], slot)
}

func decodeRID(b []byte) (pageID uint32, slot uint16) {
	return bx.U32(b), bx.U16At(b, 4)
}
