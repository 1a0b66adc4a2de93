package bx

import "testing"

func TestRoundTrip(t *testing.T) {
	var b16 [2]byte
	PutU16(b16[:], 0xBEEF)
	if U16(b16[:]) != 0xBEEF {
		t.Fatalf("u16 round trip failed")
	}

	var b32 [4]byte
	PutU32(b32[:], 0xDEADBEEF)
	if U32(b32[:]) != 0xDEADBEEF {
		t.Fatalf("u32 round trip failed")
	}

	var b64 [8]byte
	PutU64(b64[:], 0x1122334455667788)
	if U64(b64[:]) != 0x1122334455667788 {
		t.Fatalf("u64 round trip failed")
	}

	var bi32 [4]byte
	PutI32(bi32[:], -7)
	if I32(bi32[:]) != -7 {
		t.Fatalf("i32 round trip failed")
	}
}
