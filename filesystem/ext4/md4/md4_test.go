package md4

import "testing"

func TestTransformDeterministic(t *testing.T) {
	in := [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}

	buf1 := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}
	Transform(&buf1, in)

	buf2 := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}
	Transform(&buf2, in)

	if buf1 != buf2 {
		t.Fatalf("Transform is not deterministic: %#v vs %#v", buf1, buf2)
	}
}

func TestTransformDiffersByInput(t *testing.T) {
	a := [8]uint32{0, 0, 0, 0, 0, 0, 0, 0}
	b := [8]uint32{1, 0, 0, 0, 0, 0, 0, 0}

	init := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}

	bufA := init
	Transform(&bufA, a)
	bufB := init
	Transform(&bufB, b)

	if bufA == bufB {
		t.Fatalf("Transform produced identical output for different inputs: %#v", bufA)
	}
}

func TestTransformAccumulatesIntoBuf(t *testing.T) {
	in := [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}
	buf := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}
	before := buf

	Transform(&buf, in)

	if buf == before {
		t.Fatalf("Transform left buf unchanged")
	}
}
