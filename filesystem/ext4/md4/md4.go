// Package md4 implements the cut-down, 4-word "half MD4" compression
// function the Linux kernel's ext2/3/4 htree directory hash uses. It
// is not a general-purpose MD4 implementation (there is no padding,
// finalization, or streaming API) and exists only to back the
// DX_HASH_HALF_MD4 hash version in the parent package's dirhash.go.
package md4

import "math/bits"

const (
	k2 = 0o13240474631
	k3 = 0o15666365641
)

func f(x, y, z uint32) uint32 { return z ^ (x & (y ^ z)) }
func g(x, y, z uint32) uint32 { return (x & y) + ((x ^ y) & z) }
func h(x, y, z uint32) uint32 { return x ^ y ^ z }

func round(a *uint32, f uint32, x uint32, s int) {
	*a = bits.RotateLeft32(*a+f+x, s)
}

// Transform runs one compression round of the 3-pass half-MD4
// function over 8 input words, accumulating into buf (4 words).
func Transform(buf *[4]uint32, in [8]uint32) {
	a, b, c, d := buf[0], buf[1], buf[2], buf[3]

	round(&a, f(b, c, d), in[0], 3)
	round(&d, f(a, b, c), in[1], 7)
	round(&c, f(d, a, b), in[2], 11)
	round(&b, f(c, d, a), in[3], 19)
	round(&a, f(b, c, d), in[4], 3)
	round(&d, f(a, b, c), in[5], 7)
	round(&c, f(d, a, b), in[6], 11)
	round(&b, f(c, d, a), in[7], 19)

	round(&a, g(b, c, d), in[1]+k2, 3)
	round(&d, g(a, b, c), in[3]+k2, 5)
	round(&c, g(d, a, b), in[5]+k2, 9)
	round(&b, g(c, d, a), in[7]+k2, 13)
	round(&a, g(b, c, d), in[0]+k2, 3)
	round(&d, g(a, b, c), in[2]+k2, 5)
	round(&c, g(d, a, b), in[4]+k2, 9)
	round(&b, g(c, d, a), in[6]+k2, 13)

	round(&a, h(b, c, d), in[3]+k3, 3)
	round(&d, h(a, b, c), in[7]+k3, 9)
	round(&c, h(d, a, b), in[2]+k3, 11)
	round(&b, h(c, d, a), in[6]+k3, 15)
	round(&a, h(b, c, d), in[1]+k3, 3)
	round(&d, h(a, b, c), in[5]+k3, 9)
	round(&c, h(d, a, b), in[0]+k3, 11)
	round(&b, h(c, d, a), in[4]+k3, 15)

	buf[0] += a
	buf[1] += b
	buf[2] += c
	buf[3] += d
}
