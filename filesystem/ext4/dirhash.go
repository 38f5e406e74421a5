package ext4

import (
	"github.com/ext4view/ext4view/filesystem/ext4/md4"
)

const teaDelta uint32 = 0x9E3779B9

// TEATransform runs 16 Feistel rounds of the Tiny Encryption Algorithm
// over 4 input words, accumulating into the first 2 words of buf. It
// backs the DX_HASH_TEA htree hash version.
func TEATransform(buf [4]uint32, in []uint32) [4]uint32 {
	var sum uint32
	b0, b1 := buf[0], buf[1]
	a, b, c, d := in[0], in[1], in[2], in[3]

	for n := 0; n < 16; n++ {
		sum += teaDelta
		b0 += ((b1 << 4) + a) ^ (b1 + sum) ^ ((b1 >> 5) + b)
		b1 += ((b0 << 4) + c) ^ (b0 + sum) ^ ((b0 >> 5) + d)
	}

	buf[0] += b0
	buf[1] += b1
	return buf
}

// str2hashbuf packs a name fragment into num 32-bit words the way the
// kernel's str2hashbuf_signed/unsigned do: each byte is folded in with
// a left-shift-and-add, treating bytes as signed or unsigned per the
// htree hash version, and padding any remaining words with a value
// derived from the fragment's total length.
func str2hashbuf(msg string, num int, signed bool) []uint32 {
	length := len(msg)
	pad := uint32(length) | uint32(length)<<8
	pad |= pad << 16

	buf := make([]uint32, num)
	val := pad
	n := length
	if n > num*4 {
		n = num * 4
	}

	word := 0
	for i := 0; i < n; i++ {
		if i%4 == 0 {
			val = pad
		}
		var b int32
		if signed {
			b = int32(int8(msg[i]))
		} else {
			b = int32(msg[i])
		}
		val = uint32(b) + (val << 8)
		if i%4 == 3 {
			buf[word] = val
			word++
			val = pad
		}
	}
	if word < num {
		buf[word] = val
		word++
	}
	for word < num {
		buf[word] = pad
		word++
	}
	return buf
}

// dxHackHash is the original, weak ext2 directory hash, kept for
// DX_HASH_LEGACY(_UNSIGNED) compatibility with older images.
func dxHackHash(input string, signed bool) uint32 {
	hash0 := uint32(0x12a3fe2d)
	hash1 := uint32(0x37abe8f9)

	for i := 0; i < len(input); i++ {
		var c int32
		if signed {
			c = int32(int8(input[i]))
		} else {
			c = int32(input[i])
		}
		hash := hash1 + (hash0 ^ (uint32(c) * 7152373))
		if hash&0x80000000 != 0 {
			hash -= 0x7fffffff
		}
		hash1 = hash0
		hash0 = hash
	}
	return hash0 << 1
}

// ext4fsDirhash computes the htree hash ext4 uses to order and locate
// directory entries in an indexed (hashed) directory, mirroring
// fs/ext4/hash.c's ext4fs_dirhash. minor is only meaningful for the
// half-MD4 and TEA hash versions; legacy hashes leave it zero.
func ext4fsDirhash(name string, version hashVersion, seed []uint32) (hash, minorHash uint32) {
	buf := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}

	nonZeroSeed := false
	for _, s := range seed {
		if s != 0 {
			nonZeroSeed = true
			break
		}
	}
	if nonZeroSeed && len(seed) >= 4 {
		copy(buf[:], seed[:4])
	}

	switch version {
	case hashVersionLegacyUnsigned:
		hash = dxHackHash(name, false)
	case hashVersionLegacy:
		hash = dxHackHash(name, true)
	case hashVersionHalfMD4Unsigned, hashVersionHalfMD4:
		signed := version == hashVersionHalfMD4
		remaining := name
		for len(remaining) > 0 {
			chunk := remaining
			if len(chunk) > 32 {
				chunk = chunk[:32]
			}
			words := str2hashbuf(chunk, 8, signed)
			var in [8]uint32
			copy(in[:], words)
			md4.Transform(&buf, in)
			if len(remaining) <= 32 {
				break
			}
			remaining = remaining[32:]
		}
		minorHash = buf[2]
		hash = buf[1]
	case hashVersionTeaUnsigned, hashVersionTea:
		signed := version == hashVersionTea
		remaining := name
		for len(remaining) > 0 {
			chunk := remaining
			if len(chunk) > 16 {
				chunk = chunk[:16]
			}
			in := str2hashbuf(chunk, 4, signed)
			buf = TEATransform(buf, in)
			if len(remaining) <= 16 {
				break
			}
			remaining = remaining[16:]
		}
		hash = buf[0]
		minorHash = buf[1]
	default:
		return 0, 0
	}

	hash &^= 1
	return hash, minorHash
}
