package websocket

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestApplyMask_Symmetric: masking is XOR, so applying the same key
// twice restores the original payload.
func TestApplyMask_Symmetric(t *testing.T) {
	key := [4]byte{0x37, 0xFA, 0x21, 0x3D}

	for _, n := range []int{0, 1, 3, 4, 7, 8, 9, 63, 64, 65, 1000} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 31)
		}
		orig := append([]byte(nil), payload...)

		applyMask(payload, key)
		if n > 0 && bytes.Equal(payload, orig) {
			t.Errorf("n=%d: masking changed nothing", n)
		}
		applyMask(payload, key)
		if !bytes.Equal(payload, orig) {
			t.Errorf("n=%d: double mask != identity", n)
		}
	}
}

// TestApplyMaskOffset_SplitResume: masking a payload in two parts,
// resuming the key phase at the split point, must equal masking it in
// one pass - for every possible split, including splits that leave the
// key phase mid-cycle.
func TestApplyMaskOffset_SplitResume(t *testing.T) {
	key := [4]byte{0xA1, 0x00, 0x5C, 0xFF}

	payload := make([]byte, 133)
	rng := rand.New(rand.NewSource(1))
	rng.Read(payload)

	whole := append([]byte(nil), payload...)
	applyMaskOffset(whole, key, 0)

	for split := 0; split <= len(payload); split++ {
		part := append([]byte(nil), payload...)
		next := applyMaskOffset(part[:split], key, 0)
		if next != split%4 {
			t.Fatalf("split %d: returned offset %d, want %d", split, next, split%4)
		}
		applyMaskOffset(part[split:], key, next)

		if !bytes.Equal(part, whole) {
			t.Fatalf("split %d: piecewise mask differs from whole-buffer mask", split)
		}
	}
}

// TestApplyMaskOffset_NonZeroStart verifies that an initial offset
// shifts which key byte applies to the first payload byte.
func TestApplyMaskOffset_NonZeroStart(t *testing.T) {
	key := [4]byte{0x01, 0x02, 0x04, 0x08}
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	applyMaskOffset(data, key, 2)

	want := []byte{0x04, 0x08, 0x01, 0x02, 0x04, 0x08}
	if !bytes.Equal(data, want) {
		t.Errorf("applyMaskOffset(zeroes, key, 2) = %#v, want %#v", data, want)
	}
}

// TestApplyMaskOffset_AgainstReference compares the compiled maskImpl
// (word-at-a-time by default, byte-at-a-time under the wsstrictmask
// build tag) against an independent byte-by-byte loop, so whichever
// path is compiled in is checked against the RFC 6455 Section 5.3
// definition rather than against itself.
func TestApplyMaskOffset_AgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for trial := 0; trial < 50; trial++ {
		var key [4]byte
		rng.Read(key[:])
		n := rng.Intn(300)
		offset := rng.Intn(16)

		payload := make([]byte, n)
		rng.Read(payload)

		want := make([]byte, n)
		for i := range payload {
			want[i] = payload[i] ^ key[(offset+i)%4]
		}

		got := append([]byte(nil), payload...)
		applyMaskOffset(got, key, offset)

		if !bytes.Equal(got, want) {
			t.Fatalf("trial %d (n=%d offset=%d): maskImpl disagrees with reference loop", trial, n, offset)
		}
	}
}
