//go:build !wsstrictmask

package websocket

import "encoding/binary"

// maskImpl is the default masking engine: it XORs 8 bytes at a time
// using two uint32 loads, falling back to the byte loop for the
// remainder. The rotated key accounts for offset not being a multiple
// of 4 when resuming a mask across frame boundaries.
func maskImpl(data []byte, mask [4]byte, offset int) int {
	if len(data) == 0 {
		return (offset + len(data)) % 4
	}

	phase := offset % 4
	rotated := rotateKey(mask, phase)
	key32 := binary.LittleEndian.Uint32(rotated[:])

	i := 0
	for ; i+8 <= len(data); i += 8 {
		v0 := binary.LittleEndian.Uint32(data[i : i+4])
		v1 := binary.LittleEndian.Uint32(data[i+4 : i+8])
		binary.LittleEndian.PutUint32(data[i:i+4], v0^key32)
		binary.LittleEndian.PutUint32(data[i+4:i+8], v1^key32)
	}

	k := rotateKey(mask, phase)
	for ; i < len(data); i++ {
		data[i] ^= k[i%4]
	}

	return (offset + len(data)) % 4
}

// rotateKey returns mask rotated so that index 0 holds the byte that
// would apply at the given phase into the original key.
func rotateKey(mask [4]byte, phase int) [4]byte {
	var out [4]byte
	for i := range out {
		out[i] = mask[(phase+i)%4]
	}
	return out
}
