package websocket

// applyMask XORs data in place with mask, cycling through the 4 mask
// bytes starting at offset (data[i] is XORed with mask[(offset+i)%4]).
// RFC 6455 Section 5.3.
//
// The offset parameter lets a caller mask a message across multiple
// writes - e.g. a streamed payload written in chunks - without
// re-aligning the key at each call; it returns the offset to pass to
// the next call. Most call sites start at offset 0 and discard the
// result.
//
// Two maskImpl implementations exist: mask_safe.go is a plain
// byte-by-byte loop; mask_fast.go folds the key into a uint32 and XORs
// 8 bytes at a time. Which one is compiled in is selected by the
// wsstrictmask build tag, not at runtime, so the fast path never needs
// to defend its assumptions with runtime checks.
func applyMask(data []byte, mask [4]byte) {
	applyMaskOffset(data, mask, 0)
}

// applyMaskOffset is applyMask with an explicit starting phase into the
// 4-byte key, for masking a logical message that is written in more
// than one physical frame.
func applyMaskOffset(data []byte, mask [4]byte, offset int) int {
	return maskImpl(data, mask, offset)
}
