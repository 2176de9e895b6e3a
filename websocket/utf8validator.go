package websocket

// Streaming UTF-8 validation using Bjoern Hoehrmann's DFA: one table
// lookup per byte, no backtracking, no allocation. unicode/utf8.Valid
// can only judge a complete buffer, which would force buffering every
// fragment of a text message before validating; this validator
// advances one state machine across fragment boundaries instead, so an
// invalid sequence is caught on the exact byte that introduces it,
// possibly frames before the message completes.
//
// http://bjoern.hoehrmann.de/utf-8/decoder/dfa/

const (
	utf8Accept = 0
	utf8Reject = 1
)

var utf8DecodeTable = [400]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 00..1f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 20..3f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 40..5f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 60..7f
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, // 80..9f
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, // a0..bf
	8, 8, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, // c0..df
	0xa, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x3, 0x4, 0x3, 0x3, // e0..ef
	0xb, 0x6, 0x6, 0x6, 0x5, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, 0x8, // f0..ff
	0x0, 0x1, 0x2, 0x3, 0x5, 0x8, 0x7, 0x1, 0x1, 0x1, 0x4, 0x6, 0x1, 0x1, 0x1, 0x1, // s0..s0
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 0, 1, 0, 1, 1, 1, 1, 1, 1, // s1..s2
	1, 2, 1, 1, 1, 1, 1, 2, 1, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 2, 1, 1, 1, 1, 1, 1, 1, 1, // s3..s4
	1, 2, 1, 1, 1, 1, 1, 1, 1, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 3, 1, 3, 1, 1, 1, 1, 1, 1, // s5..s6
	1, 3, 1, 1, 1, 1, 1, 3, 1, 3, 1, 1, 1, 1, 1, 1, 1, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, // s7..s8
}

// utf8State is a streaming UTF-8 validator for a single message's
// worth of bytes. The zero value is ready to use.
type utf8State struct {
	state uint32
}

// consume advances the state machine by one byte and reports whether
// the sequence seen so far is still potentially valid. Once it returns
// false the rejection is sticky: further calls keep returning false.
func (v *utf8State) consume(b byte) bool {
	typ := utf8DecodeTable[b]
	v.state = uint32(utf8DecodeTable[256+v.state*16+uint32(typ)])
	return v.state != utf8Reject
}

// consumeBytes runs consume over every byte of p, stopping early on
// the first rejection.
func (v *utf8State) consumeBytes(p []byte) bool {
	for _, b := range p {
		if !v.consume(b) {
			return false
		}
	}
	return true
}

// complete reports whether the bytes consumed so far form a sequence
// of complete UTF-8 code points, i.e. the message may legally end
// here. A message that ends mid-sequence (state != accept, != reject)
// is incomplete rather than invalid, which is why this is a distinct
// check from consume's return value.
func (v *utf8State) complete() bool {
	return v.state == utf8Accept
}

// validateUTF8 validates p as a single complete, self-contained UTF-8
// string. It is the non-streaming convenience wrapper used wherever a
// whole message is already buffered.
func validateUTF8(p []byte) bool {
	var v utf8State
	return v.consumeBytes(p) && v.complete()
}
