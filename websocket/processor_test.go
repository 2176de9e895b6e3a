package websocket

import (
	"bytes"
	"errors"
	"testing"
)

func newTestProcessor(maxMessageSize int) *frameProcessor {
	return newFrameProcessor(newMessagePool(0), maxMessageSize)
}

// TestFrameProcessor_ReassemblesFragments: three binary fragments come
// out as one message carrying the concatenated payload.
func TestFrameProcessor_ReassemblesFragments(t *testing.T) {
	p := newTestProcessor(0)

	frames := []*frame{
		{fin: false, opcode: opcodeBinary, payload: []byte{0x01, 0x02}},
		{fin: false, opcode: opcodeContinuation, payload: []byte{0x03}},
		{fin: true, opcode: opcodeContinuation, payload: []byte{0x04, 0x05}},
	}

	for i, f := range frames[:2] {
		outcome, _, _, err := p.process(f)
		if err != nil {
			t.Fatalf("frame %d: error = %v", i, err)
		}
		if outcome != outcomeNone {
			t.Fatalf("frame %d: outcome = %v, want outcomeNone", i, outcome)
		}
	}

	outcome, msgType, payload, err := p.process(frames[2])
	if err != nil {
		t.Fatalf("final frame: error = %v", err)
	}
	if outcome != outcomeMessage {
		t.Fatalf("final frame: outcome = %v, want outcomeMessage", outcome)
	}
	if msgType != BinaryMessage {
		t.Errorf("msgType = %v, want BinaryMessage", msgType)
	}
	if !bytes.Equal(payload, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("payload = %v, want 01 02 03 04 05", payload)
	}
}

// TestFrameProcessor_ControlDoesNotDisturbFragment: a ping between two
// fragments leaves the in-progress message intact.
func TestFrameProcessor_ControlDoesNotDisturbFragment(t *testing.T) {
	p := newTestProcessor(0)

	if _, _, _, err := p.process(&frame{fin: false, opcode: opcodeText, payload: []byte("Hel")}); err != nil {
		t.Fatalf("first fragment: %v", err)
	}

	outcome, _, payload, err := p.process(&frame{fin: true, opcode: opcodePing, payload: []byte("hi")})
	if err != nil {
		t.Fatalf("interleaved ping: %v", err)
	}
	if outcome != outcomeControl || !bytes.Equal(payload, []byte("hi")) {
		t.Fatalf("ping: outcome = %v payload = %q", outcome, payload)
	}

	finalOutcome, msgType, msg, err := p.process(&frame{fin: true, opcode: opcodeContinuation, payload: []byte("lo")})
	if err != nil {
		t.Fatalf("final fragment: %v", err)
	}
	if finalOutcome != outcomeMessage || msgType != TextMessage || string(msg) != "Hello" {
		t.Fatalf("final: outcome = %v msgType = %v payload = %q", finalOutcome, msgType, msg)
	}
}

// TestFrameProcessor_RejectsInvalidUTF8BeforeFin: the streaming
// validator fails a text message on the fragment that introduces the
// bad byte, without waiting for the final frame.
func TestFrameProcessor_RejectsInvalidUTF8BeforeFin(t *testing.T) {
	p := newTestProcessor(0)

	_, _, _, err := p.process(&frame{fin: false, opcode: opcodeText, payload: []byte{0xC3, 0x28}})
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("error = %v, want ErrInvalidUTF8 on the opening fragment", err)
	}

	// The violation reset the fragment state; a fresh message works.
	outcome, _, _, err := p.process(&frame{fin: true, opcode: opcodeText, payload: []byte("ok")})
	if err != nil || outcome != outcomeMessage {
		t.Fatalf("after reset: outcome = %v, err = %v", outcome, err)
	}
}

// TestFrameProcessor_RejectsIncompleteUTF8AtFin: a final continuation
// that leaves the validator mid-code-point fails even though every
// byte so far was a legal prefix.
func TestFrameProcessor_RejectsIncompleteUTF8AtFin(t *testing.T) {
	p := newTestProcessor(0)

	if _, _, _, err := p.process(&frame{fin: false, opcode: opcodeText, payload: []byte{0xC3}}); err != nil {
		t.Fatalf("opening fragment: %v", err)
	}

	_, _, _, err := p.process(&frame{fin: true, opcode: opcodeContinuation, payload: nil})
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("error = %v, want ErrInvalidUTF8 for a message ending mid-code-point", err)
	}
}

// TestFrameProcessor_SplitCodePointAcrossFragments: a fragment
// boundary inside a multi-byte code point is legal as long as the
// message as a whole is valid.
func TestFrameProcessor_SplitCodePointAcrossFragments(t *testing.T) {
	p := newTestProcessor(0)

	// "é" is 0xC3 0xA9; split between the two bytes.
	if _, _, _, err := p.process(&frame{fin: false, opcode: opcodeText, payload: []byte{0xC3}}); err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	outcome, _, payload, err := p.process(&frame{fin: true, opcode: opcodeContinuation, payload: []byte{0xA9}})
	if err != nil {
		t.Fatalf("final fragment: %v", err)
	}
	if outcome != outcomeMessage || string(payload) != "é" {
		t.Fatalf("outcome = %v payload = %q, want message %q", outcome, payload, "é")
	}
}

func TestFrameProcessor_NewMessageBeforePreviousFinished(t *testing.T) {
	p := newTestProcessor(0)

	if _, _, _, err := p.process(&frame{fin: false, opcode: opcodeBinary, payload: []byte{1}}); err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	_, _, _, err := p.process(&frame{fin: true, opcode: opcodeBinary, payload: []byte{2}})
	if !errors.Is(err, ErrMessageInProgress) {
		t.Fatalf("error = %v, want ErrMessageInProgress", err)
	}
}

func TestFrameProcessor_ContinuationWithoutMessage(t *testing.T) {
	p := newTestProcessor(0)

	_, _, _, err := p.process(&frame{fin: true, opcode: opcodeContinuation, payload: []byte{1}})
	if !errors.Is(err, ErrUnexpectedContinuation) {
		t.Fatalf("error = %v, want ErrUnexpectedContinuation", err)
	}
}

// TestFrameProcessor_MessageTooLarge covers both shapes of the size
// cap: a single oversized frame and fragments that accumulate past the
// limit.
func TestFrameProcessor_MessageTooLarge(t *testing.T) {
	t.Run("single frame", func(t *testing.T) {
		p := newTestProcessor(1024)
		_, _, _, err := p.process(&frame{fin: true, opcode: opcodeBinary, payload: make([]byte, 2048)})
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Fatalf("error = %v, want ErrMessageTooLarge", err)
		}
	})

	t.Run("accumulated fragments", func(t *testing.T) {
		p := newTestProcessor(1024)
		if _, _, _, err := p.process(&frame{fin: false, opcode: opcodeBinary, payload: make([]byte, 800)}); err != nil {
			t.Fatalf("first fragment: %v", err)
		}
		_, _, _, err := p.process(&frame{fin: false, opcode: opcodeContinuation, payload: make([]byte, 800)})
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Fatalf("error = %v, want ErrMessageTooLarge", err)
		}
	})
}
