package websocket

import "fmt"

// frameOutcome tells the caller of frameProcessor.process what to do
// with a decoded frame: most frames are either a control frame needing
// an automatic reply, a completed message, or an intermediate
// fragment with no action yet.
type frameOutcome int

const (
	outcomeNone frameOutcome = iota
	outcomeControl
	outcomeMessage
)

// frameProcessor reassembles the frame stream produced by readFrame
// into application messages and control-frame events. Keeping it
// separate from Conn lets the reassembly rules be tested against a
// frame sequence without a real socket, and gives the streaming UTF-8
// validator (utf8validator.go) one place to check a fragmented text
// message incrementally instead of buffering every fragment first.
//
// Not safe for concurrent use; a Conn has exactly one reading
// goroutine and therefore exactly one frameProcessor.
type frameProcessor struct {
	pool *messagePool

	inFragment   bool
	fragmentType byte
	fragmentBuf  *[]byte
	fragmentUTF8 utf8State

	maxMessageSize int
}

func newFrameProcessor(pool *messagePool, maxMessageSize int) *frameProcessor {
	return &frameProcessor{pool: pool, maxMessageSize: maxMessageSize}
}

// process advances the reassembly state machine by one frame.
//
// outcomeControl: opcode/payload identify a Ping, Pong or Close frame
// the caller must react to (auto-pong, note a pong, or start closing).
//
// outcomeMessage: msgType/payload hold a complete, UTF-8-validated (for
// text) application message.
//
// outcomeNone: the frame was consumed (start or middle of a
// fragmented message) and reading should continue.
func (p *frameProcessor) process(f *frame) (outcome frameOutcome, msgType MessageType, payload []byte, err error) {
	if isControlFrame(f.opcode) {
		return outcomeControl, 0, f.payload, nil
	}

	switch f.opcode {
	case opcodeText, opcodeBinary:
		if p.inFragment {
			return outcomeNone, 0, nil, ErrMessageInProgress
		}
		if f.fin {
			if p.maxMessageSize > 0 && len(f.payload) > p.maxMessageSize {
				return outcomeNone, 0, nil, ErrMessageTooLarge
			}
			if f.opcode == opcodeText && !validateUTF8(f.payload) {
				return outcomeNone, 0, nil, ErrInvalidUTF8
			}
			return outcomeMessage, MessageType(f.opcode), f.payload, nil
		}

		p.inFragment = true
		p.fragmentType = f.opcode
		p.fragmentUTF8 = utf8State{}
		p.fragmentBuf = p.pool.acquire()
		*p.fragmentBuf = append(*p.fragmentBuf, f.payload...)
		if f.opcode == opcodeText && !p.fragmentUTF8.consumeBytes(f.payload) {
			p.resetFragment()
			return outcomeNone, 0, nil, ErrInvalidUTF8
		}
		if err := p.checkSize(); err != nil {
			p.resetFragment()
			return outcomeNone, 0, nil, err
		}
		return outcomeNone, 0, nil, nil

	case opcodeContinuation:
		if !p.inFragment {
			return outcomeNone, 0, nil, ErrUnexpectedContinuation
		}

		if p.fragmentType == opcodeText && !p.fragmentUTF8.consumeBytes(f.payload) {
			p.resetFragment()
			return outcomeNone, 0, nil, ErrInvalidUTF8
		}
		*p.fragmentBuf = append(*p.fragmentBuf, f.payload...)
		if err := p.checkSize(); err != nil {
			p.resetFragment()
			return outcomeNone, 0, nil, err
		}

		if !f.fin {
			return outcomeNone, 0, nil, nil
		}

		if p.fragmentType == opcodeText && !p.fragmentUTF8.complete() {
			p.resetFragment()
			return outcomeNone, 0, nil, ErrInvalidUTF8
		}

		msgType = MessageType(p.fragmentType)
		result := make([]byte, len(*p.fragmentBuf))
		copy(result, *p.fragmentBuf)
		p.resetFragment()
		return outcomeMessage, msgType, result, nil

	default:
		return outcomeNone, 0, nil, fmt.Errorf("%w: 0x%X", ErrInvalidOpcode, f.opcode)
	}
}

func (p *frameProcessor) checkSize() error {
	if p.maxMessageSize > 0 && len(*p.fragmentBuf) > p.maxMessageSize {
		return ErrMessageTooLarge
	}
	return nil
}

func (p *frameProcessor) resetFragment() {
	if p.fragmentBuf != nil {
		p.pool.release(p.fragmentBuf)
	}
	p.fragmentBuf = nil
	p.inFragment = false
	p.fragmentType = 0
}
