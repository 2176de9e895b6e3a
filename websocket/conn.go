package websocket

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"
)

// connState is the lifecycle of one WebSocket connection: the closing
// handshake is a distinct phase between OPEN and CLOSED, during which
// this endpoint has sent its close frame and is waiting for the peer's.
type connState int32

const (
	stateConnecting connState = iota
	stateOpen
	stateClosing
	stateClosed
)

// Conn represents a WebSocket connection (RFC 6455).
//
// Conn provides high-level methods for reading and writing messages,
// automatically handling:
//   - Message fragmentation: reassembly of multi-frame reads, and
//     splitting of outbound writes larger than Config.MaxFragmentSize
//   - Control frames (Ping, Pong, Close)
//   - UTF-8 validation for text messages
//   - Thread-safe writes
//
// Example Usage:
//
//	conn, err := websocket.Upgrade(w, r, nil)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	// Read message
//	msgType, data, err := conn.Read()
//
//	// Write text message
//	conn.WriteText("Hello, WebSocket!")
//
//	// Write JSON
//	conn.WriteJSON(map[string]string{"status": "ok"})
type Conn struct {
	id string // opaque handle, shared with Endpoint's registry

	conn   net.Conn      // Underlying TCP connection
	reader *bufio.Reader // Buffered reader for frame parsing
	writer *bufio.Writer // Buffered writer for frame writing

	isServer bool // Server-side connection (affects masking rules)
	masks    *maskSource
	cfg      *Config

	// Handshake results, fixed once the connection is OPEN.
	version     string
	subprotocol string
	origin      string
	resource    string

	// Write synchronization (RFC 6455 Section 5.1)
	// "An endpoint MUST NOT send a data frame while a fragmented message is being transmitted"
	writeMu sync.Mutex

	// Close synchronization
	closeOnce  sync.Once
	stateMu    sync.RWMutex
	state      connState
	closeState CloseState
	closeWait  chan struct{} // closed once the peer's close frame has been observed

	// onPing and onPong, when set by the owning Endpoint, surface
	// control frames to the Handler. onPing runs after the automatic
	// pong reply has been sent.
	onPing func([]byte) bool
	onPong func([]byte)

	proc *frameProcessor
}

// newConnWithConfig creates a new WebSocket connection (internal
// constructor). Called by Upgrade and Dial after a successful
// handshake; users never construct a Conn directly.
func newConnWithConfig(netConn net.Conn, reader *bufio.Reader, writer *bufio.Writer, isServer bool, cfg *Config) *Conn {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Conn{
		id:        shortuuid.New(),
		conn:      netConn,
		reader:    reader,
		writer:    writer,
		isServer:  isServer,
		masks:     defaultMaskSource,
		cfg:       cfg,
		state:     stateOpen,
		closeWait: make(chan struct{}),
		proc:      newFrameProcessor(newMessagePool(cfg.MessagePoolCapacity), cfg.MaxMessageSize),
	}
}

// ID returns the connection's opaque handle, used as its key in an
// Endpoint's registry and in log lines.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the address of the peer, as reported by the
// underlying net.Conn.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Version returns the negotiated protocol version: "13", "8", "7" or
// "hixie-76".
func (c *Conn) Version() string { return c.version }

// Subprotocol returns the subprotocol selected during the handshake,
// or "" if none was negotiated.
func (c *Conn) Subprotocol() string { return c.subprotocol }

// Origin returns the origin the peer announced in its handshake, under
// whichever header name the negotiated version uses.
func (c *Conn) Origin() string { return c.origin }

// Resource returns the request-URI the handshake was performed
// against.
func (c *Conn) Resource() string { return c.resource }

func (c *Conn) getState() connState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Read reads the next complete message from the connection.
//
// Automatically handles:
//   - Fragmentation: Reassembles multi-frame messages (FIN=0 → FIN=1)
//   - Control frames: Processes Ping/Pong/Close during message reading
//   - UTF-8 validation: For text messages (RFC 6455 Section 8.1)
//
// Returns:
//   - MessageType: TextMessage or BinaryMessage
//   - []byte: Complete message payload
//   - error: ErrClosed if connection closed, protocol errors, network errors
//
// Thread-Safety: Read is not safe to call from more than one goroutine
// at a time; a Conn has exactly one reading goroutine in the
// goroutine-per-connection model Endpoint runs.
//
// RFC 6455 Section 5.4: "A fragmented message consists of a single frame with
// the FIN bit clear and an opcode other than 0, followed by zero or more frames
// with the FIN bit clear and the opcode set to 0, and terminated by a single
// frame with the FIN bit set and an opcode of 0."
func (c *Conn) Read() (MessageType, []byte, error) {
	if c.getState() == stateClosed {
		return 0, nil, ErrClosed
	}

	for {
		f, err := readFrameLimit(c.reader, c.cfg.MaxMessageSize)
		if err != nil {
			// An oversize declaration is caught on the header alone;
			// answer 1009 without consuming the payload.
			if err == ErrMessageTooLarge { //nolint:errorlint // sentinel comparison is intentional here
				c.cfg.Logger.logProtocolError(c.id, 0, err)
				_ = c.closeInternal(CloseMessageTooBig, "", true)
				return 0, nil, err
			}
			c.failWithError(err)
			return 0, nil, err
		}

		outcome, msgType, payload, procErr := c.proc.process(f)
		if procErr != nil {
			c.cfg.Logger.logProtocolError(c.id, f.opcode, procErr)
			code := CloseProtocolError
			if procErr == ErrInvalidUTF8 { //nolint:errorlint // sentinel comparison is intentional here
				code = CloseInvalidFramePayloadData
			} else if procErr == ErrMessageTooLarge { //nolint:errorlint
				code = CloseMessageTooBig
			}
			_ = c.closeInternal(code, "", true)
			return 0, nil, procErr
		}

		// Once this endpoint has sent its close frame, the only frame
		// that still matters is the peer's answering close; everything
		// else is discarded without dispatch.
		if c.getState() == stateClosing && !(outcome == outcomeControl && f.opcode == opcodeClose) {
			continue
		}

		switch outcome {
		case outcomeControl:
			switch f.opcode {
			case opcodePing:
				if err := c.Pong(f.payload); err != nil {
					return 0, nil, err
				}
				if c.onPing != nil {
					c.onPing(f.payload)
				}
			case opcodePong:
				if c.onPong != nil {
					c.onPong(f.payload)
				}
			case opcodeClose:
				// RFC 6455 Section 5.5.1: a one-byte close payload
				// cannot hold a status code and is a protocol error, as
				// is a reason that is not valid UTF-8.
				if len(f.payload) == 1 {
					_ = c.closeInternal(CloseProtocolError, "", true)
					return 0, nil, ErrProtocolError
				}
				if len(f.payload) > 2 && !validateUTF8(f.payload[2:]) {
					_ = c.closeInternal(CloseInvalidFramePayloadData, "", true)
					return 0, nil, ErrInvalidUTF8
				}
				c.handleCloseFrame(f.payload)
				return 0, nil, ErrClosed
			}
			continue

		case outcomeMessage:
			return msgType, payload, nil

		case outcomeNone:
			continue
		}
	}
}

// ReadText reads the next text message.
//
// Convenience wrapper around Read() that:
//   - Ensures message is TextMessage (returns error otherwise)
//   - Returns string directly
//
// Returns ErrInvalidMessageType if message is not text.
func (c *Conn) ReadText() (string, error) {
	msgType, data, err := c.Read()
	if err != nil {
		return "", err
	}

	if msgType != TextMessage {
		return "", ErrInvalidMessageType
	}

	return string(data), nil
}

// ReadJSON reads the next message as JSON.
//
// Convenience wrapper around Read() that:
//   - Ensures message is TextMessage
//   - Unmarshals JSON into v
//
// Returns ErrInvalidMessageType if message is not text.
// Returns json.SyntaxError if JSON is malformed.
func (c *Conn) ReadJSON(v any) error {
	msgType, data, err := c.Read()
	if err != nil {
		return err
	}

	if msgType != TextMessage {
		return ErrInvalidMessageType
	}

	return json.Unmarshal(data, v)
}

// Write writes a message to the connection.
//
// Automatically handles:
//   - Masking: Server frames NOT masked, client frames masked (RFC 6455 Section 5.1)
//   - Fragmentation: payloads longer than Config.MaxFragmentSize are
//     split across a first frame and one or more CONTINUATION frames
//     (RFC 6455 Section 5.4), each masked independently
//   - Flushing: Ensures data sent immediately
//
// Thread-Safety: Safe for concurrent writes (serialized by mutex).
func (c *Conn) Write(messageType MessageType, data []byte) error {
	if c.getState() == stateClosed {
		return ErrClosed
	}

	var opcode byte
	switch messageType {
	case TextMessage:
		opcode = opcodeText

		if !utf8.Valid(data) {
			return ErrInvalidUTF8
		}

	case BinaryMessage:
		opcode = opcodeBinary

	default:
		return ErrInvalidMessageType
	}

	// Lock write mutex (prevent concurrent writes per RFC 6455 Section 5.1)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	chunkSize := c.cfg.MaxFragmentSize
	if chunkSize <= 0 || len(data) <= chunkSize {
		return c.writeDataFrame(opcode, true, data)
	}

	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		fin := end == len(data)
		frameOpcode := opcode
		if offset > 0 {
			frameOpcode = opcodeContinuation
		}
		if err := c.writeDataFrame(frameOpcode, fin, data[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// writeDataFrame serializes and sends a single data or continuation
// frame. Callers hold writeMu.
func (c *Conn) writeDataFrame(opcode byte, fin bool, payload []byte) error {
	f := &frame{
		fin:     fin,
		opcode:  opcode,
		masked:  !c.isServer, // Server: NO mask, Client: YES mask
		payload: payload,
	}

	if f.masked {
		f.mask = c.masks.nextMaskKey()
	}

	return writeFrame(c.writer, f)
}

// WriteText writes a text message.
//
// Convenience wrapper around Write() for text messages.
//
// Returns ErrInvalidUTF8 if text contains invalid UTF-8.
func (c *Conn) WriteText(text string) error {
	return c.Write(TextMessage, []byte(text))
}

// WriteJSON writes a value as JSON text message.
//
// Convenience wrapper that:
//   - Marshals v to JSON
//   - Sends as TextMessage
//
// Returns json.MarshalError if marshaling fails.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.Write(TextMessage, data)
}

// Ping sends a ping frame (for keep-alive).
//
// Application data is optional (max 125 bytes per RFC 6455 Section 5.5).
// Peer should respond with Pong containing same application data.
func (c *Conn) Ping(data []byte) error {
	if c.getState() == stateClosed {
		return ErrClosed
	}

	if len(data) > maxControlPayload {
		return ErrControlTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	f := &frame{fin: true, opcode: opcodePing, masked: !c.isServer, payload: data}
	if f.masked {
		f.mask = c.masks.nextMaskKey()
	}

	return writeFrame(c.writer, f)
}

// Pong sends a pong frame (response to ping or unsolicited).
//
// Application data should echo ping data (RFC 6455 Section 5.5.3).
// Max 125 bytes.
//
// Note: Read() automatically responds to Ping frames, so manual Pong usually not needed.
func (c *Conn) Pong(data []byte) error {
	if c.getState() == stateClosed {
		return ErrClosed
	}

	if len(data) > maxControlPayload {
		return ErrControlTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	f := &frame{fin: true, opcode: opcodePong, masked: !c.isServer, payload: data}
	if f.masked {
		f.mask = c.masks.nextMaskKey()
	}

	return writeFrame(c.writer, f)
}

// Close sends close frame and closes connection.
//
// Uses CloseNormalClosure (1000) status code.
// Idempotent - safe to call multiple times.
//
// RFC 6455 Section 7.1.1: "The Close frame MAY contain a body that indicates
// a reason for closing.".
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with the given status code and
// reason and waits up to Config.CloseTimeout for the peer's answering
// close frame before tearing down the TCP connection. A zero
// CloseTimeout closes immediately without waiting.
//
// Applications may only close with CloseNormalClosure or a code in the
// private-use range 4000-4999 (RFC 6455 Section 7.4.2); any other code
// is replaced with CloseProtocolError and logged.
//
// Idempotent - safe to call multiple times.
func (c *Conn) CloseWithCode(code CloseCode, reason string) error {
	if !appCloseCodePermitted(code) {
		c.cfg.Logger.logProtocolError(c.id, opcodeClose, ErrInvalidCloseCode)
		code = CloseProtocolError
	}
	return c.closeInternal(code, reason, true)
}

// closeInternal runs the closing handshake once. locallyInitiated
// distinguishes a close this endpoint started (send close, wait for
// the peer's answering frame) from the echo sent in response to a
// peer's close frame, which has nothing left to wait for. It is the
// only writer of ClosedByMe, and bypasses CloseWithCode's
// application-code policy so protocol-violation closes (1007, 1009,
// 1011) and echoes of the peer's code go out unaltered.
func (c *Conn) closeInternal(code CloseCode, reason string, locallyInitiated bool) error {
	var err error

	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		if c.state != stateClosed {
			c.state = stateClosing
		}
		c.closeState.ClosedByMe = locallyInitiated
		c.closeState.LocalCode = code
		c.closeState.LocalReason = reason
		c.stateMu.Unlock()

		if reason != "" && !utf8.ValidString(reason) {
			err = ErrInvalidUTF8
			return
		}

		// CloseNoStatusReceived must never appear on the wire; its
		// wire form is a close frame with an empty payload.
		var payload []byte
		if code != CloseNoStatusReceived {
			payload = make([]byte, 2+len(reason))
			payload[0] = byte(code >> 8)
			payload[1] = byte(code & 0xFF)
			copy(payload[2:], reason)
		}

		c.writeMu.Lock()
		f := &frame{fin: true, opcode: opcodeClose, masked: !c.isServer, payload: payload}
		if f.masked {
			f.mask = c.masks.nextMaskKey()
		}
		writeErr := writeFrame(c.writer, f)
		c.writeMu.Unlock()

		if writeErr != nil {
			err = writeErr
		}

		if locallyInitiated && c.cfg.CloseTimeout > 0 {
			select {
			case <-c.closeWait:
			case <-time.After(c.cfg.CloseTimeout):
				c.stateMu.Lock()
				c.closeState.DroppedByMe = true
				c.stateMu.Unlock()
			}
		}

		c.finalizeClose()
	})

	return err
}

// handleCloseFrame processes a received close frame: it records the
// peer's code/reason, marks the handshake clean, echoes a close frame
// of its own if this endpoint had not already sent one, and releases
// any CloseWithCode call waiting on closeWait.
func (c *Conn) handleCloseFrame(payload []byte) {
	var code CloseCode
	var hadCode bool
	var reason string
	if len(payload) >= 2 {
		code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
		hadCode = true
		reason = string(payload[2:])
	}
	resolved := resolveCloseCode(code, hadCode)

	c.stateMu.Lock()
	c.closeState.RemoteCode = resolved
	c.closeState.RemoteReason = reason
	c.closeState.WasClean = true
	alreadyClosing := c.state == stateClosing || c.state == stateClosed
	c.stateMu.Unlock()

	select {
	case <-c.closeWait:
	default:
		close(c.closeWait)
	}

	if alreadyClosing {
		c.finalizeClose()
		return
	}

	_ = c.closeInternal(resolved, "", false)
}

// failWithError records a read failure (a transport error, or a frame
// readFrameLimit rejects) as an unclean close, classifying it via
// classifyDialError so Handler.OnClose can tell a timeout
// (FailTimeoutWS) from any other failure (FailSystem).
func (c *Conn) failWithError(err error) {
	c.stateMu.Lock()
	if c.state == stateClosed {
		c.stateMu.Unlock()
		return
	}
	c.closeState.Fail = classifyDialError(err)
	c.closeState.DroppedByMe = false
	c.stateMu.Unlock()
	c.finalizeClose()
}

// finalizeClose transitions the connection to stateClosed exactly
// once, tears down the socket, and logs the final CloseState.
func (c *Conn) finalizeClose() {
	c.stateMu.Lock()
	if c.state == stateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = stateClosed
	st := c.closeState
	c.stateMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.cfg.Logger.logClose(c.id, st)
}

// CloseState returns a snapshot of how the connection ended. It is
// only meaningful after Read has returned ErrClosed or another error.
func (c *Conn) CloseState() CloseState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.closeState
}
