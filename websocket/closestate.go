package websocket

// CloseState records how a connection actually ended, for handlers
// that want to distinguish a clean mutual close from one side dropping
// the line - information that cannot be recovered once the underlying
// net.Conn is gone.
type CloseState struct {
	// LocalCode and LocalReason are what this endpoint sent in its own
	// close frame, if any.
	LocalCode   CloseCode
	LocalReason string

	// RemoteCode and RemoteReason come from the peer's close frame, if
	// any. RemoteCode holds the code after resolveCloseCode:
	// CloseNoStatusReceived when the frame carried no code, and
	// CloseProtocolError when its code is not legal on the wire.
	RemoteCode   CloseCode
	RemoteReason string

	// WasClean is true only if both sides exchanged a close frame
	// before the TCP connection was torn down.
	WasClean bool

	// ClosedByMe is true if this endpoint sent the first close frame.
	ClosedByMe bool

	// DroppedByMe is true if this endpoint tore down the TCP connection
	// without waiting for, or in spite of, a close-handshake response.
	DroppedByMe bool

	// Fail classifies why the connection failed to reach, or abruptly
	// left, the OPEN state. FailGood means no failure occurred.
	Fail FailCode
}

// resolveCloseCode applies the close-code policy from RFC 6455 Section
// 7.4: a peer's close frame carrying no code is reported internally as
// CloseNoStatusReceived, and an illegal code on the wire is replaced
// with CloseProtocolError so the local CloseState never repeats a
// close code the protocol forbids sending.
func resolveCloseCode(code CloseCode, hadCode bool) CloseCode {
	if !hadCode {
		return CloseNoStatusReceived
	}
	if !closeCodeSendable(code) {
		return CloseProtocolError
	}
	return code
}

// appCloseCodePermitted reports whether an application-supplied close
// code may be sent as-is. RFC 6455 Section 7.4.2 reserves everything
// between 1000 and 2999 for the protocol itself; an application may
// only initiate a close with CloseNormalClosure or a code from the
// private-use range 4000-4999. Codes echoed back to a peer are not
// subject to this check (see Conn.closeInternal).
func appCloseCodePermitted(code CloseCode) bool {
	return code == CloseNormalClosure || (code >= 4000 && code <= 4999)
}
