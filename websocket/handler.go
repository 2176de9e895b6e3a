package websocket

import "net/http"

// Handler receives lifecycle callbacks for a connection accepted or
// dialed through an Endpoint. Every method has a no-op implementation
// in BaseHandler, so a caller embeds that and overrides only the hooks
// it cares about. For any one connection the registered Handler is the
// sole observer of lifecycle events, and its callbacks are invoked
// from that connection's single reading goroutine - never two at once
// for the same connection.
type Handler interface {
	// OnHandshakeInit runs as soon as an upgrade request reaches the
	// Endpoint, before any validation: the earliest point at which an
	// application can observe an incoming connection attempt.
	OnHandshakeInit(r *http.Request)

	// Validate runs after the opening handshake's headers are parsed
	// but before the 101 response is sent, letting the caller reject a
	// connection for reasons Upgrade's CheckOrigin does not cover.
	// Returning false rejects the handshake with ErrHandshakeRejected.
	Validate(r *http.Request) bool

	// Http serves requests that reach the Endpoint's listener but are
	// not WebSocket upgrades (no Upgrade: websocket header), letting
	// one port answer health checks or serve the page that opens the
	// socket. The default rejects with 400.
	Http(w http.ResponseWriter, r *http.Request)

	// OnOpen runs once the connection has reached the OPEN state.
	OnOpen(conn *Conn)

	// OnMessage runs for each complete application message.
	OnMessage(conn *Conn, msgType MessageType, data []byte)

	// OnPing runs when a ping frame is received, after the automatic
	// pong reply has already been sent. Returning false is reserved
	// for handlers that want to veto the default auto-reply in a
	// future revision; current connections always auto-reply.
	OnPing(conn *Conn, data []byte) bool

	// OnPong runs when a pong frame is received.
	OnPong(conn *Conn, data []byte)

	// OnClose runs once the connection has reached the CLOSED state,
	// with its final CloseState available via conn.CloseState().
	OnClose(conn *Conn)

	// OnFail runs when a connection never reached the OPEN state (a
	// handshake failure or a transport error while dialing/accepting).
	OnFail(conn *Conn, fail FailCode, err error)
}

// BaseHandler implements Handler with no-op methods. Embed it and
// override only the callbacks a particular endpoint needs.
type BaseHandler struct{}

func (BaseHandler) OnHandshakeInit(*http.Request)        {}
func (BaseHandler) Validate(*http.Request) bool          { return true }
func (BaseHandler) OnOpen(*Conn)                         {}
func (BaseHandler) OnMessage(*Conn, MessageType, []byte) {}
func (BaseHandler) OnPing(*Conn, []byte) bool            { return true }
func (BaseHandler) OnPong(*Conn, []byte)                 {}
func (BaseHandler) OnClose(*Conn)                        {}
func (BaseHandler) OnFail(*Conn, FailCode, error)        {}

// Http answers a non-upgrade request the way a WebSocket-only endpoint
// always has: reject it.
func (BaseHandler) Http(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, ErrMissingUpgrade.Error(), http.StatusBadRequest)
}
