package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"sync"
)

// endpointState is the lifecycle of an Endpoint, per the IDLE -> RUNNING
// -> STOPPED progression: an Endpoint accepts connections only while
// RUNNING, and Reset only succeeds from STOPPED.
type endpointState int32

const (
	endpointIdle endpointState = iota
	endpointRunning
	endpointStopped
)

// Endpoint owns a listener (server role) or simply a registry (client
// role) and the set of connections running under it: it runs the
// accept loop, drives each connection's Handler callbacks from a
// dedicated goroutine, and offers broadcast fan-out over the registry
// for handlers that want it.
type Endpoint struct {
	cfg     *Config
	upgrade *UpgradeOptions
	handler Handler
	tls     *tls.Config

	mu       sync.RWMutex
	state    endpointState
	listener net.Listener
	httpSrv  *http.Server
	conns    map[string]*Conn
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewEndpoint creates an Endpoint in the IDLE state. cfg and upgrade
// may be nil to use their respective defaults; handler may be nil to
// use a BaseHandler.
func NewEndpoint(cfg *Config, upgrade *UpgradeOptions, handler Handler) *Endpoint {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if upgrade == nil {
		upgrade = &UpgradeOptions{}
	}
	upgrade.Config = cfg
	if handler == nil {
		handler = BaseHandler{}
	}
	return &Endpoint{
		cfg:     cfg,
		upgrade: upgrade,
		handler: handler,
		conns:   make(map[string]*Conn),
		done:    make(chan struct{}),
	}
}

// WithTLS configures the Endpoint to accept TLS connections when
// Listen is called, or to dial wss:// when Dial is called.
func (e *Endpoint) WithTLS(cfg *tls.Config) *Endpoint {
	e.tls = cfg
	return e
}

func (e *Endpoint) getState() endpointState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Addr returns the address the Endpoint is listening on, or nil if
// Listen has not been called (or the Endpoint was Reset). Useful when
// Listen is given ":0" and the caller needs the actual bound port.
func (e *Endpoint) Addr() net.Addr {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// Listen binds addr and begins the accept loop in a background
// goroutine, driving the HTTP upgrade handshake for each accepted
// connection. Listen may only be called once per Endpoint; call Reset
// after EndPerpetual to reuse it.
func (e *Endpoint) Listen(addr string) error {
	e.mu.Lock()
	if e.state != endpointIdle {
		e.mu.Unlock()
		return ErrInvalidState
	}

	var ln net.Listener
	var err error
	if e.tls != nil {
		ln, err = tls.Listen("tcp", addr, e.tls)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", e.serveUpgrade)
	srv := &http.Server{Handler: mux}

	e.listener = ln
	e.httpSrv = srv
	e.state = endpointRunning
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = srv.Serve(ln)
	}()

	go func() {
		<-e.done
		_ = srv.Close()
	}()

	return nil
}

// serveUpgrade runs the HTTP->WebSocket upgrade for one request and,
// on success, hands the resulting Conn to run in a new goroutine - the
// goroutine-per-connection model this package uses in place of an
// explicit incremental state machine. Requests that are not upgrade
// attempts at all are routed to Handler.Http instead.
func (e *Endpoint) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	if !headerContainsToken(r.Header.Get("Upgrade"), "websocket") {
		e.handler.Http(w, r)
		return
	}

	e.handler.OnHandshakeInit(r)

	if !e.handler.Validate(r) {
		http.Error(w, ErrHandshakeRejected.Error(), http.StatusForbidden)
		return
	}

	conn, err := Upgrade(w, r, e.upgrade)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		e.handler.OnFail(nil, FailWebSocket, err)
		return
	}

	e.register(conn)
	e.wg.Add(1)
	go e.run(conn)
}

// Dial connects to url as a client and, on success, runs the
// connection's read loop under this Endpoint the same way an accepted
// server connection is run.
func (e *Endpoint) Dial(url string, opts *DialOptions) error {
	if opts == nil {
		opts = &DialOptions{}
	}
	opts.Config = e.cfg
	if e.tls != nil {
		opts.TLSConfig = e.tls
	}
	if u, err := parseWSURI(url); err == nil && u.secure && e.tls == nil {
		e.handler.OnFail(nil, FailUnknown, ErrSecureSchemeRequiresTLS)
		return ErrSecureSchemeRequiresTLS
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if e.cfg.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, _, err := Dial(ctx, url, opts)
	if err != nil {
		e.handler.OnFail(nil, classifyDialError(err), err)
		return err
	}

	e.mu.Lock()
	if e.state == endpointIdle {
		e.state = endpointRunning
	}
	e.mu.Unlock()

	e.register(conn)
	e.wg.Add(1)
	go e.run(conn)
	return nil
}

// Run blocks until every connection running under this Endpoint has
// finished. With perpetual=true it keeps blocking even while no
// connections are outstanding, until EndPerpetual releases it - the
// mode a pure-client process uses so its main goroutine does not exit
// between dials. Run returns ErrInvalidState on a STOPPED Endpoint.
func (e *Endpoint) Run(perpetual bool) error {
	e.mu.Lock()
	if e.state == endpointStopped {
		e.mu.Unlock()
		return ErrInvalidState
	}
	e.state = endpointRunning
	done := e.done
	e.mu.Unlock()

	if perpetual {
		<-done
	}
	e.wg.Wait()

	e.mu.Lock()
	if e.state == endpointRunning {
		e.state = endpointStopped
	}
	e.mu.Unlock()
	return nil
}

// run drives one connection's read loop for its entire lifetime:
// OnOpen, repeated OnMessage, then OnClose exactly once; a failure after
// OPEN is reported through conn.CloseState().Fail. Exactly one
// goroutine runs this per connection.
func (e *Endpoint) run(conn *Conn) {
	defer e.wg.Done()
	defer e.unregister(conn)

	e.handler.OnOpen(conn)

	for {
		msgType, data, err := conn.Read()
		if err != nil {
			e.handler.OnClose(conn)
			return
		}
		e.handler.OnMessage(conn, msgType, data)
	}
}

func (e *Endpoint) register(conn *Conn) {
	conn.onPing = func(data []byte) bool { return e.handler.OnPing(conn, data) }
	conn.onPong = func(data []byte) { e.handler.OnPong(conn, data) }
	e.mu.Lock()
	e.conns[conn.ID()] = conn
	e.mu.Unlock()
}

func (e *Endpoint) unregister(conn *Conn) {
	e.mu.Lock()
	delete(e.conns, conn.ID())
	e.mu.Unlock()
}

// Broadcast sends a binary message to every connection currently
// running under this Endpoint. A slow or dead client does not block
// delivery to the others; a failed write unregisters that client.
func (e *Endpoint) Broadcast(data []byte) {
	e.broadcast(BinaryMessage, data)
}

// BroadcastText sends a text message to every connection currently
// running under this Endpoint.
func (e *Endpoint) BroadcastText(text string) {
	e.broadcast(TextMessage, []byte(text))
}

func (e *Endpoint) broadcast(msgType MessageType, data []byte) {
	e.mu.RLock()
	targets := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		targets = append(targets, c)
	}
	e.mu.RUnlock()

	for _, c := range targets {
		go func(c *Conn) {
			if err := c.Write(msgType, data); err != nil {
				e.unregister(c)
			}
		}(c)
	}
}

// BroadcastJSON marshals v and sends it as a text message to every
// connection currently running under this Endpoint.
func (e *Endpoint) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.BroadcastText(string(data))
	return nil
}

// ConnCount returns the number of connections currently running under
// this Endpoint.
func (e *Endpoint) ConnCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// EndPerpetual stops accepting new connections, closes every running
// connection, and waits for their goroutines to exit. The Endpoint
// moves to STOPPED; call Reset to make it usable again.
func (e *Endpoint) EndPerpetual() error {
	e.mu.Lock()
	if e.state != endpointRunning {
		e.mu.Unlock()
		return ErrInvalidState
	}
	e.state = endpointStopped
	conns := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	close(e.done)

	// Close handshakes run concurrently: each one may wait up to
	// Config.CloseTimeout for its peer's answering frame, and a fleet
	// of unresponsive peers must not turn that into a serial stall.
	var closing sync.WaitGroup
	for _, c := range conns {
		closing.Add(1)
		go func(c *Conn) {
			defer closing.Done()
			_ = c.Close()
		}(c)
	}
	closing.Wait()
	e.wg.Wait()

	return nil
}

// Reset returns a STOPPED Endpoint to IDLE so Listen or Dial can be
// used again. Returns ErrInvalidState if the Endpoint is not STOPPED.
func (e *Endpoint) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != endpointStopped {
		return ErrInvalidState
	}
	e.state = endpointIdle
	e.listener = nil
	e.httpSrv = nil
	e.conns = make(map[string]*Conn)
	e.done = make(chan struct{})
	return nil
}
