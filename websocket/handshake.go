package websocket

import (
	"bufio"
	"context"
	"crypto/sha1" // #nosec G505 - SHA-1 required by RFC 6455 Section 1.3
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Magic GUID from RFC 6455 Section 1.3.
// Used for computing Sec-WebSocket-Accept header.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Default buffer sizes for WebSocket connections.
const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
)

// UpgradeOptions configures WebSocket upgrade behavior.
//
// All fields are optional. Zero values use sensible defaults.
type UpgradeOptions struct {
	// Subprotocols is the list of subprotocols advertised by server.
	// Server will select first match from client's requested subprotocols.
	// Empty list = no subprotocol negotiation.
	Subprotocols []string

	// CheckOrigin verifies the Origin header.
	// nil = allow all origins (INSECURE in production!)
	// Return false to reject the connection.
	//
	// Example:
	//   CheckOrigin: func(r *http.Request) bool {
	//       origin := r.Header.Get("Origin")
	//       return origin == "https://example.com"
	//   }
	CheckOrigin func(*http.Request) bool

	// ReadBufferSize sets size of read buffer (default: 4096).
	// Larger buffers reduce syscalls for large messages.
	ReadBufferSize int

	// WriteBufferSize sets size of write buffer (default: 4096).
	// Larger buffers reduce syscalls for large messages.
	WriteBufferSize int

	// Config carries the resulting Conn's runtime behavior (message
	// size limits, pool capacity, close timeout, logger). nil uses
	// DefaultConfig().
	Config *Config
}

// Upgrade upgrades an HTTP connection to the WebSocket protocol.
//
// Implements RFC 6455 Section 4: Opening Handshake.
//
// Steps:
//  1. Verify HTTP method is GET
//  2. Check Upgrade: websocket header
//  3. Check Connection: Upgrade header
//  4. Verify Sec-WebSocket-Version is 13, 8 or 7 (absent: Hixie-76 path)
//  5. Get Sec-WebSocket-Key
//  6. Check origin (if configured)
//  7. Negotiate subprotocol (if configured)
//  8. Compute Sec-WebSocket-Accept
//  9. Send 101 Switching Protocols response
//  10. Hijack connection
//  11. Create and return WebSocket connection
//
// Returns *Conn for reading/writing WebSocket messages.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    conn, err := websocket.Upgrade(w, r, nil)
//	    if err != nil {
//	        http.Error(w, err.Error(), http.StatusBadRequest)
//	        return
//	    }
//	    defer conn.Close()
//
//	    // Read and write messages
//	    msgType, data, _ := conn.Read()
//	    conn.Write(msgType, data)
//	}
//
//nolint:gocyclo,cyclop // Handshake requires many validation steps per RFC 6455
func Upgrade(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Conn, error) {
	// Apply defaults
	if opts == nil {
		opts = &UpgradeOptions{}
	}
	if opts.ReadBufferSize == 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	if opts.WriteBufferSize == 0 {
		opts.WriteBufferSize = defaultWriteBufferSize
	}

	// 1. Verify HTTP method (RFC 6455 Section 4.1)
	if r.Method != http.MethodGet {
		return nil, ErrInvalidMethod
	}

	// 2. Check Upgrade header (RFC 6455 Section 4.2.1, item 3)
	if !headerContainsToken(r.Header.Get("Upgrade"), "websocket") {
		return nil, ErrMissingUpgrade
	}

	// 3. Check Connection header (RFC 6455 Section 4.2.1, item 4)
	if !headerContainsToken(r.Header.Get("Connection"), "upgrade") {
		return nil, ErrMissingConnection
	}

	if r.Host == "" {
		return nil, ErrMissingHost
	}

	if isHixie76Request(r) {
		return upgradeHixie76(w, r, opts)
	}

	// 4. Check Sec-WebSocket-Version (RFC 6455 Section 4.2.1, item 6).
	// Drafts 7 and 8 share RFC 6455's framing and accept-key math, so
	// they are negotiated the same way. Any other version gets the
	// advertisement header the RFC requires alongside the rejection.
	version := r.Header.Get("Sec-WebSocket-Version")
	switch version {
	case "7", "8", "13":
	default:
		w.Header().Set("Sec-WebSocket-Version", "13, 8, 7")
		return nil, ErrInvalidVersion
	}

	// 5. Get Sec-WebSocket-Key (RFC 6455 Section 4.2.1, item 5)
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingSecKey
	}

	// 6. Check origin (application-level security)
	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		return nil, ErrOriginDenied
	}

	// 7. Negotiate subprotocol (RFC 6455 Section 4.2.2, item 5)
	subprotocol := negotiateSubprotocol(r, opts.Subprotocols)

	// 8. Compute Sec-WebSocket-Accept (RFC 6455 Section 4.2.2, item 4)
	accept := computeAcceptKey(key)

	// 9. Send 101 Switching Protocols response
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", accept)
	if subprotocol != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subprotocol)
	}
	w.WriteHeader(http.StatusSwitchingProtocols)

	// 10. Hijack connection (take over TCP socket)
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, ErrHijackFailed
	}

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, err
	}

	// Ensure connection is flushed (101 response sent)
	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close() // Best effort close
		return nil, err
	}

	// 11. Create buffered readers/writers with configured sizes
	// Reuse existing reader if buffer is large enough
	var reader *bufio.Reader
	if bufrw.Reader.Size() >= opts.ReadBufferSize {
		reader = bufrw.Reader
	} else {
		reader = bufio.NewReaderSize(netConn, opts.ReadBufferSize)
	}

	// Always create new writer with configured size
	writer := bufio.NewWriterSize(netConn, opts.WriteBufferSize)

	// 12. Create WebSocket connection (server-side)
	conn := newConnWithConfig(netConn, reader, writer, true, opts.Config)
	conn.version = version
	conn.subprotocol = subprotocol
	conn.origin = originHeader(r, version)
	conn.resource = r.URL.RequestURI()
	conn.cfg.Logger.logHandshake(conn.id, true, version)

	return conn, nil
}

// originHeader returns the request's origin under the header name the
// negotiated version uses: drafts 7 and 8 sent Sec-WebSocket-Origin,
// RFC 6455 renamed it to plain Origin.
func originHeader(r *http.Request, version string) string {
	if version == "7" || version == "8" {
		if o := r.Header.Get("Sec-WebSocket-Origin"); o != "" {
			return o
		}
	}
	return r.Header.Get("Origin")
}

// upgradeHixie76 completes the legacy draft-hixie-thewebsocketprotocol-76
// handshake: no Sec-WebSocket-Version, two encoded key headers plus an
// 8-byte key sent as the request body, and an MD5-based response body
// instead of a Sec-WebSocket-Accept header.
func upgradeHixie76(w http.ResponseWriter, r *http.Request, opts *UpgradeOptions) (*Conn, error) {
	key1 := r.Header.Get("Sec-WebSocket-Key1")
	key2 := r.Header.Get("Sec-WebSocket-Key2")

	if opts.CheckOrigin != nil && !opts.CheckOrigin(r) {
		return nil, ErrOriginDenied
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, ErrHijackFailed
	}
	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, err
	}

	key3, err := readHixieKey3(bufrw.Reader)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("read hixie key3: %w", err)
	}
	digest := computeHixieDigest(key1, key2, key3)

	origin := r.Header.Get("Origin")
	host := r.Host

	resp := "HTTP/1.1 101 WebSocket Protocol Handshake\r\n" +
		"Upgrade: WebSocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Origin: " + origin + "\r\n" +
		"Sec-WebSocket-Location: ws://" + host + r.URL.RequestURI() + "\r\n" +
		"\r\n"

	if _, err := bufrw.WriteString(resp); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	if _, err := bufrw.Write(digest[:]); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	if err := bufrw.Flush(); err != nil {
		_ = netConn.Close()
		return nil, err
	}

	reader := bufrw.Reader
	writer := bufio.NewWriter(netConn)

	conn := newConnWithConfig(netConn, reader, writer, true, opts.Config)
	conn.version = "hixie-76"
	conn.origin = origin
	conn.resource = r.URL.RequestURI()
	conn.cfg.Logger.logHandshake(conn.id, true, "hixie-76")

	return conn, nil
}

// computeAcceptKey computes Sec-WebSocket-Accept from client key.
//
// RFC 6455 Section 1.3:
//
//	Sec-WebSocket-Accept = base64(SHA-1(key + GUID))
//
// Where GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11".
//
// Example:
//
//	key := "dGhlIHNhbXBsZSBub25jZQ=="
//	accept := computeAcceptKey(key)
//	// accept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
func computeAcceptKey(key string) string {
	// #nosec G401 - SHA-1 required by RFC 6455 Section 1.3 (not for cryptographic security)
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// negotiateSubprotocol selects first match from client's requested subprotocols.
//
// RFC 6455 Section 1.9: Server selects ONE subprotocol from client's list.
//
// Returns empty string if no match or no subprotocols configured.
func negotiateSubprotocol(r *http.Request, serverProtos []string) string {
	if len(serverProtos) == 0 {
		return ""
	}

	clientProtos := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	for _, clientProto := range clientProtos {
		clientProto = strings.TrimSpace(clientProto)
		for _, serverProto := range serverProtos {
			if clientProto == serverProto {
				return clientProto
			}
		}
	}

	return ""
}

// headerContainsToken checks if header value contains token (case-insensitive).
//
// RFC 6455 Section 4.2.1: Header tokens are case-insensitive.
//
// Example:
//
//	headerContainsToken("Upgrade, HTTP/2.0", "upgrade") // true
//	headerContainsToken("keep-alive", "upgrade")        // false
func headerContainsToken(header, token string) bool {
	header = strings.ToLower(header)
	token = strings.ToLower(token)

	for _, h := range strings.Split(header, ",") {
		if strings.TrimSpace(h) == token {
			return true
		}
	}

	return false
}

// DialOptions configures an outbound WebSocket handshake.
type DialOptions struct {
	// Header carries extra headers to send with the handshake request.
	Header http.Header

	// Subprotocols is the list of subprotocols this client will offer.
	Subprotocols []string

	// TLSConfig configures the TLS connection used for wss:// URIs. A
	// nil value uses Go's default TLS configuration.
	TLSConfig *tls.Config

	// HandshakeTimeout bounds the handshake round-trip once the TCP
	// (and TLS) connection is up. Zero falls back to
	// Config.HandshakeTimeout; a negative Config value disables the
	// bound entirely.
	HandshakeTimeout time.Duration

	// Config carries the resulting Conn's runtime behavior. nil uses
	// DefaultConfig().
	Config *Config
}

// Dial connects to a WebSocket server at url (ws:// or wss://) and
// performs the RFC 6455 opening handshake as a client, verifying the
// server's Sec-WebSocket-Accept against the nonce this call generated.
// ctx bounds the TCP dial; once connected, opts.HandshakeTimeout (if
// set) bounds the handshake round-trip via a connection deadline.
func Dial(ctx context.Context, url string, opts *DialOptions) (*Conn, *http.Response, error) {
	if opts == nil {
		opts = &DialOptions{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = cfg.HandshakeTimeout
	}

	u, err := parseWSURI(url)
	if err != nil {
		return nil, nil, err
	}
	if u.secure && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // ServerName is derived from the dial host below
		opts.TLSConfig.ServerName = u.host
	}

	dialer := net.Dialer{}

	var netConn net.Conn
	if u.secure {
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: opts.TLSConfig}
		netConn, err = tlsDialer.DialContext(ctx, "tcp", u.hostport())
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", u.hostport())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	if opts.HandshakeTimeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}

	nonce := defaultMaskSource.nextNonce(16)
	wsKey := base64.StdEncoding.EncodeToString(nonce)

	req := "GET " + u.resource + " HTTP/1.1\r\n" +
		"Host: " + u.host + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + wsKey + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n"

	if len(opts.Subprotocols) > 0 {
		req += "Sec-WebSocket-Protocol: " + strings.Join(opts.Subprotocols, ", ") + "\r\n"
	}
	for name, values := range opts.Header {
		for _, v := range values {
			req += name + ": " + v + "\r\n"
		}
	}
	req += "\r\n"

	if _, err := netConn.Write([]byte(req)); err != nil {
		_ = netConn.Close()
		return nil, nil, fmt.Errorf("write handshake: %w", err)
	}

	reader := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(reader, &http.Request{Method: http.MethodGet})
	if err != nil {
		_ = netConn.Close()
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusSwitchingProtocols {
		_ = netConn.Close()
		return nil, resp, fmt.Errorf("handshake failed: status %d", resp.StatusCode)
	}
	if !headerContainsToken(resp.Header.Get("Upgrade"), "websocket") {
		_ = netConn.Close()
		return nil, resp, ErrMissingUpgrade
	}
	if !headerContainsToken(resp.Header.Get("Connection"), "upgrade") {
		_ = netConn.Close()
		return nil, resp, ErrMissingConnection
	}
	if computeAcceptKey(wsKey) != resp.Header.Get("Sec-WebSocket-Accept") {
		_ = netConn.Close()
		return nil, resp, ErrAcceptMismatch
	}

	if opts.HandshakeTimeout > 0 {
		_ = netConn.SetDeadline(time.Time{})
	}

	writer := bufio.NewWriterSize(netConn, cfg.WriteBufferSize)
	conn := newConnWithConfig(netConn, reader, writer, false, cfg)
	conn.version = "13"
	conn.subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	conn.resource = u.resource
	conn.cfg.Logger.logHandshake(conn.id, false, "13")

	return conn, resp, nil
}

// checkSameOrigin returns true if Origin header matches request host.
//
// It is unexported and is not applied by default: a nil
// UpgradeOptions.CheckOrigin accepts every origin. Inside this package
// it can be set explicitly:
//
//	opts := &UpgradeOptions{
//	    CheckOrigin: checkSameOrigin,
//	}
func checkSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header = non-browser client (e.g., curl, Go client)
		return true
	}

	// Build expected origin from request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	expectedOrigin := scheme + "://" + r.Host

	return origin == expectedOrigin
}
