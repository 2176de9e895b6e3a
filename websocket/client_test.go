package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
)

// dialTestServer is a helper function for tests to dial a test server.
func dialTestServer(tb interface {
	Helper()
	Fatalf(string, ...any)
}, server *httptest.Server) *Conn {
	tb.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := Dial(context.Background(), wsURL, nil)
	if err != nil {
		tb.Fatalf("Dial error: %v", err)
	}
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	return conn
}

// newTestServer is a helper to create test HTTP server with WebSocket handler.
func newTestServer(tb interface{ Helper() }, handler func(*Conn)) *httptest.Server {
	tb.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}
