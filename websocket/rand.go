package websocket

import (
	"crypto/rand"
	"sync"
)

// maskSource produces masking keys and handshake nonces from
// crypto/rand. A predictable masking key defeats the
// cache-poisoning defense masking exists for (RFC 6455 Section 10.3),
// so keys never come from math/rand or a fixed seed.
// crypto/rand.Reader is already safe for concurrent use; the mutex
// only serializes the reads that make up one key.
type maskSource struct {
	mu sync.Mutex
}

var defaultMaskSource = &maskSource{}

// nextMaskKey returns a fresh 4-byte masking key.
func (m *maskSource) nextMaskKey() [4]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var key [4]byte
	_, _ = rand.Read(key[:])
	return key
}

// nextNonce returns n fresh random bytes, used for the Sec-WebSocket-Key
// handshake nonce and the Hixie-76 Key3 trailer.
func (m *maskSource) nextNonce(n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return buf
}
