package websocket

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the behavior knobs shared by every connection an
// Endpoint accepts or dials. Gathering them into one struct lets an
// Endpoint apply the same policy uniformly instead of each call site
// picking its own default.
//
// The zero value is not ready to use; call DefaultConfig and override
// individual fields.
type Config struct {
	// ReadBufferSize and WriteBufferSize size the bufio.Reader/Writer
	// wrapped around each connection's net.Conn.
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize bounds the reassembled size of one application
	// message (sum of all its fragments). Zero means unbounded.
	MaxMessageSize int

	// MessagePoolCapacity bounds how many in-flight fragment buffers a
	// single connection may hold before Read blocks waiting for one to
	// be released (the OUT_OF_MESSAGES backpressure path). Zero means
	// unbounded.
	MessagePoolCapacity int

	// MaxFragmentSize bounds how many payload bytes Conn.Write puts in
	// a single outbound frame before splitting the rest into
	// continuation frames. Zero or negative means never split: a
	// message is always written as one frame, regardless of size.
	MaxFragmentSize int

	// HandshakeTimeout bounds the client side of the opening handshake:
	// Endpoint.Dial applies it to the whole dial, and Dial uses it when
	// DialOptions.HandshakeTimeout is zero. Upgrade and Endpoint.Listen
	// do not apply it, so the server side of the handshake is not
	// bounded. Zero means no timeout.
	HandshakeTimeout time.Duration

	// TLSHandshakeTimeout is carried in the Config but is not read by
	// Listen, Dial or Upgrade; no TLS handshake is bounded by it.
	TLSHandshakeTimeout time.Duration

	// CloseTimeout bounds how long CloseWithCode waits for the peer's
	// answering close frame before tearing down the TCP connection
	// unilaterally. Zero means close immediately without waiting.
	CloseTimeout time.Duration

	// Logger receives structured events for handshakes, closes and
	// protocol violations. The default logs errors only; use NewLogger
	// or NewLoggerFrom to also log access events. A nil Logger
	// disables logging.
	Logger *Logger
}

// DefaultConfig returns a Config with conservative production
// defaults: 4 KiB I/O buffers, a 16 MiB message cap, a 64-buffer pool,
// a 64 KiB outbound fragment size, 5-second opening-handshake and TLS
// timeouts, and a 1-second close-handshake timeout.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:      defaultReadBufferSize,
		WriteBufferSize:     defaultWriteBufferSize,
		MaxMessageSize:      16 * 1024 * 1024,
		MessagePoolCapacity: 64,
		MaxFragmentSize:     64 * 1024,
		HandshakeTimeout:    5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		CloseTimeout:        time.Second,
		Logger:              NewLoggerFrom(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.Disabled, zerolog.ErrorLevel),
	}
}
