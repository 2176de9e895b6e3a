package websocket

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with two independently leveled
// channels: handshake and close events are "access" log lines, while
// protocol violations and I/O failures are "error" log lines. The
// split lets an operator silence per-connection traffic without losing
// sight of failures.
type Logger struct {
	access zerolog.Logger
	err    zerolog.Logger
}

// NewLogger returns a Logger writing human-readable console output to
// stderr at info level. Use NewLoggerFrom to control level and output.
func NewLogger() *Logger {
	return NewLoggerFrom(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.InfoLevel, zerolog.WarnLevel)
}

// NewLoggerFrom builds a Logger writing to w, gating access events
// (handshake completed, connection closed) at accessLevel and error
// events (protocol violations, I/O failures) at errorLevel.
func NewLoggerFrom(w io.Writer, accessLevel, errorLevel zerolog.Level) *Logger {
	base := zerolog.New(w).With().Timestamp().Logger()
	return &Logger{
		access: base.Level(accessLevel),
		err:    base.Level(errorLevel),
	}
}

func (l *Logger) accessEvent() *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.access.Info()
}

func (l *Logger) errorEvent(err error) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.err.Error().Err(err)
}

// logHandshake records a completed opening handshake.
func (l *Logger) logHandshake(connID string, isServer bool, version string) {
	if l == nil {
		return
	}
	l.accessEvent().
		Str("conn_id", connID).
		Bool("is_server", isServer).
		Str("ws_version", version).
		Msg("handshake complete")
}

// logClose records a connection's final CloseState.
func (l *Logger) logClose(connID string, st CloseState) {
	if l == nil {
		return
	}
	l.accessEvent().
		Str("conn_id", connID).
		Int("local_code", int(st.LocalCode)).
		Int("remote_code", int(st.RemoteCode)).
		Bool("was_clean", st.WasClean).
		Str("fail", st.Fail.String()).
		Msg("connection closed")
}

// logProtocolError records a protocol violation or I/O failure seen
// while processing frames.
func (l *Logger) logProtocolError(connID string, opcode byte, err error) {
	if l == nil {
		return
	}
	l.errorEvent(err).
		Str("conn_id", connID).
		Uint8("opcode", opcode).
		Msg("frame processing error")
}
