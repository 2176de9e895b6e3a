package websocket

import (
	"bufio"
	"crypto/md5" //nolint:gosec // MD5 required by the Hixie-76 handshake, not for security
	"encoding/binary"
	"io"
	"net/http"
)

// Hixie-76 support (draft-hixie-thewebsocketprotocol-76), the
// pre-RFC-6455 handshake variant some old clients still send: no
// Sec-WebSocket-Version header, two "encoded" keys in the headers and
// an 8-byte key sent as the request body instead of a header, combined
// via MD5 rather than SHA-1+base64.

// isHixie76Request reports whether r looks like a Hixie-76 opening
// handshake rather than an RFC 6455 one: absence of
// Sec-WebSocket-Version together with presence of the two legacy key
// headers.
func isHixie76Request(r *http.Request) bool {
	return r.Header.Get("Sec-WebSocket-Version") == "" &&
		r.Header.Get("Sec-WebSocket-Key1") != "" &&
		r.Header.Get("Sec-WebSocket-Key2") != ""
}

// decodeHixieKey extracts the 32-bit number encoded in a Hixie-76 key
// header: divide the count of decimal digits (as a single concatenated
// number) by the count of spaces in the string. A key with no spaces
// or no digits decodes to 0 rather than erroring; a malformed legacy
// key produces a digest the client cannot verify, which fails the
// handshake on their side anyway.
func decodeHixieKey(key string) uint32 {
	var spaces int
	var digits []byte
	for i := 0; i < len(key); i++ {
		switch {
		case key[i] == ' ':
			spaces++
		case key[i] >= '0' && key[i] <= '9':
			digits = append(digits, key[i])
		}
	}
	if spaces == 0 || len(digits) == 0 {
		return 0
	}
	var num uint64
	for _, d := range digits {
		num = num*10 + uint64(d-'0')
	}
	if num == 0 {
		return 0
	}
	return uint32(num / uint64(spaces))
}

// computeHixieDigest builds the 16-byte Hixie-76 handshake response
// body: MD5 of the two keys' decoded 32-bit big-endian values followed
// by the raw 8-byte key3 sent in the request body.
func computeHixieDigest(key1, key2 string, key3 [8]byte) [16]byte {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], decodeHixieKey(key1))
	binary.BigEndian.PutUint32(buf[4:8], decodeHixieKey(key2))
	copy(buf[8:16], key3[:])
	return md5.Sum(buf[:]) //nolint:gosec
}

// readHixieKey3 reads the 8-byte key3 trailer that follows a Hixie-76
// request's headers in place of a normal request body.
func readHixieKey3(r *bufio.Reader) ([8]byte, error) {
	var key3 [8]byte
	if _, err := io.ReadFull(r, key3[:]); err != nil {
		return key3, err
	}
	return key3, nil
}
