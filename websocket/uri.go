package websocket

import (
	"regexp"
	"strconv"
)

const (
	defaultPort       = 80
	defaultSecurePort = 443
)

// wsURI is a parsed ws:// or wss:// URI. A dedicated parser is used
// instead of net/url.URL because net/url accepts schemes, fragments
// and host forms this package must reject: only ws/wss are legal here,
// and a fragment on a WebSocket URI is an error, not data.
type wsURI struct {
	secure   bool
	host     string
	port     uint16
	resource string
}

// scheme, host (dotted name, IPv4, or bracketed IPv6 literal),
// optional :port, optional /resource. No fragment: [^#] excludes it so
// a URI carrying one fails the match outright.
var uriPattern = regexp.MustCompile(`^(ws|wss)://([^/:\[]+|\[[0-9a-fA-F:]+\])(:\d{1,5})?(/[^#]*)?$`)

// parseWSURI parses s as a ws:// or wss:// URI.
func parseWSURI(s string) (wsURI, error) {
	m := uriPattern.FindStringSubmatch(s)
	if m == nil {
		return wsURI{}, ErrInvalidURI
	}

	u := wsURI{secure: m[1] == "wss", host: m[2]}

	if m[3] == "" {
		u.port = defaultPortFor(u.secure)
	} else {
		port, err := strconv.Atoi(m[3][1:])
		if err != nil || port < 1 || port > 65535 {
			return wsURI{}, ErrInvalidURI
		}
		u.port = uint16(port)
	}

	if m[4] == "" {
		u.resource = "/"
	} else {
		u.resource = m[4]
	}

	return u, nil
}

func defaultPortFor(secure bool) uint16 {
	if secure {
		return defaultSecurePort
	}
	return defaultPort
}

// hostport returns host:port suitable for net.Dial.
func (u wsURI) hostport() string {
	return u.host + ":" + strconv.Itoa(int(u.port))
}

// str reassembles the URI, omitting the port when it is the scheme's
// default.
func (u wsURI) str() string {
	scheme := "ws"
	if u.secure {
		scheme = "wss"
	}
	out := scheme + "://" + u.host
	if u.port != defaultPortFor(u.secure) {
		out += ":" + strconv.Itoa(int(u.port))
	}
	return out + u.resource
}
