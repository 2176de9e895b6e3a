package websocket

import (
	"errors"
	"testing"
)

func TestParseWSURI(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want wsURI
	}{
		{
			name: "plain with default port and resource",
			raw:  "ws://example.com",
			want: wsURI{secure: false, host: "example.com", port: 80, resource: "/"},
		},
		{
			name: "secure with default port",
			raw:  "wss://example.com",
			want: wsURI{secure: true, host: "example.com", port: 443, resource: "/"},
		},
		{
			name: "explicit port and resource",
			raw:  "ws://example.com:9000/chat",
			want: wsURI{secure: false, host: "example.com", port: 9000, resource: "/chat"},
		},
		{
			name: "resource with query string",
			raw:  "ws://example.com/chat?room=7&user=a",
			want: wsURI{secure: false, host: "example.com", port: 80, resource: "/chat?room=7&user=a"},
		},
		{
			name: "IPv4 host",
			raw:  "ws://127.0.0.1:8080/",
			want: wsURI{secure: false, host: "127.0.0.1", port: 8080, resource: "/"},
		},
		{
			name: "IPv6 literal keeps brackets for dialing",
			raw:  "ws://[::1]:9000/echo",
			want: wsURI{secure: false, host: "[::1]", port: 9000, resource: "/echo"},
		},
		{
			name: "secure with explicit non-default port",
			raw:  "wss://example.com:9443/feed",
			want: wsURI{secure: true, host: "example.com", port: 9443, resource: "/feed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWSURI(tt.raw)
			if err != nil {
				t.Fatalf("parseWSURI(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("parseWSURI(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseWSURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"http scheme", "http://example.com/"},
		{"no scheme", "example.com:9000/"},
		{"fragment", "ws://example.com/chat#section"},
		{"port zero is out of range", "ws://example.com:0/"},
		{"port too large", "ws://example.com:70000/"},
		{"empty host", "ws://:9000/"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseWSURI(tt.raw); !errors.Is(err, ErrInvalidURI) {
				t.Errorf("parseWSURI(%q) error = %v, want ErrInvalidURI", tt.raw, err)
			}
		})
	}
}

// TestParseWSURI_RoundTrip: parse -> str -> parse is the identity for
// well-formed URIs.
func TestParseWSURI_RoundTrip(t *testing.T) {
	inputs := []string{
		"ws://example.com/",
		"wss://example.com/",
		"ws://example.com:9000/chat",
		"wss://example.com:9443/feed?key=v",
		"ws://[::1]:9000/echo",
	}

	for _, raw := range inputs {
		u1, err := parseWSURI(raw)
		if err != nil {
			t.Fatalf("parseWSURI(%q) error = %v", raw, err)
		}
		u2, err := parseWSURI(u1.str())
		if err != nil {
			t.Fatalf("parseWSURI(str()) of %q error = %v", raw, err)
		}
		if u1 != u2 {
			t.Errorf("round trip of %q: %+v != %+v", raw, u1, u2)
		}
	}
}

func TestWSURI_Hostport(t *testing.T) {
	u, err := parseWSURI("ws://example.com:9000/chat")
	if err != nil {
		t.Fatalf("parseWSURI error = %v", err)
	}
	if got := u.hostport(); got != "example.com:9000" {
		t.Errorf("hostport() = %q, want %q", got, "example.com:9000")
	}

	u, err = parseWSURI("wss://example.com/feed")
	if err != nil {
		t.Fatalf("parseWSURI error = %v", err)
	}
	if got := u.hostport(); got != "example.com:443" {
		t.Errorf("hostport() = %q, want %q", got, "example.com:443")
	}
}
