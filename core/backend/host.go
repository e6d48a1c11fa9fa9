package backend

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the port the Ollama server listens on.
const DefaultPort = 11434

var loopbackHosts = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
}

// ParseHost parses an OLLAMA_HOST style value ("host", "host:port" or a
// full URL) and refuses anything that is not the loopback interface on the
// default port. An empty value means the local default.
func ParseHost(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", strconv.Itoa(DefaultPort))}, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid backend host %q: %w", raw, err)
	}

	host := u.Hostname()
	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid backend port %q", p)
		}
	}

	if !loopbackHosts[host] || port != DefaultPort {
		return nil, fmt.Errorf("backend host %s is not localhost:%d, refusing to start", raw, DefaultPort)
	}

	u.Host = net.JoinHostPort(host, strconv.Itoa(port))
	return u, nil
}
