package lib

import (
	"net/url"
	"strings"

	"github.com/gravitational/trace"
)

// AddrToURL turns a bare host[:port] or a full URL into an API base URL.
// Addresses without a scheme default to https.
func AddrToURL(addr string) (*url.URL, error) {
	var (
		result *url.URL
		err    error
	)
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, trace.BadParameter("empty address")
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "https://" + addr
	}
	if result, err = url.Parse(addr); err != nil {
		return nil, trace.Wrap(err)
	}
	if result.Host == "" {
		return nil, trace.BadParameter("address %q has no host", addr)
	}
	switch {
	case result.Scheme == "https" && result.Port() == "443":
		// Cut off redundant :443
		result.Host = result.Hostname()
	case result.Scheme == "http" && result.Port() == "80":
		result.Host = result.Hostname()
	}
	result.Path = strings.TrimSuffix(result.Path, "/")
	return result, nil
}
