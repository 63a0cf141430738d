package lib

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"
	"time"

	"github.com/campusmarket/market-client/lib/stringset"
	"github.com/gravitational/trace"
)

const (
	// DefaultAPIURL is the production marketplace API.
	DefaultAPIURL = "https://api.campusmarket.app/api/v1"
	// DefaultAPITimeout is the per-request transport timeout.
	DefaultAPITimeout = 10 * time.Second
	// DefaultAPIMaxConns limits connections per API host.
	DefaultAPIMaxConns = 100
)

// APIConfig stores config options for where the marketplace API is listening
// and how to reach it.
type APIConfig struct {
	URL       string        `toml:"url"`
	Timeout   time.Duration `toml:"timeout"`
	MaxConns  int           `toml:"max_conns"`
	ClientKey string        `toml:"client_key"`
	ClientCrt string        `toml:"client_crt"`
	RootCAs   string        `toml:"root_cas"`
	// Insecure skips server certificate verification. Used against local
	// development servers only.
	Insecure bool `toml:"insecure"`
}

func (cfg *APIConfig) CheckAndSetDefaults() error {
	if cfg.URL == "" {
		cfg.URL = DefaultAPIURL
	}
	url, err := AddrToURL(cfg.URL)
	if err != nil {
		return trace.Wrap(err, "invalid API url")
	}
	cfg.URL = url.String()

	if cfg.Timeout < 0 {
		return trace.BadParameter("API timeout must not be negative")
	} else if cfg.Timeout == 0 {
		cfg.Timeout = DefaultAPITimeout
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultAPIMaxConns
	}

	return trace.Wrap(cfg.CheckTLSConfig())
}

// CheckTLSConfig requires the client certificate settings to be either all set or all empty.
func (cfg *APIConfig) CheckTLSConfig() error {
	provided := stringset.NewWithCap(3)
	missing := stringset.NewWithCap(3)

	if cfg.ClientCrt != "" {
		provided.Add("`client_crt`")
	} else {
		missing.Add("`client_crt`")
	}

	if cfg.ClientKey != "" {
		provided.Add("`client_key`")
	} else {
		missing.Add("`client_key`")
	}

	if cfg.RootCAs != "" {
		provided.Add("`root_cas`")
	} else {
		missing.Add("`root_cas`")
	}

	if len(provided) > 0 && len(provided) < 3 {
		return trace.BadParameter(
			"configuration setting(s) %s are provided but setting(s) %s are missing",
			strings.Join(provided.Sorted(), ", "),
			strings.Join(missing.Sorted(), ", "),
		)
	}

	return nil
}

// TLSConfig builds the transport TLS configuration. It returns nil when the
// system defaults are good enough.
func (cfg APIConfig) TLSConfig() (*tls.Config, error) {
	if cfg.ClientCrt == "" && !cfg.Insecure {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.Insecure,
	}
	if cfg.ClientCrt == "" {
		return tlsConfig, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.ClientCrt, cfg.ClientKey)
	if err != nil {
		return nil, trace.Wrap(err, "failed to load client key pair")
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	pem, err := os.ReadFile(cfg.RootCAs)
	if err != nil {
		return nil, trace.Wrap(err, "failed to read root CAs")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, trace.BadParameter("no certificates found in %s", cfg.RootCAs)
	}
	tlsConfig.RootCAs = pool

	return tlsConfig, nil
}
