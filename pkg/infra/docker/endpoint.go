package docker

import (
	"crypto/tls"
	"net/url"
	"strings"

	"github.com/docker/go-connections/tlsconfig"
)

// DefaultHost is used when no endpoint is configured.
const DefaultHost = "http://localhost:2376"

// TLSOptions names the client certificate material for an https endpoint.
type TLSOptions struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	SkipVerify bool
}

// Enabled reports whether any TLS material was configured.
func (o TLSOptions) Enabled() bool {
	return o.CAFile != "" || o.CertFile != "" || o.KeyFile != "" || o.SkipVerify
}

// Endpoint is the validated, immutable base URL of the engine API.
type Endpoint struct {
	base   string
	scheme string
	tls    *tls.Config
}

// ParseEndpoint normalises raw into an Endpoint. A missing scheme means
// http; tcp:// is rewritten to http, or https when TLS material is set.
func ParseEndpoint(raw string, tlsOpts TLSOptions) (Endpoint, error) {
	const op = "endpoint.parse"

	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultHost
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, validationError(op, "invalid endpoint %q: %v", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "tcp" {
		scheme = "http"
		if tlsOpts.Enabled() {
			scheme = "https"
		}
	}
	if scheme != "http" && scheme != "https" {
		return Endpoint{}, validationError(op, "unsupported scheme %q (want http or https)", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, validationError(op, "endpoint %q has no host", raw)
	}

	ep := Endpoint{
		base:   scheme + "://" + u.Host + strings.TrimRight(u.Path, "/"),
		scheme: scheme,
	}
	if scheme == "https" {
		cfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             tlsOpts.CAFile,
			CertFile:           tlsOpts.CertFile,
			KeyFile:            tlsOpts.KeyFile,
			InsecureSkipVerify: tlsOpts.SkipVerify,
		})
		if err != nil {
			return Endpoint{}, validationError(op, "load tls material: %v", err)
		}
		ep.tls = cfg
	}
	return ep, nil
}

// MustParseEndpoint is ParseEndpoint for literals known to be valid.
func MustParseEndpoint(raw string) Endpoint {
	ep, err := ParseEndpoint(raw, TLSOptions{})
	if err != nil {
		panic(err)
	}
	return ep
}

// URL returns the base URL without a trailing slash.
func (e Endpoint) URL() string { return e.base }

// Scheme is http or https.
func (e Endpoint) Scheme() string { return e.scheme }

// TLS returns the client TLS configuration, nil for plain http.
func (e Endpoint) TLS() *tls.Config { return e.tls }

func (e Endpoint) String() string { return e.base }

func (e Endpoint) isZero() bool { return e.base == "" }
