package httpx

import (
	"crypto/tls"

	"github.com/go-resty/resty/v2"
)

// engine builds the resty client carrying transport-level settings.
type engine struct {
	tlsConfig *tls.Config
}

// newEngine returns a resty.Client configured according to the TLS
// settings. Defaults: MinVersion TLS1.3 when MinVersion is zero.
func (e *engine) new() *resty.Client {
	c := resty.New()
	cfg := e.tlsConfig
	if cfg == nil {
		return c
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS13
	}
	c.SetTLSClientConfig(cfg)
	return c
}
