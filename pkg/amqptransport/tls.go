package amqptransport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TLSConfig holds configuration for a device's AMQP connection to its hub.
// Adapted from the teacher's mutual-TLS config assembly: a device session
// only ever dials out, so there is no client CA pool or ALPN negotiation,
// but certificate-based authentication (AuthModeX509) still needs an
// optional client certificate alongside the hub's root CA pool.
type TLSConfig struct {
	// ServerName is the hub hostname, used for SNI and certificate
	// verification.
	ServerName string

	// RootCAs is the pool of trusted CA certificates for the hub's
	// certificate. A nil pool falls back to the system root pool.
	RootCAs *x509.CertPool

	// ClientCertificate is presented when AuthMode is AuthModeX509; it is
	// the zero value when AuthMode is AuthModeCBS.
	ClientCertificate *tls.Certificate

	// InsecureSkipVerify disables certificate verification. Only for
	// testing against a local broker - never use in production.
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds a *tls.Config for dialing a hub.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("amqptransport: TLSConfig is required")
	}
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("amqptransport: ServerName is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		RootCAs:            cfg.RootCAs,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.ClientCertificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*cfg.ClientCertificate}
	}

	return tlsConfig, nil
}
