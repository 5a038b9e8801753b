// Package server runs the HTTP listener of the API and drains it on
// shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server serves one handler over HTTP, or HTTPS when TLS is configured
type Server struct {
	httpServer *http.Server
	address    string
	listener   net.Listener
}

// Config holds the listener settings
type Config struct {
	Address string
	Handler http.Handler

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int

	// TLS serves HTTPS when set
	TLS *TLSConfig
}

// TLSConfig is the server.tls configuration section
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// MinVersion is "1.2" or "1.3", empty meaning 1.2
	MinVersion string `mapstructure:"min_version"`
}

// Enabled reports whether a certificate or key is configured
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// Validate checks the section without reading the files
func (c TLSConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return fmt.Errorf("both cert_file and key_file are required")
	}
	_, err := tlsVersion(c.MinVersion)
	return err
}

func tlsVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// DefaultConfig returns the timeouts used when the configuration leaves
// them unset
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// New creates a server. The TLS certificate is loaded here so a bad key
// pair fails before anything listens.
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	if config.TLS != nil {
		tlsConfig, err := loadTLS(*config.TLS)
		if err != nil {
			return nil, err
		}
		httpServer.TLSConfig = tlsConfig
	}

	return &Server{httpServer: httpServer, address: config.Address}, nil
}

func loadTLS(c TLSConfig) (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("server.tls: %w", err)
	}
	minVersion, _ := tlsVersion(c.MinVersion)
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   minVersion,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// Scheme returns https when TLS is configured, http otherwise
func (s *Server) Scheme() string {
	if s.httpServer.TLSConfig != nil {
		return "https"
	}
	return "http"
}

// Start listens on the configured address and serves until the server is
// shut down
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener, wrapping it in TLS when configured
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	if s.httpServer.TLSConfig != nil {
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
	}
	return s.httpServer.Serve(listener)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close closes every connection immediately
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the bound address once serving, the configured one before
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
