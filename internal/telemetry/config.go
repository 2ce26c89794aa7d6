package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Protocol selects the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http/protobuf"
)

// Config describes where governd ships spans and metrics. It is assembled
// from the daemon configuration by cmd/governd.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       Protocol // empty means grpc
	ServiceName    string
	ServiceVersion string
	Environment    string // deployment.environment resource attribute
	Insecure       bool
	TLSSkipVerify  bool
	Sampling       SamplingConfig

	Metrics         bool
	MetricInterval  time.Duration
	ShutdownTimeout time.Duration
}

// SamplingConfig controls head sampling of traces.
type SamplingConfig struct {
	Rate float64 // 0..1
}

// NewDefaultConfig returns a disabled config pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		ServiceName:     "governd",
		ServiceVersion:  "dev",
		Insecure:        true,
		Sampling:        SamplingConfig{Rate: 1.0},
		Metrics:         true,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c *Config) protocol() Protocol {
	if c.Protocol == "" {
		return ProtocolGRPC
	}
	return c.Protocol
}

// Validate reports the first problem with an enabled config. A disabled
// config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint is required when telemetry is enabled")
	case c.ServiceName == "":
		return errors.New("service name is required when telemetry is enabled")
	case c.ServiceVersion == "":
		return errors.New("service version is required when telemetry is enabled")
	case c.Insecure && !isLoopback(c.Endpoint):
		return fmt.Errorf("insecure export to %s refused: only loopback collectors may be reached without TLS", c.Endpoint)
	case c.Sampling.Rate < 0 || c.Sampling.Rate > 1:
		return fmt.Errorf("sampling rate %v outside [0, 1]", c.Sampling.Rate)
	case c.Metrics && c.MetricInterval <= 0:
		return errors.New("metric interval must be positive")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown timeout must be positive")
	}
	if p := c.protocol(); p != ProtocolGRPC && p != ProtocolHTTP {
		return fmt.Errorf("unsupported protocol %q (want grpc or http/protobuf)", c.Protocol)
	}
	return nil
}

// isLoopback reports whether endpoint names this machine. Endpoints may
// carry a scheme and a port.
func isLoopback(endpoint string) bool {
	host := hostPort(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// hostPort drops an http(s) scheme and any path; the OTLP exporters take
// bare host:port endpoints.
func hostPort(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint
}
