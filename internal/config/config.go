// Package config loads pathfinder's YAML configuration file and validates
// it, following the shape of boulder's cmd.Config (one struct, loaded
// wholesale, with ConfigDuration/ConfigSecret helper types for fields that
// need custom unmarshalling).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/letsencrypt/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the pathfinder process.
//
// Note: no defaults are applied beyond what is documented on each field;
// Load validates the result with struct tags before returning it.
type Config struct {
	// ListenAddr is the address the WebSocket listener binds to, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// DebugAddr is the address the /debug/pprof and /metrics handlers bind
	// to. Empty disables the debug listener.
	DebugAddr string `yaml:"debug_addr"`

	// LogLevel is one of logrus's level strings ("debug", "info", "warn",
	// "error").
	LogLevel string `yaml:"log_level" validate:"required,oneof=debug info warn warning error"`

	AMQP AMQPConfig `yaml:"amqp" validate:"required"`

	// JWTSecret is loaded but not read by any component: the JWT middleware
	// only parses tokens structurally and leaves signature verification to
	// the auth microservice's verify sub-RPC.
	JWTSecret ConfigSecret `yaml:"jwt_secret"`

	// RequestTimeout bounds how long the RPC engine waits for a reply on the
	// per-request queue before failing with a MessageBrokerError. Defaults
	// to 30s when zero.
	RequestTimeout ConfigDuration `yaml:"request_timeout"`

	// ShutdownTimeout bounds the HTTP server's graceful shutdown on a
	// termination signal. Defaults to 10s when zero. Upgraded WebSocket
	// connections are not waited for.
	ShutdownTimeout ConfigDuration `yaml:"shutdown_timeout"`

	// Endpoints maps a routable URL to its descriptor. Keyed by URL so a
	// YAML document can list them as a mapping rather than requiring a
	// redundant "url" key inside every entry, though EndpointConfig.URL can
	// still override the key (the original permits both program orders).
	Endpoints map[string]EndpointConfig `yaml:"endpoints" validate:"required,dive"`
}

// AMQPConfig describes how to connect to the broker.
type AMQPConfig struct {
	URI ConfigSecret `yaml:"uri" validate:"required"`

	// Insecure dials URI as given without a TLS configuration, which is what
	// allows a plaintext amqp:// URI; when false, URI must use amqps:// and
	// TLS must be set.
	Insecure bool `yaml:"insecure"`

	TLS *TLSConfig `yaml:"tls"`

	// HeartbeatInterval overrides amqp091-go's default connection
	// heartbeat. Zero uses the library default.
	HeartbeatInterval ConfigDuration `yaml:"heartbeat_interval"`
}

// TLSConfig points at PEM files for authenticated AMQPS.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CACertFile string `yaml:"ca_cert_file"`
}

// EndpointConfig is one entry of the endpoint registry.
type EndpointConfig struct {
	URL string `yaml:"url"`

	// RoutingKey is required; an entry without one is logged and skipped by
	// endpoint.Extract rather than failing Load.
	RoutingKey string `yaml:"routing_key"`

	// RequestExchange and ResponseExchange default to
	// endpoint.DefaultRequestExchange / endpoint.DefaultResponseExchange
	// when empty.
	RequestExchange  string `yaml:"request_exchange"`
	ResponseExchange string `yaml:"response_exchange"`

	// TokenRequired selects whether the JWT auth middleware runs before a
	// request against this endpoint is forwarded. Defaults to true, as in
	// the original proxy, so a missing field fails closed; set explicitly
	// to false to use the null middleware.
	TokenRequired *bool `yaml:"token_required"`

	// Microservice is forwarded verbatim to the target in the
	// microservice_name request header.
	Microservice string `yaml:"microservice"`
}

// Load reads and validates the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &c, nil
}

// ConfigDuration is a time.Duration that unmarshals from a duration string
// like "30s" instead of YAML's native integer-nanoseconds representation.
type ConfigDuration struct {
	time.Duration
}

func (d *ConfigDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ConfigSecret is a string-valued config field. If its value starts with
// "secret:", the remainder is treated as a filename whose contents (with
// trailing newlines trimmed) become the field's value, so secrets can be
// mounted into a container instead of committed to the config file.
type ConfigSecret string

const secretPrefix = "secret:"

func (d *ConfigSecret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if !strings.HasPrefix(s, secretPrefix) {
		*d = ConfigSecret(s)
		return nil
	}
	contents, err := os.ReadFile(s[len(secretPrefix):])
	if err != nil {
		return err
	}
	*d = ConfigSecret(strings.TrimRight(string(contents), "\n"))
	return nil
}
