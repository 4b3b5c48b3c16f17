package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the settings file looked up in the working directory
const DefaultPath = "appsettings.json"

// DefaultModel is used by the local LLM backends when no model is configured
const DefaultModel = "openbmb/minicpm-v4.5"

// Backend names
const (
	BackendAzure    = "azure"
	BackendGoogle   = "google"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Setting keys as they appear in the settings file
const (
	KeyEndpoint = "CognitiveServicesEndpoint"
	KeyAPIKey   = "CognitiveServiceKey"
)

// ErrMissingSetting is returned when a required key is absent or empty
var ErrMissingSetting = errors.New("missing required setting")

// Settings holds the values read from the settings file. It is loaded once
// at startup and never modified afterwards.
type Settings struct {
	Endpoint       string `json:"CognitiveServicesEndpoint" yaml:"CognitiveServicesEndpoint"`
	Key            string `json:"CognitiveServiceKey" yaml:"CognitiveServiceKey"`
	Backend        string `json:"Backend,omitempty" yaml:"Backend,omitempty"`
	Model          string `json:"Model,omitempty" yaml:"Model,omitempty"`
	TimeoutSeconds int    `json:"TimeoutSeconds,omitempty" yaml:"TimeoutSeconds,omitempty"`
}

// Load reads settings from a JSON or YAML file. The file must exist and carry
// both the endpoint and the key; optional values get their defaults.
func Load(filename string) (*Settings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", filename, err)
	}

	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Key = strings.TrimSpace(s.Key)
	if s.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingSetting, KeyEndpoint)
	}
	if s.Key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingSetting, KeyAPIKey)
	}

	if s.Backend == "" {
		s.Backend = BackendAzure
	}
	s.Backend = strings.ToLower(s.Backend)
	if s.Model == "" {
		s.Model = DefaultModel
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the settings are usable
func (s *Settings) Validate() error {
	switch s.Backend {
	case BackendAzure, BackendOllama, BackendLlamaCpp:
		u, err := url.Parse(s.Endpoint)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", KeyEndpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", KeyEndpoint, s.Endpoint)
		}
	case BackendGoogle:
		if _, err := GRPCAddress(s.Endpoint); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q (use azure, google, ollama or llamacpp)", s.Backend)
	}

	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("TimeoutSeconds must not be negative")
	}
	return nil
}

// Timeout returns the configured request timeout, zero meaning the library default
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// GRPCAddress turns an endpoint given either as URL or as host[:port] into
// the host:port form gRPC dials.
func GRPCAddress(endpoint string) (string, error) {
	host := endpoint
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("%s is not a valid URL: %w", KeyEndpoint, err)
		}
		host = u.Host
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return "", fmt.Errorf("%s has no host: %q", KeyEndpoint, endpoint)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}
	return host, nil
}
