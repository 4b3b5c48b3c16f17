package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeSettings(t, "appsettings.json", `{
  "CognitiveServicesEndpoint": "https://example.cognitiveservices.azure.com/",
  "CognitiveServiceKey": "secret"
}`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Endpoint != "https://example.cognitiveservices.azure.com/" {
		t.Errorf("unexpected endpoint %q", s.Endpoint)
	}
	if s.Key != "secret" {
		t.Errorf("unexpected key %q", s.Key)
	}
	if s.Backend != BackendAzure {
		t.Errorf("expected default backend %q, got %q", BackendAzure, s.Backend)
	}
	if s.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, s.Model)
	}
	if s.Timeout() != 0 {
		t.Errorf("expected zero timeout, got %v", s.Timeout())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeSettings(t, "appsettings.yaml", `
CognitiveServicesEndpoint: http://localhost:11434
CognitiveServiceKey: token
Backend: Ollama
TimeoutSeconds: 90
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Backend != BackendOllama {
		t.Errorf("expected backend %q, got %q", BackendOllama, s.Backend)
	}
	if s.Timeout() != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", s.Timeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing settings file")
	}
}

func TestLoadMissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing string
	}{
		{"no key", `{"CognitiveServicesEndpoint": "https://x.example.com/"}`, KeyAPIKey},
		{"no endpoint", `{"CognitiveServiceKey": "k"}`, KeyEndpoint},
		{"blank key", `{"CognitiveServicesEndpoint": "https://x.example.com/", "CognitiveServiceKey": "  "}`, KeyAPIKey},
		{"empty object", `{}`, KeyEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, "appsettings.json", tt.content))
			if !errors.Is(err, ErrMissingSetting) {
				t.Fatalf("expected ErrMissingSetting, got %v", err)
			}
			if got := err.Error(); !strings.Contains(got, tt.missing) {
				t.Errorf("error %q does not name %s", got, tt.missing)
			}
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	if _, err := Load(writeSettings(t, "appsettings.json", `{"CognitiveServiceKey":`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"azure ok", Settings{Endpoint: "https://x.example.com/", Key: "k", Backend: BackendAzure}, false},
		{"azure relative", Settings{Endpoint: "x.example.com", Key: "k", Backend: BackendAzure}, true},
		{"google host", Settings{Endpoint: "vision.googleapis.com", Key: "k", Backend: BackendGoogle}, false},
		{"unknown backend", Settings{Endpoint: "https://x.example.com/", Key: "k", Backend: "bing"}, true},
		{"negative timeout", Settings{Endpoint: "https://x.example.com/", Key: "k", Backend: BackendAzure, TimeoutSeconds: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGRPCAddress(t *testing.T) {
	tests := map[string]string{
		"https://vision.googleapis.com/": "vision.googleapis.com:443",
		"vision.googleapis.com":          "vision.googleapis.com:443",
		"localhost:9000":                 "localhost:9000",
	}
	for in, want := range tests {
		got, err := GRPCAddress(in)
		if err != nil {
			t.Errorf("GRPCAddress(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("GRPCAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
