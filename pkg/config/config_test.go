package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/maestream/pkg/models"
)

type testServiceConfig struct {
	ListenAddr  string                 `json:"listen_addr"`
	IdleTimeout time.Duration          `json:"idle_timeout"`
	Security    *models.SecurityConfig `json:"security,omitempty"`

	validateErr error
}

func (c *testServiceConfig) Validate() error {
	return c.validateErr
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeTempConfig(t, `{"listen_addr": ":50051", "idle_timeout": 90000000000}`)

	var cfg testServiceConfig

	cm := NewConfig(nil)
	if err := cm.LoadAndValidate(context.Background(), path, &cfg); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.ListenAddr != ":50051" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":50051")
	}

	if cfg.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, 90*time.Second)
	}
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var cfg testServiceConfig

	cm := NewConfig(nil)

	err := cm.LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "nope.json"), &cfg)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadAndValidateBadJSON(t *testing.T) {
	path := writeTempConfig(t, `{"listen_addr": `)

	var cfg testServiceConfig

	cm := NewConfig(nil)

	if err := cm.LoadAndValidate(context.Background(), path, &cfg); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	path := writeTempConfig(t, `{"listen_addr": ":50051"}`)

	cfg := testServiceConfig{validateErr: os.ErrInvalid}

	cm := NewConfig(nil)

	err := cm.LoadAndValidate(context.Background(), path, &cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
}

func TestLoadAndValidateRejectsBadConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "carrier-pigeon")

	var cfg testServiceConfig

	cm := NewConfig(nil)

	err := cm.LoadAndValidate(context.Background(), "ignored.json", &cfg)
	if err == nil {
		t.Fatal("expected error for bad CONFIG_SOURCE, got nil")
	}
}

func TestLoadAndValidateNormalizesSecurityPaths(t *testing.T) {
	path := writeTempConfig(t, `{
		"listen_addr": ":50051",
		"security": {
			"mode": "mtls",
			"cert_dir": "/etc/maestream/certs",
			"tls": {
				"cert_file": "client.pem",
				"key_file": "client-key.pem",
				"ca_file": "root.pem"
			}
		}
	}`)

	var cfg testServiceConfig

	cm := NewConfig(nil)
	if err := cm.LoadAndValidate(context.Background(), path, &cfg); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	tls := cfg.Security.TLS

	if want := "/etc/maestream/certs/client.pem"; tls.CertFile != want {
		t.Errorf("CertFile = %q, want %q", tls.CertFile, want)
	}

	if want := "/etc/maestream/certs/client-key.pem"; tls.KeyFile != want {
		t.Errorf("KeyFile = %q, want %q", tls.KeyFile, want)
	}

	if want := "/etc/maestream/certs/root.pem"; tls.CAFile != want {
		t.Errorf("CAFile = %q, want %q", tls.CAFile, want)
	}

	// An unset client CA falls back to the CA file.
	if tls.ClientCAFile != tls.CAFile {
		t.Errorf("ClientCAFile = %q, want fallback to %q", tls.ClientCAFile, tls.CAFile)
	}
}

func TestNormalizeTLSPathsKeepsAbsolute(t *testing.T) {
	tls := models.TLSConfig{
		CertFile:     "/abs/client.pem",
		KeyFile:      "relative-key.pem",
		CAFile:       "/abs/root.pem",
		ClientCAFile: "clients.pem",
	}

	NormalizeTLSPaths(&tls, "/etc/maestream/certs")

	if tls.CertFile != "/abs/client.pem" {
		t.Errorf("absolute CertFile was rewritten: %q", tls.CertFile)
	}

	if want := "/etc/maestream/certs/relative-key.pem"; tls.KeyFile != want {
		t.Errorf("KeyFile = %q, want %q", tls.KeyFile, want)
	}

	if want := "/etc/maestream/certs/clients.pem"; tls.ClientCAFile != want {
		t.Errorf("ClientCAFile = %q, want %q", tls.ClientCAFile, want)
	}
}

func TestEnvLoaderConfigJSON(t *testing.T) {
	t.Setenv("MAESTREAM_CONFIG_JSON", `{"listen_addr": ":9000"}`)

	var cfg testServiceConfig

	loader := NewEnvConfigLoader(nil, "MAESTREAM_")
	if err := loader.Load(context.Background(), "", &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9000")
	}
}

func TestEnvLoaderIndividualVars(t *testing.T) {
	t.Setenv("MAESTREAM_LISTEN_ADDR", ":7000")
	t.Setenv("MAESTREAM_IDLE_TIMEOUT", "45s")

	var cfg testServiceConfig

	loader := NewEnvConfigLoader(nil, "MAESTREAM_")
	if err := loader.Load(context.Background(), "", &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":7000")
	}

	if cfg.IdleTimeout != 45*time.Second {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, 45*time.Second)
	}
}

func TestEnvLoaderNestedStruct(t *testing.T) {
	t.Setenv("MAESTREAM_SECURITY_MODE", "mtls")
	t.Setenv("MAESTREAM_SECURITY_CERT_DIR", "/certs")

	var cfg testServiceConfig

	loader := NewEnvConfigLoader(nil, "MAESTREAM_")
	if err := loader.Load(context.Background(), "", &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Security == nil {
		t.Fatal("Security was not populated from environment")
	}

	if cfg.Security.Mode != "mtls" {
		t.Errorf("Security.Mode = %q, want %q", cfg.Security.Mode, "mtls")
	}

	if cfg.Security.CertDir != "/certs" {
		t.Errorf("Security.CertDir = %q, want %q", cfg.Security.CertDir, "/certs")
	}
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(nil, "MAESTREAM_")

	var cfg testServiceConfig

	if err := loader.Load(context.Background(), "", cfg); err == nil {
		t.Fatal("expected error for non-pointer dst, got nil")
	}
}
