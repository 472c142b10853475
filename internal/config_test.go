package internal

import (
	"strings"
	"testing"

	"github.com/starford/fehu/internal/retention"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestLibraryConfig_EmptyRetentionDefaultsNoChange(t *testing.T) {
	cfg := LibraryConfig{Path: "./lib", ArchivePath: "./a", DiscardPath: "./d"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty retention should default: %v", err)
	}
	if cfg.Retention != retention.ActionNoChange {
		t.Errorf("retention = %q, want %q", cfg.Retention, retention.ActionNoChange)
	}
}

func TestLibraryConfig_UnknownRetention(t *testing.T) {
	cfg := LibraryConfig{Path: "./lib", ArchivePath: "./a", DiscardPath: "./d", Retention: "shred"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown retention action should fail")
	}
	if !strings.Contains(err.Error(), "retention") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDownloadConfig_Bounds(t *testing.T) {
	for _, bad := range []int64{0, -1, 33} {
		cfg := DownloadConfig{MaxConcurrent: bad}
		if err := cfg.Validate(); err == nil {
			t.Errorf("max_concurrent = %d should fail", bad)
		}
	}
	if err := (&DownloadConfig{MaxConcurrent: 3}).Validate(); err != nil {
		t.Errorf("max_concurrent = 3 should pass: %v", err)
	}
}

func TestCatalogConfig_TimeoutDefault(t *testing.T) {
	cfg := CatalogConfig{BaseURL: "https://catalog.example.com"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("catalog config should pass: %v", err)
	}
	if cfg.TimeoutSeconds != 15 {
		t.Errorf("timeout = %d, want 15", cfg.TimeoutSeconds)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
