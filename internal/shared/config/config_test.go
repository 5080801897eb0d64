package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ENV", "PORT", "OBJECT_STORE", "PUBLIC_BASE_URL", "PREWARM_FORMATS", "FETCH_TIMEOUT", "PREWARM_ON_UPLOAD"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.PublicBaseURL != "http://localhost:8080/files" {
		t.Fatalf("unexpected public base url %q", cfg.PublicBaseURL)
	}
	if len(cfg.PrewarmFormats) != 3 || cfg.PrewarmFormats[2] != "webp" {
		t.Fatalf("unexpected prewarm formats %v", cfg.PrewarmFormats)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Fatalf("unexpected fetch timeout %s", cfg.FetchTimeout)
	}
	if cfg.PrewarmOnUpload {
		t.Fatalf("expected prewarm on upload disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/files/")
	t.Setenv("PREWARM_FORMATS", "WEBP, png")
	t.Setenv("PREWARM_ON_UPLOAD", "true")
	t.Setenv("FETCH_CACHE_SIZE", "nope")
	t.Setenv("FETCH_CACHE_BYTES", "67108864")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3, got %q", cfg.ObjectStoreType)
	}
	if cfg.PublicBaseURL != "https://cdn.example.com/files" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
	if len(cfg.PrewarmFormats) != 2 || cfg.PrewarmFormats[0] != "webp" || cfg.PrewarmFormats[1] != "png" {
		t.Fatalf("unexpected prewarm formats %v", cfg.PrewarmFormats)
	}
	if !cfg.PrewarmOnUpload {
		t.Fatalf("expected prewarm on upload")
	}
	if cfg.FetchCacheSize != 64 {
		t.Fatalf("expected invalid int to fall back to default, got %d", cfg.FetchCacheSize)
	}
	if cfg.FetchCacheBytes != 64<<20 {
		t.Fatalf("expected 64 MiB fetch cache budget, got %d", cfg.FetchCacheBytes)
	}
}

func TestParseEnvLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		key     string
		val     string
		wantErr bool
	}{
		{line: "FOO=bar", key: "FOO", val: "bar"},
		{line: `export S3_BUCKET="brand-assets"`, key: "S3_BUCKET", val: "brand-assets"},
		{line: "# comment", wantErr: true},
		{line: "   ", wantErr: true},
		{line: "NOEQUALS", wantErr: true},
		{line: "=value", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			key, val, ok := parseEnvLine(tt.line)
			if ok == tt.wantErr {
				t.Fatalf("parseEnvLine(%q) ok=%v", tt.line, ok)
			}
			if key != tt.key || val != tt.val {
				t.Fatalf("parseEnvLine(%q) = %q, %q", tt.line, key, val)
			}
		})
	}
}
