package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"torrent-catalog/torrentinfo"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: \"8080\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Catalog.Compression != "zstd" {
		t.Errorf("driver %q compression %q", cfg.Database.Driver, cfg.Catalog.Compression)
	}
	if cfg.Catalog.MaxPieces != torrentinfo.DefaultMaxPieces {
		t.Errorf("max_pieces = %d", cfg.Catalog.MaxPieces)
	}
	if level, _ := cfg.LogLevel(); level != slog.LevelInfo {
		t.Errorf("log level = %v", level)
	}
	if got := cfg.Database.GetConnectionString(); got != filepath.Join("data", "db", "torrent_catalog.db") {
		t.Errorf("connection string = %q", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "database:\n  driver: oracle\n", "unsupported database driver"},
		{"remote without host", "database:\n  driver: postgres\n", "database host is required"},
		{"compression", "catalog:\n  compression: brotli\n", "unsupported catalog compression"},
		{"convention", "catalog:\n  path_convention: vms\n", "path_convention"},
		{"log level", "server:\n  log_level: chatty\n", "invalid log_level"},
		{"negative pieces", "catalog:\n  max_pieces: -4\n", "max_pieces"},
		{"syntax", "server: [\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CATALOG_COMPRESSION", "lz4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUTH_ENABLED", "true")
	cfg, err := Parse([]byte("catalog:\n  compression: none\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Catalog.Compression != "lz4" || !cfg.Auth.Enabled {
		t.Errorf("compression %q auth %v", cfg.Catalog.Compression, cfg.Auth.Enabled)
	}
	if level, _ := cfg.LogLevel(); level != slog.LevelDebug {
		t.Errorf("log level = %v", level)
	}
}

func TestLoadConfigCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "catalog:\n  data_dir: " + filepath.Join(dir, "store") + "\ndatabase:\n  dir: " + filepath.Join(dir, "db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"store", "db"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", sub, err)
		}
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
