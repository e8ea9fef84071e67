package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/specter"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if got := out.String(); got != "obs-connector 1.0\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "automation:\n  port: 70000\n")
	err := run(context.Background(), []string{"--config", path}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "automation.port") {
		t.Errorf("run() = %v, want automation.port error", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--nope"}, io.Discard); err == nil {
		t.Error("run() with an unknown flag should fail")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, "access_token: T1\nlog:\n  level: info\n")
	opts, flagSet, err := parseFlags([]string{"-c", path, "--log-level", "debug", "--status-listen", ""})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Status.Listen != "" {
		t.Errorf("Status.Listen = %q, want empty", cfg.Status.Listen)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want default text", cfg.Log.Format)
	}
	if cfg.Log.File != "" {
		t.Errorf("Log.File = %q, want empty", cfg.Log.File)
	}
	if cfg.Control.ClientName != "OBS Connector V1.0" {
		t.Errorf("Control.ClientName = %q", cfg.Control.ClientName)
	}
}

func TestLoadConfigLogFileOverride(t *testing.T) {
	path := writeConfig(t, "log:\n  file: from-config.log\n")
	logPath := filepath.Join(t.TempDir(), "connector.log")
	opts, flagSet, err := parseFlags([]string{"-c", path, "--log-file", logPath})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Log.File != logPath {
		t.Errorf("Log.File = %q, want %q", cfg.Log.File, logPath)
	}
}

func TestCheckKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("api_key") {
		case "good":
			w.Write([]byte(`{"status":"Valid API Key"}`))
		default:
			w.Write([]byte(`{"status":"Invalid API Key"}`))
		}
	}))
	defer srv.Close()

	api := specter.New(srv.URL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := checkKey(context.Background(), api, "good", logger); err != nil {
		t.Errorf("valid key: %v", err)
	}
	if err := checkKey(context.Background(), api, "bad", logger); !errors.Is(err, specter.ErrInvalidKey) {
		t.Errorf("invalid key: %v, want ErrInvalidKey", err)
	}
	if err := checkKey(context.Background(), api, "", logger); err == nil {
		t.Error("empty token should fail")
	}

	down := specter.New("http://127.0.0.1:1", specter.WithTimeout(time.Second))
	if err := checkKey(context.Background(), down, "good", logger); err != nil {
		t.Errorf("unreachable API should only warn, got %v", err)
	}
}
