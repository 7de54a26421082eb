package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("hidden")
	log.Warn("No new responses", zap.Int("reqSize", 64))
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	if got := gjson.Get(lines[0], "msg").String(); got != "No new responses" {
		t.Errorf("msg = %q", got)
	}
	if got := gjson.Get(lines[0], "level").String(); got != "warn" {
		t.Errorf("level = %q", got)
	}
	if got := gjson.Get(lines[0], "reqSize").Int(); got != 64 {
		t.Errorf("reqSize = %d", got)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Debug("Sending request", zap.Int("size", 8))
	_ = log.Sync()

	out := buf.String()
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "Sending request") || !strings.Contains(out, `"size": 8`) {
		t.Errorf("console output = %q", out)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []Options{
		{Level: "chatty"},
		{Format: "logfmt"},
	}

	for _, opts := range tests {
		if _, err := New(opts); err == nil {
			t.Errorf("New(%+v) error = nil, want error", opts)
		}
	}
}
