package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactingHandlerHidesSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("match created", "matchPubKey", "abc", "secretKey", "c2VjcmV0", "status", "ok")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if got, _ := payload["secretKey"].(string); got != redactedValue {
		t.Fatalf("expected redacted secret, got %q", got)
	}
	if got, _ := payload["matchPubKey"].(string); got != "abc" {
		t.Fatalf("public key should be kept, got %q", got)
	}
}

func TestRedactingHandlerWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))).With("wallet_private_key", "xyz")
	logger.Info("test", slog.Group("match", slog.String("secretKey", "s"), slog.String("id", "m1")))
	out := buf.String()
	if strings.Contains(out, "xyz") || strings.Contains(out, `"s"`) {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "m1") {
		t.Fatalf("expected non-sensitive group attr, got %s", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(&bytes.Buffer{}, "debug", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
