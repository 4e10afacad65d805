package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	got, err := RenderTemplate("hello {{.Name}}", map[string]any{"Name": "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", got)
	}
}

func TestRenderTemplateMissingKey(t *testing.T) {
	if _, err := RenderTemplate("{{.Missing}}", map[string]any{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestRenderTemplateForbiddenDirectives(t *testing.T) {
	for _, tmpl := range []string{
		"{{call .Func}}",
		"{{define \"x\"}}{{end}}",
		"{{template \"x\"}}",
		"{{block \"x\" .}}{{end}}",
	} {
		_, err := RenderTemplate(tmpl, map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "forbidden directive") {
			t.Errorf("template %q: expected forbidden directive error, got %v", tmpl, err)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("expected unmodified string, got %q", got)
	}
	if got := TruncateString("0123456789", 4); got != "0123..." {
		t.Errorf("expected truncated string, got %q", got)
	}
	// Multi-byte safety
	if got := TruncateString("héllo wörld", 5); got != "héllo..." {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
}
