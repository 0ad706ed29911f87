package framework

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wudi/runway/internal/routetable"
)

func TestIsTargetFile(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"users_target.so", true},
		{"target.so", true},
		{"targets.so", false},
		{"users_target.go", false},
		{"readme.md", false},
	}
	for _, tc := range cases {
		if got := isTargetFile(tc.name); got != tc.want {
			t.Errorf("isTargetFile(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDiscoverHandlersEmptyDirIsNoop(t *testing.T) {
	registry := routetable.New()
	if err := DiscoverHandlers("", registry); err != nil {
		t.Fatalf("DiscoverHandlers(\"\"): %v", err)
	}
}

func TestDiscoverHandlersSkipsNonTargetFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	registry := routetable.New()
	if err := DiscoverHandlers(dir, registry); err != nil {
		t.Fatalf("DiscoverHandlers: %v", err)
	}
	if len(registry.ListEndpoints(false).([]string)) != 0 {
		t.Fatalf("expected no endpoints registered from a directory with no handler plugins")
	}
}

func TestDiscoverHandlersReportsMissingDir(t *testing.T) {
	registry := routetable.New()
	err := DiscoverHandlers(filepath.Join(t.TempDir(), "does-not-exist"), registry)
	if err == nil {
		t.Fatal("expected an error scanning a missing directory")
	}
}
