package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func regoPackage(name string) string {
	return "package " + name + "\n\nimport rego.v1\n\ndeny contains msg if {\n\tfalse\n\tmsg := \"never\"\n}\n"
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test-policy.rego")
	regoContent := `# Rejects recipes named invalid
package test.policy

import rego.v1

deny contains msg if {
	input.recipe.name == "invalid"
	msg := "invalid recipe name"
}`
	writeFile(t, policyFile, regoContent)

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	policy := policies[0]

	if policy.Name != "test-policy" {
		t.Errorf("Expected name 'test-policy', got '%s'", policy.Name)
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Rejects recipes named invalid" {
		t.Errorf("Unexpected description '%s'", policy.Description)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test-policy.json")
	policy := Policy{
		Name:        "test-json-policy",
		Description: "A test policy",
		Rego:        regoPackage("test"),
		Severity:    SeverityError,
		Weight:      2,
		Enabled:     true,
		Tags:        []string{"test"},
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	loaded := policies[0]

	if loaded.Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded.Name)
	}
	if loaded.Severity != policy.Severity {
		t.Errorf("Expected severity '%s', got '%s'", policy.Severity, loaded.Severity)
	}
	if loaded.Weight != 2 {
		t.Errorf("Expected weight 2, got %g", loaded.Weight)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to default to now")
	}
}

func TestLoadFromFile_JSONWithoutName(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "nameless.json")
	writeFile(t, policyFile, `{"rego": "package x"}`)

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for a policy without a name")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	tmpDir := t.TempDir()

	for _, name := range []string{"policy1", "policy2", "policy3"} {
		writeFile(t, filepath.Join(tmpDir, name+".rego"), regoPackage(name))
	}
	writeFile(t, filepath.Join(tmpDir, "README.md"), "# Test")

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != 3 {
		t.Errorf("Expected 3 policies, got %d", len(loaded))
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}
	writeFile(t, filepath.Join(tmpDir, "policy1.rego"), regoPackage("p1"))
	writeFile(t, filepath.Join(subDir, "policy2.rego"), regoPackage("p2"))

	loaded, err := loader.loadFromDirectory(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies (including subdirectory), got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "dir1")
	if err := os.Mkdir(dir1, 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writeFile(t, filepath.Join(dir1, "policy1.rego"), regoPackage("p1"))

	file1 := filepath.Join(tmpDir, "policy2.rego")
	writeFile(t, file1, regoPackage("p2"))

	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir1, file1})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}
}

func TestLoadBundle(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	bundleFile := filepath.Join(t.TempDir(), "bundle.json")

	bundle := Bundle{
		Name:    "test-bundle",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "policy1", Rego: regoPackage("p1"), Severity: SeverityError, Enabled: true},
			{Name: "policy2", Rego: regoPackage("p2"), Severity: SeverityWarning, Enabled: true},
		},
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	writeFile(t, bundleFile, string(data))

	loaded, err := loader.LoadFromPaths(context.Background(), []string{bundleFile})
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(loaded))
	}
	for i, p := range loaded {
		if p.Name != bundle.Policies[i].Name {
			t.Errorf("Policy %d: expected name %s, got %s", i, bundle.Policies[i].Name, p.Name)
		}
		if p.Metadata["bundle"] != "test-bundle" || p.Metadata["bundle_version"] != "1.0.0" {
			t.Errorf("Policy %s: unexpected bundle metadata %v", p.Name, p.Metadata)
		}
	}
	if loaded[0].Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", loaded[0].Severity)
	}
}

func TestLoadBundle_NamelessPolicy(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	bundleFile := filepath.Join(t.TempDir(), "bundle.json")
	writeFile(t, bundleFile, `{"name": "broken", "policies": [{"rego": "package x"}]}`)

	if _, err := loader.loadFromFile(context.Background(), bundleFile); err == nil {
		t.Error("Expected error for a bundle policy without a name")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "single line comment",
			content:  "# This is a test policy\npackage test",
			expected: "This is a test policy",
		},
		{
			name:     "multi line comments",
			content:  "# This is a test policy\n# that spans multiple lines\npackage test",
			expected: "This is a test policy that spans multiple lines",
		},
		{
			name:     "no comments",
			content:  "package test\n\nfitness := 1",
			expected: "",
		},
		{
			name:     "comments with empty lines",
			content:  "# First line\n#\n# Second line\npackage test",
			expected: "First line Second line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := extractDescription(tt.content); result != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestLoadFromFile_Cached(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test.rego")
	writeFile(t, policyFile, regoPackage("first"))

	if _, err := loader.loadFromFile(context.Background(), policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	writeFile(t, policyFile, regoPackage("second"))
	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policies[0].Rego != regoPackage("first") {
		t.Error("Expected the cached policy until the watcher invalidates it")
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, policyFile, "not a policy")

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test.json")
	writeFile(t, policyFile, "invalid json")

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	if _, err := loader.loadFromPath(context.Background(), "/nonexistent/path"); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "first.rego"), regoPackage("first"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{tmpDir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, filepath.Join(tmpDir, "second.rego"), regoPackage("second"))

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
