package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) (cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	outDir = filepath.Join(dir, "snippets")
	cfgPath = filepath.Join(dir, "config.yaml")
	content := "output:\n  dir: " + outDir + "\nstore:\n  path: " + filepath.Join(dir, "ramldoc.db") + "\nlog:\n  level: warn\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, outDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var runIDRe = regexp.MustCompile(`run (run_\d{8}_\d{3})`)

func TestDocumentShowListDelete(t *testing.T) {
	cfgPath, outDir := writeConfig(t)
	testdata := filepath.Join("..", "..", "testdata")

	out, err := run(t, "--config", cfgPath, "document",
		"--har", filepath.Join(testdata, "sample.har"),
		"--catalog", filepath.Join(testdata, "catalog.yaml"))
	if err != nil {
		t.Fatalf("document: %v\n%s", err, out)
	}
	if !strings.Contains(out, "documented 3 operations") {
		t.Fatalf("unexpected output: %s", out)
	}
	m := runIDRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("run id missing from output: %s", out)
	}
	runID := m[1]

	for _, p := range []string{
		filepath.Join("create-item", "resource.raml"),
		filepath.Join("create-item", "create-item-request-schema.json"),
		filepath.Join("list-items", "list-items-response-schema.json"),
		filepath.Join("get-item", "get-item-response.json"),
	} {
		if _, err := os.Stat(filepath.Join(outDir, p)); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}

	out, err = run(t, "--config", cfgPath, "show", "--run", runID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"# /v1/items", "# /v1/items/{itemId}", "is: [pageable]", "itemId:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--config", cfgPath, "list")
	if err != nil || !strings.Contains(out, runID) || !strings.Contains(out, "Items API") {
		t.Fatalf("list: %v\n%s", err, out)
	}

	if _, err := run(t, "--config", cfgPath, "delete", "--run", runID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "show", "--run", runID); err == nil {
		t.Fatalf("expected deleted run to be gone")
	}
}

func TestDocumentWithoutCatalog(t *testing.T) {
	cfgPath, outDir := writeConfig(t)
	out, err := run(t, "--config", cfgPath, "document", "--har", filepath.Join("..", "..", "testdata", "sample.har"))
	if err != nil {
		t.Fatalf("document: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "get-v1-items-1", "resource.raml")); err != nil {
		t.Fatalf("expected generated operation name: %v", err)
	}
}

func TestDocumentRequiresHAR(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, err := run(t, "--config", cfgPath, "document"); err == nil {
		t.Fatalf("expected missing --har to fail")
	}
}
