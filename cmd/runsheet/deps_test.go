package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func wheel(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fakePyPI(t *testing.T, whl []byte) {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pypi/tinypkg/json":
			fmt.Fprintf(w, `{"info":{"name":"tinypkg","version":"1.0"},"urls":[
				{"packagetype":"sdist","filename":"tinypkg-1.0.tar.gz","url":"%[1]s/files/sdist"},
				{"packagetype":"bdist_wheel","filename":"tinypkg-1.0-py3-none-any.whl","url":"%[1]s/files/tinypkg.whl"}
			]}`, ts.URL)
		case "/files/tinypkg.whl":
			w.Write(whl)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)

	old := pypiBaseURL
	pypiBaseURL = ts.URL + "/pypi"
	t.Cleanup(func() { pypiBaseURL = old })
}

func TestDepsInstallListRemove(t *testing.T) {
	isolate(t)
	fakePyPI(t, wheel(t, map[string]string{
		"tinypkg/__init__.py":            "VALUE = 1\n",
		"tinypkg-1.0.dist-info/METADATA": "Name: tinypkg\n",
	}))
	dir := filepath.Join(t.TempDir(), "packages")

	output, err := executeCommand(newRootCmd(), "deps", "--dir", dir, "install", "tinypkg>=1.0")
	if err != nil {
		t.Fatalf("install: %v\n%s", err, output)
	}
	if _, err := os.Stat(filepath.Join(dir, "tinypkg", "__init__.py")); err != nil {
		t.Fatalf("package not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tinypkg-1.0.dist-info")); !os.IsNotExist(err) {
		t.Error("dist-info should be skipped")
	}

	output, err = executeCommand(newRootCmd(), "deps", "--dir", dir, "list")
	if err != nil || !strings.Contains(output, "tinypkg") {
		t.Errorf("list = %q, %v", output, err)
	}

	if _, err := executeCommand(newRootCmd(), "deps", "--dir", dir, "remove", "tinypkg"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	output, _ = executeCommand(newRootCmd(), "deps", "--dir", dir, "list")
	if !strings.Contains(output, "No packages installed.") {
		t.Errorf("list after remove = %q", output)
	}
}

func TestDepsInstallRefusals(t *testing.T) {
	isolate(t)
	fakePyPI(t, wheel(t, map[string]string{"tinypkg/_speedups.so": "ELF"}))
	dir := t.TempDir()

	if _, err := executeCommand(newRootCmd(), "deps", "--dir", dir, "install", "numpy"); err == nil || !strings.Contains(err.Error(), "C extensions") {
		t.Errorf("blocked package err = %v", err)
	}
	if _, err := executeCommand(newRootCmd(), "deps", "--dir", dir, "install", "tinypkg"); err == nil || !strings.Contains(err.Error(), "native extension") {
		t.Errorf("native wheel err = %v", err)
	}
	if _, err := executeCommand(newRootCmd(), "deps", "--dir", dir, "install", "missingpkg"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing package err = %v", err)
	}
}

func TestExtractWheelRejectsTraversal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evil.whl")
	if err := os.WriteFile(path, wheel(t, map[string]string{"../escape.py": "x"}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := extractWheel(path, t.TempDir()); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func TestPackageName(t *testing.T) {
	tests := map[string]string{
		"attrs":         "attrs",
		"pydantic==2.0": "pydantic",
		"six >= 1.16":   "six",
		"idna~=3.0":     "idna",
	}
	for in, want := range tests {
		if got := packageName(in); got != want {
			t.Errorf("packageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemovePackageRejectsPaths(t *testing.T) {
	for _, name := range []string{"", "..", "a/b"} {
		if err := removePackage(t.TempDir(), name); err == nil {
			t.Errorf("removePackage(%q) succeeded", name)
		}
	}
}
