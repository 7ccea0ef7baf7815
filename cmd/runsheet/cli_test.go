package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/export"
	"github.com/caffeineduck/runsheet/internal/config"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolate keeps runtime assets and caches out of the developer's machine.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv(config.EnvPicocWasm, filepath.Join(dir, "missing-picoc.wasm"))
	t.Setenv(config.EnvPythonWasm, filepath.Join(dir, "missing-python.wasm"))
	t.Setenv(config.EnvBshJar, filepath.Join(dir, "missing-bsh.jar"))
	return dir
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"runsheet", "run", "serve", "languages", "deps", "--config", "picoc", "BeanShell"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"--lang", "--export", "--title", "--input-answer", "Submission_"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"--addr", "/health", "/languages", "/dispatch", "/export"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestCLIDepsHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "deps", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"install", "list", "remove", "PyPI"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("deps help output should contain %q", phrase)
		}
	}
}

func TestCLILanguages(t *testing.T) {
	isolate(t)
	output, err := executeCommand(newRootCmd(), "languages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"ID", "javascript", "direct", "cpp", "native", "java", "vm", "python", "embedded"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("languages output should contain %q", phrase)
		}
	}
}

func TestCLILanguagesJSON(t *testing.T) {
	isolate(t)
	output, err := executeCommand(newRootCmd(), "languages", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var langs []catalog.Language
	if err := json.Unmarshal([]byte(output), &langs); err != nil {
		t.Fatalf("decode: %v\n%s", err, output)
	}
	if len(langs) != len(catalog.Default().All()) {
		t.Errorf("got %d languages", len(langs))
	}
}

func TestCLIRunJavaScript(t *testing.T) {
	dir := isolate(t)
	a := writeSource(t, dir, "a.js", `console.log("hi")`)
	b := writeSource(t, dir, "b.js", `console.warn("careful")`)

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, output)
	}
	want := "== a.js [success]\nhi\n\n== b.js [success]\nWarning: careful\n"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCLIRunFailureExitsNonZero(t *testing.T) {
	dir := isolate(t)
	a := writeSource(t, dir, "a.js", `throw new Error("boom")`)

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "-l", "js", a)
	if !errors.Is(err, errFilesFailed) {
		t.Fatalf("err = %v, want errFilesFailed", err)
	}
	if !strings.Contains(output, "[error]") || !strings.Contains(output, "boom") {
		t.Errorf("output = %q", output)
	}
}

func TestCLIRunNativeUnavailable(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "main.cpp", `int main() { return 0; }`)

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", src)
	if !errors.Is(err, errFilesFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(output, "Error: C++ Engine (picoc) not loaded.") {
		t.Errorf("output = %q", output)
	}
}

func TestCLIRunEmbeddedUnavailable(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "main.py", `print(1)`)

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", src)
	if err == nil || !strings.Contains(err.Error(), "not executed") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(output, "[pending]") || !strings.Contains(output, batch.NotExecuted) {
		t.Errorf("output = %q", output)
	}
}

func TestCLIRunUnsupportedLanguage(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "main.cob", `DISPLAY 'HI'.`)

	output, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "-l", "cobol", src)
	if !errors.Is(err, errFilesFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(output, `Error: unsupported language "cobol".`) {
		t.Errorf("output = %q", output)
	}
}

func TestCLIRunUndetectableLanguage(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "notes.txt", `hello`)

	_, err := executeCommand(newRootCmd(), "run", src)
	if err == nil || !strings.Contains(err.Error(), "language required") {
		t.Errorf("err = %v", err)
	}
}

func TestCLIRunMissingFile(t *testing.T) {
	isolate(t)
	if _, err := executeCommand(newRootCmd(), "run", "-l", "js", filepath.Join(t.TempDir(), "nope.js")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCLIRunExport(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "a.js", `console.log(1 + 1)`)
	out := filepath.Join(dir, "docs", "submission.html")

	if _, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "--export", out, "--title", "Lab 1", src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<h1>Lab 1</h1>", "Problem 1: a.js", "console.log(1 &#43; 1)", `<pre class="output">2</pre>`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestCLIRunExportDirectory(t *testing.T) {
	dir := isolate(t)
	src := writeSource(t, dir, "a.js", `console.log("x")`)
	outDir := filepath.Join(dir, "reports")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCommand(newRootCmd(), "run", "--log-level", "error", "--export", outDir, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(outDir, "Submission_javascript_*.md"))
	if len(matches) != 1 {
		t.Fatalf("exported files = %v", matches)
	}
}

func TestCLIBadConfig(t *testing.T) {
	dir := isolate(t)
	cfg := writeSource(t, dir, "runsheet.hcl", `vm { launcher = "ssh" }`)
	if _, err := executeCommand(newRootCmd(), "--config", cfg, "languages"); err == nil || !strings.Contains(err.Error(), "vm.launcher") {
		t.Errorf("err = %v", err)
	}
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		flag    string
		files   []string
		want    catalog.ID
		wantErr bool
	}{
		{"python", nil, catalog.Python, false},
		{"py", nil, catalog.Python, false},
		{"C++", nil, catalog.Cpp, false},
		{"", []string{"a.java"}, catalog.Java, false},
		{"", []string{"x.txt", "b.mjs"}, catalog.JavaScript, false},
		{"", []string{"x.txt"}, "", true},
		{"", nil, "", true},
	}
	for _, tt := range tests {
		got, err := resolveLanguage(tt.flag, tt.files)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveLanguage(%q, %v) = %q, %v", tt.flag, tt.files, got, err)
		}
	}
}

func TestExportPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	path, f, err := exportPath(dir, catalog.Cpp, now)
	if err != nil || f != export.FormatMarkdown || path != filepath.Join(dir, "Submission_cpp_2024-05-01.md") {
		t.Errorf("dir: %q %q %v", path, f, err)
	}
	path, f, err = exportPath(filepath.Join(dir, "out.htm"), catalog.Cpp, now)
	if err != nil || f != export.FormatHTML || filepath.Base(path) != "out.htm" {
		t.Errorf("file: %q %q %v", path, f, err)
	}
	if _, _, err := exportPath(filepath.Join(dir, "out.docx"), catalog.Cpp, now); err == nil {
		t.Error("expected error for .docx")
	}
}

func TestBatchErr(t *testing.T) {
	ok := batch.Batch{{Status: batch.StatusSuccess}}
	if err := batchErr(ok, nil); err != nil {
		t.Errorf("all success: %v", err)
	}
	failed := batch.Batch{{Status: batch.StatusSuccess}, {Status: batch.StatusError}}
	if err := batchErr(failed, nil); !errors.Is(err, errFilesFailed) || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("failed: %v", err)
	}
	problem := errors.New("python.wasm missing")
	pending := batch.Batch{{Status: batch.StatusPending}}
	if err := batchErr(pending, problem); !errors.Is(err, problem) {
		t.Errorf("pending: %v", err)
	}
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := &linePrompter{r: bufio.NewReader(strings.NewReader("5\r\nlast")), w: &out}

	for _, want := range []string{"5", "last"} {
		got, err := p.Prompt("Input for C++ program:")
		if err != nil || got != want {
			t.Errorf("Prompt = %q, %v, want %q", got, err, want)
		}
	}
	if _, err := p.Prompt(""); err == nil {
		t.Error("expected EOF once input is exhausted")
	}
	if !strings.Contains(out.String(), "Input for C++ program:") {
		t.Errorf("prompt not shown: %q", out.String())
	}
}

func TestNewPrompterNonTerminal(t *testing.T) {
	if _, ok := newPrompter(strings.NewReader(""), &bytes.Buffer{}).(*linePrompter); !ok {
		t.Error("non-file input should use the line prompter")
	}
	if got, err := silentPrompter.Prompt("anything"); got != "" || err != nil {
		t.Errorf("silentPrompter = %q, %v", got, err)
	}
}
