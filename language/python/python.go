// Package python provides the Python language adapter for runsheet's
// embedded interpreter.
package python

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
)

//go:embed stdlib.py
var stdlib string

// Python implements the executor.Language interface for Python execution.
type Python struct {
	module []byte
}

// New returns a Python language adapter around a RustPython WASI binary.
func New(module []byte) *Python {
	return &Python{module: module}
}

// Load reads the RustPython WASI binary from path.
func Load(path string) (*Python, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load python wasm: %w", err)
	}
	return New(module), nil
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Module returns the RustPython WASM binary.
func (p *Python) Module() []byte {
	return p.module
}

// WrapCode prepends the runsheet stdlib to user code.
func (p *Python) WrapCode(code string) string {
	return stdlib + "\n" + code
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(wrappedCode string) []string {
	return []string{"python", "-c", wrappedCode}
}

// SessionInit sets the flag the stdlib checks to enter the session loop.
func (p *Python) SessionInit() string {
	return "_RUNSHEET_SESSION_MODE = True\n"
}

// InputOverride rebinds builtins.input so it echoes the prompt without a
// newline and returns answer instead of blocking on stdin.
func (p *Python) InputOverride(answer string) string {
	return "import builtins\n" +
		"def input(prompt=''):\n" +
		"    print(prompt, end='')\n" +
		"    return " + strconv.Quote(answer) + "\n" +
		"builtins.input = input\n"
}
