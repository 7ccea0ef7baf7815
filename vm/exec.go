package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ExecLauncher runs a local java binary.
type ExecLauncher struct {
	// Java is the binary to run, "java" when empty.
	Java string
	// JVMArgs are placed before -cp, e.g. -Xmx256m.
	JVMArgs []string
}

func (l *ExecLauncher) Name() string { return "exec" }

func (l *ExecLauncher) java() string {
	if l.Java == "" {
		return "java"
	}
	return l.Java
}

// Boot checks that the binary starts.
func (l *ExecLauncher) Boot(ctx context.Context) error {
	path, err := exec.LookPath(l.java())
	if err != nil {
		return fmt.Errorf("find %s: %w", l.java(), err)
	}
	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s -version: %w: %s", path, err, out)
	}
	return nil
}

func (l *ExecLauncher) Run(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (int, error) {
	args := append([]string{}, l.JVMArgs...)
	if inv.Classpath != "" {
		args = append(args, "-cp", inv.Classpath)
	}
	args = append(args, inv.MainClass)
	args = append(args, inv.Args...)

	cmd := exec.CommandContext(ctx, l.java(), args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("run %s: %w", inv.MainClass, err)
	}
	return 0, nil
}
