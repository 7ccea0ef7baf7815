package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/caffeineduck/runsheet/engine"
)

// newPrompter answers the native interpreter's reads: line editing on a
// terminal, plain line reads otherwise.
func newPrompter(in io.Reader, out io.Writer) engine.Prompter {
	if f, ok := in.(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
		return terminalPrompter{}
	}
	return &linePrompter{r: bufio.NewReader(in), w: out}
}

// silentPrompter answers every read with "" so servers never block on input.
var silentPrompter = engine.PromptFunc(func(string) (string, error) { return "", nil })

type terminalPrompter struct{}

func (terminalPrompter) Prompt(message string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          message + " ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", nil
	}
	return line, err
}

type linePrompter struct {
	r *bufio.Reader
	w io.Writer
}

func (p *linePrompter) Prompt(message string) (string, error) {
	if message != "" {
		fmt.Fprintln(p.w, message)
	}
	line, err := p.r.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), err
}
