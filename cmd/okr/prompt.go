package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter asks for missing values on the command's streams.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal file descriptor of stdin, or -1
}

func newPrompter(cmd *cobra.Command) *prompter {
	fd := -1
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr(), fd: fd}
}

// valueOr returns v, or reads a line when v is empty.
func (p *prompter) valueOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// password reads a secret without echo when stdin is a terminal.
func (p *prompter) password(label string) (string, error) {
	if p.fd < 0 {
		return p.valueOr("", label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (p *prompter) confirm(question string) (bool, error) {
	answer, err := p.valueOr("", question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
