package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Passwords are read without
// echo when the input is a terminal.
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, reader: bufio.NewReader(cmd.InOrStdin())}
}

// input prompts the user for input and returns the trimmed string.
func (p *prompter) input(prompt string) (string, error) {
	fmt.Fprint(p.cmd.ErrOrStderr(), prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// password prompts for a secret. It falls back to a plain line read when stdin
// is not a terminal, e.g. when input is piped.
func (p *prompter) password(prompt string) (string, error) {
	f, ok := p.cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.input(prompt)
	}
	fmt.Fprint(p.cmd.ErrOrStderr(), prompt)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
