package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const pairingPrompt = "Enter the 8 letter code from https://my.remarkable.com/device/desktop/connect (leave empty to abort): "

// Test seams for the terminal. Tests replace these to avoid touching a
// real TTY.
var (
	readPassword = term.ReadPassword
	stdinIsTTY   = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	promptIn  io.Reader = os.Stdin
	promptOut io.Writer = os.Stderr
)

// promptPairingCode asks for a one-time pairing code. On a terminal the code
// is read without echo; otherwise one line is read from stdin. The prompt
// is shown even with --quiet because the user must answer it.
func promptPairingCode(_ context.Context) (string, error) {
	if _, err := fmt.Fprint(promptOut, pairingPrompt); err != nil {
		return "", err
	}

	if stdinIsTTY() {
		code, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(promptOut)

		if err != nil {
			return "", fmt.Errorf("reading pairing code: %w", err)
		}

		return strings.TrimSpace(string(code)), nil
	}

	line, err := bufio.NewReader(promptIn).ReadString('\n')
	// EOF with no input yields an empty code, which aborts pairing.
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading pairing code: %w", err)
	}

	return strings.TrimSpace(line), nil
}
