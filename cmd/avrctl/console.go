package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	historyFileName = ".avrctl_history"
	historySize     = 500
)

// lineEditor reads console lines with full editing and history on a
// terminal, and with a plain scanner when input is piped.
type lineEditor struct {
	rl      *readline.Instance
	scanner *bufio.Scanner
	out     io.Writer
}

func newLineEditor() *lineEditor {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return newScannerEditor(os.Stdin, os.Stdout)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath(),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return newScannerEditor(os.Stdin, os.Stdout)
	}
	return &lineEditor{rl: rl, out: os.Stdout}
}

func newScannerEditor(in io.Reader, out io.Writer) *lineEditor {
	return &lineEditor{scanner: bufio.NewScanner(in), out: out}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

// interactive reports whether the editor runs on a terminal.
func (le *lineEditor) interactive() bool {
	return le.rl != nil
}

// readLine returns the next line, or io.EOF on Ctrl-D, Ctrl-C or end
// of input.
func (le *lineEditor) readLine(prompt string) (string, error) {
	if le.rl == nil {
		fmt.Fprint(le.out, prompt)
		if !le.scanner.Scan() {
			if err := le.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return le.scanner.Text(), nil
	}

	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed) //nolint:errcheck // history is best effort
	}
	return line, nil
}

func (le *lineEditor) close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}
