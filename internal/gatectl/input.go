package gatectl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is replaced in tests to keep the terminal out of the way.
var readPassword = term.ReadPassword

// isTerminal reports whether stdin is interactive.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// GetPassword prompts on w and reads a password without echo. The caller
// should wipe the returned slice when done with it.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// readLine reads one line from a non-interactive stdin, so that secrets
// can be piped in.
func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
