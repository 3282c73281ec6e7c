package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminalPrompt asks for credentials on out and reads the answer from in.
// Secrets are read without echo when in is a terminal.
func terminalPrompt(in io.Reader, out io.Writer) func(label string, secret bool) (string, error) {
	return func(label string, secret bool) (string, error) {
		fmt.Fprint(out, label)

		if f, ok := in.(*os.File); ok && secret && term.IsTerminal(int(f.Fd())) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out) // New line after password
			if err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return string(b), nil
		}

		return readLine(in)
	}
}

// readLine reads up to the next newline one byte at a time, so nothing past
// the line is consumed; challenge prompts read the same input later.
func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if err == io.EOF {
			if sb.Len() == 0 {
				return "", err
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}
