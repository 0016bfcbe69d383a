// Package setup implements the interactive first-run wizard that writes the
// plannersync configuration and signs the device in.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Prompter provides reusable terminal prompts backed by an io.Reader/Writer
// pair. In production these are os.Stdin and os.Stdout; tests can inject
// buffers for deterministic input.
type Prompter struct {
	scanner *bufio.Scanner
	w       io.Writer

	// ttyFD is the descriptor secrets are read from without echo, or -1
	// when input is not a terminal.
	ttyFD int
}

// NewPrompter creates a Prompter wired to the given reader and writer.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	p := &Prompter{scanner: bufio.NewScanner(r), w: w, ttyFD: -1}
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.ttyFD = int(f.Fd())
	}
	return p
}

// String prompts the user for a text value. If the user presses Enter without
// typing anything, defaultVal is returned. An empty defaultVal means the field
// is required and the prompt repeats until a non-empty value is given.
func (p *Prompter) String(label, defaultVal string) string {
	for {
		if defaultVal != "" {
			_, _ = fmt.Fprintf(p.w, "  %s [%s]: ", label, defaultVal)
		} else {
			_, _ = fmt.Fprintf(p.w, "  %s: ", label)
		}

		if !p.scanner.Scan() {
			return defaultVal
		}

		val := strings.TrimSpace(p.scanner.Text())
		if val == "" {
			if defaultVal != "" {
				return defaultVal
			}
			_, _ = fmt.Fprintf(p.w, "  (required, please enter a value)\n")
			continue
		}
		return val
	}
}

// Secret prompts for a sensitive value such as an access token. On a
// terminal the input is not echoed. It returns "" when input ends.
func (p *Prompter) Secret(label string) string {
	for {
		_, _ = fmt.Fprintf(p.w, "  %s: ", label)

		var val string
		if p.ttyFD >= 0 {
			b, err := readPassword(p.ttyFD)
			_, _ = fmt.Fprintln(p.w)
			if err != nil {
				return ""
			}
			val = strings.TrimSpace(string(b))
		} else {
			if !p.scanner.Scan() {
				return ""
			}
			val = strings.TrimSpace(p.scanner.Text())
		}

		if val == "" {
			_, _ = fmt.Fprintf(p.w, "  (required, please enter a value)\n")
			continue
		}
		return val
	}
}

// Confirm asks a yes/no question. defaultYes controls what happens when the
// user presses Enter without typing: true → yes, false → no.
func (p *Prompter) Confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	_, _ = fmt.Fprintf(p.w, "  %s %s: ", label, hint)

	if !p.scanner.Scan() {
		return defaultYes
	}

	answer := strings.TrimSpace(strings.ToLower(p.scanner.Text()))
	if answer == "" {
		return defaultYes
	}
	return answer == "y" || answer == "yes"
}

// Duration prompts for a duration such as "30m". Invalid input falls back to
// defaultVal with a note.
func (p *Prompter) Duration(label string, defaultVal time.Duration) time.Duration {
	s := p.String(label, defaultVal.String())
	d, err := time.ParseDuration(s)
	if err != nil {
		_, _ = fmt.Fprintf(p.w, "  (invalid duration, using default %v)\n", defaultVal)
		return defaultVal
	}
	return d
}

// Int64 prompts for a positive integer, repeating until one is given. It
// returns an error when input ends.
func (p *Prompter) Int64(label string) (int64, error) {
	for {
		_, _ = fmt.Fprintf(p.w, "  %s: ", label)
		if !p.scanner.Scan() {
			return 0, fmt.Errorf("no input")
		}
		n, err := strconv.ParseInt(strings.TrimSpace(p.scanner.Text()), 10, 64)
		if err != nil || n <= 0 {
			_, _ = fmt.Fprintf(p.w, "  (enter a positive number)\n")
			continue
		}
		return n, nil
	}
}
