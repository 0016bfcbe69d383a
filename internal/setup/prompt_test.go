package setup

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(strings.NewReader(input), &out), &out
}

func TestString_DefaultOnEmpty(t *testing.T) {
	p, _ := newTestPrompter("\n")
	if got := p.String("Server URL", "http://localhost:8080"); got != "http://localhost:8080" {
		t.Errorf("got %q", got)
	}
}

func TestString_RequiredRepeats(t *testing.T) {
	p, out := newTestPrompter("\n  value  \n")
	if got := p.String("Name", ""); got != "value" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(out.String(), "required") {
		t.Errorf("expected a required note, got %q", out.String())
	}
}

func TestSecret_ReadsLineWithoutTerminal(t *testing.T) {
	p, _ := newTestPrompter("\nsecret-token\n")
	if got := p.Secret("Access token"); got != "secret-token" {
		t.Errorf("got %q", got)
	}
}

func TestSecret_EndOfInput(t *testing.T) {
	p, _ := newTestPrompter("")
	if got := p.Secret("Access token"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSecret_TerminalDoesNotEcho(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	var gotFD int
	readPassword = func(fd int) ([]byte, error) {
		gotFD = fd
		return []byte("tty-token\n"), nil
	}

	p, out := newTestPrompter("")
	p.ttyFD = 3
	if got := p.Secret("Access token"); got != "tty-token" {
		t.Errorf("got %q", got)
	}
	if gotFD != 3 {
		t.Errorf("read from fd %d, want 3", gotFD)
	}
	if strings.Contains(out.String(), "tty-token") {
		t.Errorf("secret echoed: %q", out.String())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"", true, true},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		if got := p.Confirm("Continue?", tt.defaultYes); got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.defaultYes, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	p, _ := newTestPrompter("1h\n")
	if got := p.Duration("Interval", 15*time.Minute); got != time.Hour {
		t.Errorf("got %v", got)
	}

	p, out := newTestPrompter("soon\n")
	if got := p.Duration("Interval", 15*time.Minute); got != 15*time.Minute {
		t.Errorf("got %v", got)
	}
	if !strings.Contains(out.String(), "invalid duration") {
		t.Errorf("expected invalid note, got %q", out.String())
	}
}

func TestInt64(t *testing.T) {
	p, _ := newTestPrompter("abc\n-3\n42\n")
	n, err := p.Int64("Account id")
	if err != nil {
		t.Fatalf("Int64: %v", err)
	}
	if n != 42 {
		t.Errorf("got %d, want 42", n)
	}

	p, _ = newTestPrompter("")
	if _, err := p.Int64("Account id"); err == nil {
		t.Error("expected error at end of input")
	}
}
