// Package diag writes the tagged, user-facing diagnostic lines and sets up the
// project log file.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Tone picks the colour of a tag.
type Tone int

const (
	Info Tone = iota
	OK
	Fail
)

// Printer writes "[TAG] message" lines. It is safe for concurrent use and
// never interleaves two lines.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	err    io.Writer
	styles map[Tone]lipgloss.Style
	color  bool
}

// New returns a printer writing listings to out and diagnostics to errw.
// Colour is enabled only when errw is a terminal and NO_COLOR is unset.
func New(out, errw io.Writer) *Printer {
	p := &Printer{out: out, err: errw, color: colorEnabled(errw)}
	r := lipgloss.NewRenderer(errw)
	p.styles = map[Tone]lipgloss.Style{
		Info: r.NewStyle().Foreground(lipgloss.Color("3")),
		OK:   r.NewStyle().Foreground(lipgloss.Color("2")),
		Fail: r.NewStyle().Foreground(lipgloss.Color("1")),
	}
	return p
}

// Discard returns a printer that drops everything.
func Discard() *Printer {
	return New(io.Discard, io.Discard)
}

func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) tag(t Tone, tag string) string {
	s := "[" + tag + "]"
	if !p.color {
		return s
	}
	return p.styles[t].Render(s)
}

// Errorf writes a tagged line to the diagnostic stream.
func (p *Printer) Errorf(t Tone, tag, format string, args ...any) {
	p.line(p.err, t, tag, fmt.Sprintf(format, args...))
}

// Printf writes a tagged line to the listing stream.
func (p *Printer) Printf(t Tone, tag, format string, args ...any) {
	p.line(p.out, t, tag, fmt.Sprintf(format, args...))
}

// Raw writes text to the listing stream unchanged.
func (p *Printer) Raw(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, s)
}

// Stdout and Stderr expose the underlying streams, e.g. as live sinks for
// child processes.
func (p *Printer) Stdout() io.Writer { return p.out }
func (p *Printer) Stderr() io.Writer { return p.err }

func (p *Printer) line(w io.Writer, t Tone, tag, msg string) {
	var b strings.Builder
	b.WriteString(p.tag(t, tag))
	if msg != "" {
		if !strings.HasPrefix(msg, ":") {
			b.WriteByte(' ')
		}
		b.WriteString(msg)
	}
	b.WriteByte('\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(w, b.String())
}
