// Package ui is the rdm terminal design system. Commands render all
// styled output through these colors, styles, and symbols so the tool
// looks the same everywhere, and through the helpers here so piped
// output stays free of escape codes.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Colors are ANSI 4-bit so they track the user's terminal palette.
var (
	ColorCyan   = lipgloss.Color("6")
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorRed    = lipgloss.Color("1")
)

// Styles name the roles text plays in output rather than raw colors.
var (
	StyleBold    = lipgloss.NewStyle().Bold(true)
	StyleDim     = lipgloss.NewStyle().Faint(true)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleError   = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBoldRed = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	StyleCode    = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleHint    = lipgloss.NewStyle().Faint(true)
)

// Status symbols, reliable across modern terminals.
const (
	SymbolCheck   = "✓"
	SymbolCross   = "✗"
	SymbolWarning = "⚠"
	SymbolArrow   = "→"
)

// ansiRenderer always emits escape codes. The default lipgloss renderer
// sniffs the output stream and strips ANSI when it is not a TTY, which
// defeats helpers whose caller already made the color decision.
var ansiRenderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(os.Stderr)
	r.SetColorProfile(termenv.ANSI)
	return r
}()

// ForcedRenderer returns a renderer that produces ANSI styling
// regardless of terminal detection.
func ForcedRenderer() *lipgloss.Renderer { return ansiRenderer }

// ColorEnabled reports whether stderr supports color output.
func ColorEnabled() bool { return ColorEnabledFd(os.Stderr.Fd()) }

// ColorEnabledFd reports whether the file descriptor is a color-capable
// terminal. NO_COLOR (https://no-color.org/) wins over detection.
func ColorEnabledFd(fd uintptr) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// FormatError renders an error banner with optional fix suggestions,
// ready to write to stderr.
func FormatError(msg string, suggestions ...string) string {
	out := StyleBoldRed.Render("Error:") + " " + msg + "\n"
	if len(suggestions) == 0 {
		return out
	}
	out += "\n" + StyleHint.Render("  Try:") + "\n"
	for _, s := range suggestions {
		out += "    " + StyleHint.Render(SymbolArrow) + " " + StyleCode.Render(s) + "\n"
	}
	return out
}
