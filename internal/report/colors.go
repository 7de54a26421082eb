package report

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Header  *color.Color
	Warning *color.Color
	Success *color.Color
	Error   *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Header:  color.New(color.FgCyan, color.Bold),
		Warning: color.New(color.FgYellow),
		Success: color.New(color.FgGreen),
		Error:   color.New(color.FgRed, color.Bold),
	}

	// color.NoColor follows stdout; the console decides for itself
	scheme.Header.EnableColor()
	scheme.Warning.EnableColor()
	scheme.Success.EnableColor()
	scheme.Error.EnableColor()

	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()

	scheme.Header.DisableColor()
	scheme.Warning.DisableColor()
	scheme.Success.DisableColor()
	scheme.Error.DisableColor()

	return scheme
}
