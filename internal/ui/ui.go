// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui holds the small set of terminal-output helpers the CLI
// subcommands share: colored headers and labels, and success/warning
// lines, with color disabled automatically on non-TTY output.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

// InitColors enables or disables color globally, honoring an explicit
// --no-color flag first and falling back to whether stdout is a TTY.
func InitColors(noColor bool) {
	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(title string) {
	_, _ = Bold.Println(title)
}

// SubHeader prints an indented, bold subsection title.
func SubHeader(title string) {
	_, _ = Bold.Printf("  %s\n", title)
}

// Label renders s bold, for use as a field prefix before plain text.
func Label(s string) string {
	return Bold.Sprint(s)
}

// DimText renders s in a dimmed style, for secondary detail.
func DimText(s string) string {
	return dim.Sprint(s)
}

// CountText renders an integer count in cyan, for summary numbers.
func CountText(n int) string {
	return Cyan.Sprint(n)
}

// Success prints a green line prefixed with a checkmark.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf is Success with fmt.Sprintf formatting.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// Warning prints a yellow line prefixed with a warning marker.
func Warning(msg string) {
	_, _ = Yellow.Println("! " + msg)
}

// Warningf is Warning with fmt.Sprintf formatting.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// Infof prints a plain informational line.
func Infof(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// Info prints a plain informational line with no formatting.
func Info(msg string) {
	fmt.Println(msg)
}
