package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printLine(color, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printLine(colorGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { printLine(colorRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { printLine(colorYellow, "⚠ ", format, args...) }

func printStep(format string, args ...any) { printLine(colorCyan, "→ ", format, args...) }

// printStatus prints an aligned "label: value" row.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, fmt.Sprintf("%-14s", label+":")), fmt.Sprintf(format, args...))
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
