package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type checkState int

const (
	checkPassed checkState = iota
	checkWarned
	checkFailed
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const checkLabelWidth = 22

// checkLine is one row of a check section.
type checkLine struct {
	label  string
	state  checkState
	detail string
}

func (s checkState) String() string {
	switch s {
	case checkPassed:
		return "OK"
	case checkWarned:
		return "WARN"
	default:
		return "FAIL"
	}
}

func (s checkState) color() string {
	switch s {
	case checkPassed:
		return ansiGreen
	case checkWarned:
		return ansiYellow
	default:
		return ansiRed
	}
}

func (l checkLine) render(colorize bool) string {
	text := fmt.Sprintf("  %-*s [%s]", checkLabelWidth, l.label+":", l.state)
	if l.detail != "" {
		text += " " + l.detail
	}
	if colorize {
		return l.state.color() + text + ansiReset
	}
	return text
}

func sectionHeader(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func writeSection(w io.Writer, title string, lines []checkLine, colorize bool) {
	fmt.Fprintln(w, sectionHeader(title, colorize))
	for _, line := range lines {
		fmt.Fprintln(w, line.render(colorize))
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
