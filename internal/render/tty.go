package render

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether stdout is a real terminal (or a Cygwin pty), the
// condition under which the full-screen bubbletea program should run
// instead of a single plain-text frame being printed and the process
// exiting.
func IsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
