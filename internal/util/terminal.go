package util

import "golang.org/x/term"

// IsTerminal reports whether fd is attached to a terminal. The CLI uses
// it to decide between the progress bar and plain log output.
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
