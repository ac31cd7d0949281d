package controller

import (
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// NewUI creates a UI based on whether TTY mode is enabled.
// When useTTY is true, it returns a styled TUI that may browse long listings.
// When useTTY is false, it returns a SimpleUI (plain tables).
func NewUI(cmd *cobra.Command, useTTY bool) UI {
	if useTTY {
		return NewInteractiveTUI(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// fdStream is anything backed by a file descriptor, such as *os.File.
type fdStream interface {
	Fd() uintptr
}

// IsTTY reports whether stream, typically cmd.InOrStdin() or
// cmd.OutOrStdout(), is an interactive terminal. Streams without a file
// descriptor, such as buffers, are not.
func IsTTY(stream any) bool {
	file, ok := stream.(fdStream)
	if !ok {
		return false
	}

	fd := file.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
