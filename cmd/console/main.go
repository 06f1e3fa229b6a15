package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/GluM1262/remoteshell-manager/cmd/console/ui"
)

func main() {
	api := flag.String("api", "http://127.0.0.1:8000", "Coordinator API base URL")
	flag.Parse()

	root := ui.NewRootModel(ui.NewClient(*api))
	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "console error:", err)
		os.Exit(1)
	}
}
