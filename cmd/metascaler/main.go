package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/metascaler/cmd/metascaler/commands"
)

func main() {
	if err := commands.RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
