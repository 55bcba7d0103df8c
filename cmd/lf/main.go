package main

import (
	"fmt"
	"os"

	"github.com/harrison/lf/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	err := rootCmd.Execute()
	if msg := cmd.Message(err); msg != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(cmd.ExitCode(err))
}
