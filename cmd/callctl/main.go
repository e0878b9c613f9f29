package main

import (
	"fmt"
	"os"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
